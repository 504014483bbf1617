// internal/memory/embedder.go
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embedder converts text into a fixed-dimension vector. Implementations must
// return an error on dimension mismatch rather than a truncated vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Health(ctx context.Context) error
}

// HTTPEmbedder calls an OpenAI-compatible embedding endpoint
type HTTPEmbedder struct {
	apiURL     string
	model      string
	dimensions int
	client     *http.Client
}

// NewHTTPEmbedder creates a new embedder client
func NewHTTPEmbedder(apiURL, model string, dimensions int) *HTTPEmbedder {
	return &HTTPEmbedder{
		apiURL:     apiURL,
		model:      model,
		dimensions: dimensions,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Dimensions returns the expected vector size
func (e *HTTPEmbedder) Dimensions() int {
	return e.dimensions
}

// Embed converts text to a vector embedding
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]interface{}{
		"input": text,
		"model": e.model,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	vec := result.Data[0].Embedding
	if len(vec) != e.dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), e.dimensions)
	}

	return vec, nil
}

// Health probes the endpoint without paying for an embedding
func (e *HTTPEmbedder) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", e.apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding endpoint unreachable: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("embedding endpoint unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
