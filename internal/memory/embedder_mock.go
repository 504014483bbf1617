// internal/memory/embedder_mock.go
package memory

import (
	"context"
	"hash/fnv"
	"math"
)

// MockEmbedder generates deterministic embeddings from a text hash. It stands
// in for the real embedding endpoint in tests and offline runs.
type MockEmbedder struct {
	dimensions int
	failNext   error
}

// NewMockEmbedder creates a mock embedder with the given dimensionality
func NewMockEmbedder(dimensions int) *MockEmbedder {
	return &MockEmbedder{dimensions: dimensions}
}

// Dimensions returns the embedding size
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

// FailNext makes the next Embed call return err, then clears itself
func (m *MockEmbedder) FailNext(err error) {
	m.failNext = err
}

// Embed creates a deterministic unit vector from the text hash
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return nil, err
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		// Linear congruential step keeps the output stable per input text
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1.0 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}

	return vec, nil
}

// Health always reports healthy
func (m *MockEmbedder) Health(ctx context.Context) error {
	return nil
}
