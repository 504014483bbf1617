// internal/memory/index_mem.go
package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// MemoryIndex is an embedded, in-process VectorIndex. It backs package tests
// and single-binary runs where no qdrant instance is available. Scans are
// linear; it is not meant for large corpora.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]*Memory
}

// NewMemoryIndex creates an empty in-process index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: make(map[string]*Memory)}
}

// Upsert stores a copy of the memory
func (x *MemoryIndex) Upsert(ctx context.Context, m *Memory) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	cp := *m
	cp.Embedding = append([]float32(nil), m.Embedding...)
	x.records[m.ID] = &cp
	return nil
}

// Get retrieves a single memory by ID
func (x *MemoryIndex) Get(ctx context.Context, id string) (*Memory, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	m, ok := x.records[id]
	if !ok {
		return nil, ErrMemoryNotFound
	}
	cp := *m
	return &cp, nil
}

// GetMany retrieves multiple memories, skipping missing IDs
func (x *MemoryIndex) GetMany(ctx context.Context, ids []string) ([]*Memory, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]*Memory, 0, len(ids))
	for _, id := range ids {
		if m, ok := x.records[id]; ok {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Search ranks active memories by cosine similarity to the query vector
func (x *MemoryIndex) Search(ctx context.Context, vector []float32, limit int) ([]ScoredMemory, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	results := make([]ScoredMemory, 0, len(x.records))
	for _, m := range x.records {
		if !m.Active() {
			continue
		}
		cp := *m
		results = append(results, ScoredMemory{
			Memory: &cp,
			Score:  CosineSimilarity(vector, m.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ListExpiredWorking returns working memories whose expiry has passed
func (x *MemoryIndex) ListExpiredWorking(ctx context.Context, now time.Time, limit int) ([]*Memory, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]*Memory, 0)
	for _, m := range x.records {
		if !m.Working || !m.Active() || m.ExpiresAt.IsZero() || !m.ExpiresAt.Before(now) {
			continue
		}
		cp := *m
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CosineSimilarity calculates similarity between two embeddings
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
