// internal/memory/index.go
package memory

import (
	"context"
	"time"
)

// VectorIndex is the similarity index over memory embeddings. The qdrant
// implementation backs production; MemoryIndex backs tests and offline runs.
//
// Search returns only active memories, ordered by descending similarity.
// Archived and invalidated records never leave the index but are filtered at
// query time.
//
// Get wraps ErrMemoryNotFound for unknown IDs so callers can map the case
// with errors.Is; GetMany silently skips missing records instead.
type VectorIndex interface {
	Upsert(ctx context.Context, m *Memory) error
	Get(ctx context.Context, id string) (*Memory, error)
	GetMany(ctx context.Context, ids []string) ([]*Memory, error)
	Search(ctx context.Context, vector []float32, limit int) ([]ScoredMemory, error)
	ListExpiredWorking(ctx context.Context, now time.Time, limit int) ([]*Memory, error)
}
