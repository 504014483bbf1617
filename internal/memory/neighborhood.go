// internal/memory/neighborhood.go
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/dgraph-io/ristretto"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Neighbor is one entry in a precomputed nearest-neighbor list
type Neighbor struct {
	MemoryID string  `json:"memory_id"`
	Weight   float64 `json:"weight"`
}

// Neighborhood is the cached neighbor list for one memory. It replaces live
// graph spreading-activation on the read path: readers may see a stale list,
// maintenance recomputes it asynchronously.
type Neighborhood struct {
	MemoryID   string         `gorm:"primaryKey" json:"memory_id"`
	Neighbors  datatypes.JSON `gorm:"not null;default:'[]'" json:"neighbors"`
	ComputedAt time.Time      `json:"computed_at"`
	Stale      bool           `gorm:"not null;default:true;index" json:"stale"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Neighborhood) TableName() string {
	return "psyche_neighborhoods"
}

// NeighborhoodCache owns neighborhood rows plus an in-process hot cache in
// front of them
type NeighborhoodCache struct {
	db    *gorm.DB
	index VectorIndex
	hot   *ristretto.Cache
	topK  int
}

// NewNeighborhoodCache creates the cache layer. topK bounds how many neighbors
// each memory keeps.
func NewNeighborhoodCache(db *gorm.DB, index VectorIndex, topK int) (*NeighborhoodCache, error) {
	hot, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create neighborhood hot cache: %w", err)
	}

	return &NeighborhoodCache{
		db:    db,
		index: index,
		hot:   hot,
		topK:  topK,
	}, nil
}

// Seed creates a stale placeholder for a freshly created memory
func (nc *NeighborhoodCache) Seed(ctx context.Context, memoryID string) error {
	row := Neighborhood{
		MemoryID:  memoryID,
		Neighbors: datatypes.JSON([]byte("[]")),
		Stale:     true,
	}
	if err := nc.db.WithContext(ctx).FirstOrCreate(&row, Neighborhood{MemoryID: memoryID}).Error; err != nil {
		return fmt.Errorf("failed to seed neighborhood: %w", err)
	}
	return nil
}

// MarkStale flags one memory's neighborhood for recomputation. Only the
// memory's own record is invalidated, never its neighbors'.
func (nc *NeighborhoodCache) MarkStale(ctx context.Context, memoryID string) error {
	if err := nc.db.WithContext(ctx).Model(&Neighborhood{}).
		Where("memory_id = ?", memoryID).
		Update("stale", true).Error; err != nil {
		return fmt.Errorf("failed to mark neighborhood stale: %w", err)
	}
	nc.hot.Del(memoryID)
	return nil
}

// Get returns the neighbor list for a memory. Stale lists are served as-is;
// staleness is corrected by maintenance, never by readers.
func (nc *NeighborhoodCache) Get(ctx context.Context, memoryID string) ([]Neighbor, error) {
	if cached, ok := nc.hot.Get(memoryID); ok {
		if neighbors, ok := cached.([]Neighbor); ok {
			return neighbors, nil
		}
	}

	var row Neighborhood
	err := nc.db.WithContext(ctx).First(&row, "memory_id = ?", memoryID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load neighborhood: %w", err)
	}

	var neighbors []Neighbor
	if err := json.Unmarshal(row.Neighbors, &neighbors); err != nil {
		return nil, fmt.Errorf("failed to decode neighborhood: %w", err)
	}

	if !row.Stale {
		nc.hot.Set(memoryID, neighbors, 1)
	}
	return neighbors, nil
}

// StaleCount returns how many neighborhoods await recomputation
func (nc *NeighborhoodCache) StaleCount(ctx context.Context) (int64, error) {
	var n int64
	if err := nc.db.WithContext(ctx).Model(&Neighborhood{}).Where("stale = ?", true).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count stale neighborhoods: %w", err)
	}
	return n, nil
}

// RecomputeBatch recomputes up to limit stale neighborhoods by re-ranking the
// embedding index around each target. Non-stale records are never touched, so
// repeated invocations against an unchanged index are idempotent.
func (nc *NeighborhoodCache) RecomputeBatch(ctx context.Context, limit int) (int, error) {
	var stale []Neighborhood
	if err := nc.db.WithContext(ctx).
		Where("stale = ?", true).
		Order("updated_at ASC").
		Limit(limit).
		Find(&stale).Error; err != nil {
		return 0, fmt.Errorf("failed to list stale neighborhoods: %w", err)
	}

	recomputed := 0
	for i := range stale {
		if err := nc.recomputeOne(ctx, stale[i].MemoryID); err != nil {
			log.Printf("[Neighborhood] ERROR: recompute failed for %s: %v", stale[i].MemoryID, err)
			continue
		}
		recomputed++
	}

	return recomputed, nil
}

// recomputeOne rebuilds one neighbor list from the embedding index
func (nc *NeighborhoodCache) recomputeOne(ctx context.Context, memoryID string) error {
	target, err := nc.index.Get(ctx, memoryID)
	if err != nil {
		return fmt.Errorf("failed to load target memory: %w", err)
	}

	if !target.Active() {
		// A non-active memory keeps an empty, non-stale neighborhood
		return nc.write(ctx, memoryID, nil)
	}

	// +1 because the target itself ranks first in its own neighborhood
	results, err := nc.index.Search(ctx, target.Embedding, nc.topK+1)
	if err != nil {
		return fmt.Errorf("index search failed: %w", err)
	}

	neighbors := make([]Neighbor, 0, nc.topK)
	for _, r := range results {
		if r.Memory.ID == memoryID {
			continue
		}
		neighbors = append(neighbors, Neighbor{MemoryID: r.Memory.ID, Weight: r.Score})
		if len(neighbors) >= nc.topK {
			break
		}
	}

	return nc.write(ctx, memoryID, neighbors)
}

func (nc *NeighborhoodCache) write(ctx context.Context, memoryID string, neighbors []Neighbor) error {
	if neighbors == nil {
		neighbors = []Neighbor{}
	}
	raw, err := json.Marshal(neighbors)
	if err != nil {
		return fmt.Errorf("failed to encode neighborhood: %w", err)
	}

	if err := nc.db.WithContext(ctx).Model(&Neighborhood{}).
		Where("memory_id = ?", memoryID).
		Updates(map[string]interface{}{
			"neighbors":   datatypes.JSON(raw),
			"computed_at": time.Now(),
			"stale":       false,
		}).Error; err != nil {
		return fmt.Errorf("failed to store neighborhood: %w", err)
	}

	nc.hot.Set(memoryID, neighbors, 1)
	return nil
}
