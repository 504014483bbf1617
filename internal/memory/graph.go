// internal/memory/graph.go
package memory

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Relation types for memory-to-memory edges
type Relation string

const (
	RelSupports    Relation = "supports"
	RelContradicts Relation = "contradicts"
	RelDerivedFrom Relation = "derived_from"
)

// ValidateRelation checks a relation string
func ValidateRelation(r string) error {
	switch Relation(r) {
	case RelSupports, RelContradicts, RelDerivedFrom:
		return nil
	default:
		return fmt.Errorf("invalid relation: %s (must be 'supports', 'contradicts', or 'derived_from')", r)
	}
}

// MemoryEdge is one typed, weighted edge between two memories. Edges live in
// their own table, never as in-memory pointers, so cycles are harmless.
type MemoryEdge struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FromID    string    `gorm:"not null;index:idx_edge_from;index:idx_edge_pair,unique" json:"from_id"`
	ToID      string    `gorm:"not null;index:idx_edge_to;index:idx_edge_pair,unique" json:"to_id"`
	Relation  Relation  `gorm:"not null;index:idx_edge_pair,unique" json:"relation"`
	Weight    float64   `gorm:"not null;default:1.0" json:"weight"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (MemoryEdge) TableName() string {
	return "psyche_memory_edges"
}

// Graph holds typed relationships between memories
type Graph struct {
	db *gorm.DB
}

// NewGraph creates a graph over the given database
func NewGraph(db *gorm.DB) *Graph {
	return &Graph{db: db}
}

// Link records an edge, updating the weight if the edge already exists
func (g *Graph) Link(ctx context.Context, fromID, toID string, rel Relation, weight float64) error {
	if err := ValidateRelation(string(rel)); err != nil {
		return err
	}
	if fromID == toID {
		return fmt.Errorf("self-edge rejected for memory %s", fromID)
	}

	edge := MemoryEdge{FromID: fromID, ToID: toID, Relation: rel, Weight: weight}
	err := g.db.WithContext(ctx).
		Where("from_id = ? AND to_id = ? AND relation = ?", fromID, toID, rel).
		Assign(map[string]interface{}{"weight": weight}).
		FirstOrCreate(&edge).Error
	if err != nil {
		return fmt.Errorf("failed to store edge: %w", err)
	}
	return nil
}

// Edges returns the outgoing edges of a memory, optionally filtered by relation
func (g *Graph) Edges(ctx context.Context, fromID string, rel Relation) ([]MemoryEdge, error) {
	q := g.db.WithContext(ctx).Where("from_id = ?", fromID)
	if rel != "" {
		q = q.Where("relation = ?", rel)
	}

	var edges []MemoryEdge
	if err := q.Order("weight DESC").Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	return edges, nil
}

// Reachable walks outgoing edges breadth-first up to maxDepth and returns the
// visited memory IDs (excluding the start). Depth bounding keeps cyclic graphs
// cheap to traverse.
func (g *Graph) Reachable(ctx context.Context, startID string, rel Relation, maxDepth int) ([]string, error) {
	if maxDepth < 1 {
		return nil, nil
	}

	visited := map[string]bool{startID: true}
	frontier := []string{startID}
	var order []string

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			edges, err := g.Edges(ctx, id, rel)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				if visited[e.ToID] {
					continue
				}
				visited[e.ToID] = true
				order = append(order, e.ToID)
				next = append(next, e.ToID)
			}
		}
		frontier = next
	}

	return order, nil
}
