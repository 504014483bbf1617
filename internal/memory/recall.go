// internal/memory/recall.go
package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"
)

// FusionWeights are the relative contributions of each retrieval signal.
// Tunable product choices, preserved as named parameters.
type FusionWeights struct {
	Similarity float64 // Direct vector similarity to the query
	Neighbor   float64 // Expansion through precomputed neighbor lists
	Temporal   float64 // Co-residence in the seeds' episodes
	Importance float64 // Decay-adjusted importance
}

// DefaultFusionWeights returns the stock fusion weights
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{
		Similarity: 0.5,
		Neighbor:   0.3,
		Temporal:   0.15,
		Importance: 0.05,
	}
}

// RecallResult is one ranked hit with its score breakdown
type RecallResult struct {
	Memory     *Memory `json:"memory"`
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
	Neighbor   float64 `json:"neighbor"`
	Temporal   float64 `json:"temporal"`
	Importance float64 `json:"importance"`
}

// RecallEngine fuses vector similarity, neighbor expansion, temporal
// co-occurrence and decayed importance into one ranked read path. The fusion,
// not any single signal, is what makes retrieval feel associative.
type RecallEngine struct {
	index         VectorIndex
	embedder      Embedder
	neighborhoods *NeighborhoodCache
	segmenter     *Segmenter
	weights       FusionWeights
	seedLimit     int
}

// NewRecallEngine creates the recall engine. seedLimit bounds the initial
// similarity seed set.
func NewRecallEngine(index VectorIndex, embedder Embedder, neighborhoods *NeighborhoodCache, segmenter *Segmenter, weights FusionWeights, seedLimit int) *RecallEngine {
	if seedLimit < 1 {
		seedLimit = 5
	}
	return &RecallEngine{
		index:         index,
		embedder:      embedder,
		neighborhoods: neighborhoods,
		segmenter:     segmenter,
		weights:       weights,
		seedLimit:     seedLimit,
	}
}

type candidateSignals struct {
	similarity float64
	neighbor   float64
	temporal   float64
}

// Recall embeds the query, expands from similarity seeds through cached
// neighborhoods and shared episodes, and returns the top limit memories by
// fused score. Ordering is deterministic: descending score, ascending ID on
// ties. Archived and invalidated memories never appear.
func (r *RecallEngine) Recall(ctx context.Context, query string, limit int) ([]RecallResult, error) {
	if limit < 1 {
		limit = 10
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	seeds, err := r.index.Search(ctx, vec, r.seedLimit)
	if err != nil {
		return nil, fmt.Errorf("seed search failed: %w", err)
	}

	candidates := make(map[string]*candidateSignals)
	loaded := make(map[string]*Memory)
	signalsOf := func(id string) *candidateSignals {
		c, ok := candidates[id]
		if !ok {
			c = &candidateSignals{}
			candidates[id] = c
		}
		return c
	}

	for _, seed := range seeds {
		c := signalsOf(seed.Memory.ID)
		if seed.Score > c.similarity {
			c.similarity = seed.Score
		}
		loaded[seed.Memory.ID] = seed.Memory

		// Neighbor expansion: weight x seed similarity, stale lists served
		// as-is
		neighbors, err := r.neighborhoods.Get(ctx, seed.Memory.ID)
		if err != nil {
			return nil, fmt.Errorf("neighborhood lookup failed: %w", err)
		}
		for _, n := range neighbors {
			nc := signalsOf(n.MemoryID)
			expanded := n.Weight * seed.Score
			if expanded > nc.neighbor {
				nc.neighbor = expanded
			}
		}

		// Weak temporal candidates from the seed's episodes
		companions, err := r.segmenter.Companions(ctx, seed.Memory.ID)
		if err != nil {
			return nil, fmt.Errorf("episode lookup failed: %w", err)
		}
		for _, id := range companions {
			tc := signalsOf(id)
			if seed.Score > tc.temporal {
				tc.temporal = seed.Score
			}
		}
	}

	// Load candidates pulled in by expansion only
	var missing []string
	for id := range candidates {
		if _, ok := loaded[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	if len(missing) > 0 {
		fetched, err := r.index.GetMany(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("candidate fetch failed: %w", err)
		}
		for _, m := range fetched {
			loaded[m.ID] = m
		}
	}

	now := time.Now()
	results := make([]RecallResult, 0, len(candidates))
	for id, c := range candidates {
		m, ok := loaded[id]
		if !ok || !m.Active() {
			continue
		}

		importance := m.DecayedImportance(now)
		score := r.weights.Similarity*c.similarity +
			r.weights.Neighbor*c.neighbor +
			r.weights.Temporal*c.temporal +
			r.weights.Importance*importance

		results = append(results, RecallResult{
			Memory:     m,
			Score:      score,
			Similarity: c.similarity,
			Neighbor:   c.neighbor,
			Temporal:   c.temporal,
			Importance: importance,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}

	// Access stats are best effort, never a recall failure
	for _, res := range results {
		res.Memory.Touch(now)
		if err := r.index.Upsert(ctx, res.Memory); err != nil {
			log.Printf("[Recall] WARNING: failed to record access for %s: %v", res.Memory.ID, err)
		}
	}

	return results, nil
}
