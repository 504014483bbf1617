// internal/memory/store.go
package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrMemoryNotFound is returned when an ID resolves to no stored memory
var ErrMemoryNotFound = errors.New("memory not found")

// CreateParams describe one new memory
type CreateParams struct {
	Kind       Kind
	Content    string
	Importance float64
	Trust      *float64 // nil = default by kind
	DecayRate  float64
	Working    bool
	TTL        time.Duration // Only for working memories
	Extension  Extension
}

// Store is the durable memory store: the vector index plus the episode and
// neighborhood layers that every creation must touch
type Store struct {
	index         VectorIndex
	embedder      Embedder
	segmenter     *Segmenter
	neighborhoods *NeighborhoodCache
}

// NewStore assembles the memory store
func NewStore(index VectorIndex, embedder Embedder, segmenter *Segmenter, neighborhoods *NeighborhoodCache) *Store {
	return &Store{
		index:         index,
		embedder:      embedder,
		segmenter:     segmenter,
		neighborhoods: neighborhoods,
	}
}

// Index exposes the underlying vector index
func (s *Store) Index() VectorIndex {
	return s.index
}

// Segmenter exposes the episode layer
func (s *Store) Segmenter() *Segmenter {
	return s.segmenter
}

// Neighborhoods exposes the neighborhood cache
func (s *Store) Neighborhoods() *NeighborhoodCache {
	return s.neighborhoods
}

// Embed produces an embedding for arbitrary text using the store's embedder,
// enforcing the configured dimension
func (s *Store) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vec) != s.embedder.Dimensions() {
		return nil, fmt.Errorf("embedder returned %d dimensions, expected %d", len(vec), s.embedder.Dimensions())
	}
	return vec, nil
}

// Create validates, embeds, and persists one memory, assigns it to an episode
// and seeds a stale neighborhood placeholder. Embedding failures abort before
// anything is written.
func (s *Store) Create(ctx context.Context, p CreateParams) (string, error) {
	if strings.TrimSpace(p.Content) == "" {
		return "", fmt.Errorf("memory content must not be empty")
	}
	if err := ValidateKind(string(p.Kind)); err != nil {
		return "", err
	}
	if err := p.Extension.Validate(p.Kind); err != nil {
		return "", err
	}

	// Embed before persisting anything: an unreachable boundary or a
	// wrong-dimension vector leaves no partial record behind
	vec, err := s.embedder.Embed(ctx, p.Content)
	if err != nil {
		return "", fmt.Errorf("failed to embed memory content: %w", err)
	}
	if len(vec) != s.embedder.Dimensions() {
		return "", fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), s.embedder.Dimensions())
	}

	trust := DefaultTrust(p.Kind)
	if p.Trust != nil {
		trust = *p.Trust
	}

	now := time.Now()
	m := &Memory{
		ID:             uuid.New().String(),
		Kind:           p.Kind,
		Status:         StatusActive,
		Content:        p.Content,
		Embedding:      vec,
		Importance:     clamp01(p.Importance),
		Trust:          clamp01(trust),
		DecayRate:      p.DecayRate,
		CreatedAt:      now,
		LastAccessedAt: now,
		Working:        p.Working,
		Extension:      p.Extension,
	}
	if p.Working && p.TTL > 0 {
		m.ExpiresAt = now.Add(p.TTL)
	}

	if err := s.index.Upsert(ctx, m); err != nil {
		return "", fmt.Errorf("failed to persist memory: %w", err)
	}

	if _, err := s.segmenter.Assign(ctx, m.ID, now); err != nil {
		// Compensate: the half-created record must not surface in recall
		s.invalidateQuietly(ctx, m)
		return "", fmt.Errorf("failed to assign episode: %w", err)
	}

	if err := s.neighborhoods.Seed(ctx, m.ID); err != nil {
		s.invalidateQuietly(ctx, m)
		return "", fmt.Errorf("failed to seed neighborhood: %w", err)
	}

	return m.ID, nil
}

// Get retrieves one memory by ID
func (s *Store) Get(ctx context.Context, id string) (*Memory, error) {
	return s.index.Get(ctx, id)
}

// Touch records an access and persists the updated stats
func (s *Store) Touch(ctx context.Context, id string) error {
	m, err := s.index.Get(ctx, id)
	if err != nil {
		return err
	}
	m.Touch(time.Now())
	return s.index.Upsert(ctx, m)
}

// SetImportance updates importance and marks the memory's own neighborhood
// stale
func (s *Store) SetImportance(ctx context.Context, id string, importance float64) error {
	m, err := s.index.Get(ctx, id)
	if err != nil {
		return err
	}
	m.Importance = clamp01(importance)
	if err := s.index.Upsert(ctx, m); err != nil {
		return err
	}
	return s.neighborhoods.MarkStale(ctx, id)
}

// Archive retires a memory from recall without deleting it
func (s *Store) Archive(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusArchived)
}

// Invalidate marks a memory as no longer believed
func (s *Store) Invalidate(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusInvalidated)
}

// Promote clears the working flag so maintenance keeps the memory
func (s *Store) Promote(ctx context.Context, id string) error {
	m, err := s.index.Get(ctx, id)
	if err != nil {
		return err
	}
	m.Working = false
	m.Promote = false
	m.ExpiresAt = time.Time{}
	return s.index.Upsert(ctx, m)
}

func (s *Store) setStatus(ctx context.Context, id string, status Status) error {
	m, err := s.index.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Status == status {
		return nil
	}
	m.Status = status
	if err := s.index.Upsert(ctx, m); err != nil {
		return err
	}
	// Status changes invalidate the memory's own neighborhood, not its
	// neighbors'
	return s.neighborhoods.MarkStale(ctx, id)
}

func (s *Store) invalidateQuietly(ctx context.Context, m *Memory) {
	m.Status = StatusInvalidated
	if err := s.index.Upsert(ctx, m); err != nil {
		log.Printf("[Store] WARNING: failed to invalidate half-created memory %s: %v", m.ID, err)
	}
}
