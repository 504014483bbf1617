// internal/memory/types.go
package memory

import (
	"fmt"
	"math"
	"time"
)

// Kind classifies what a memory records
type Kind string

const (
	KindEpisodic   Kind = "episodic"   // Experienced events
	KindSemantic   Kind = "semantic"   // Asserted facts
	KindProcedural Kind = "procedural" // Skills / how-to knowledge
	KindStrategic  Kind = "strategic"  // Learned patterns across experiences
)

// Status tracks a memory's lifecycle. Memories are never hard-deleted.
type Status string

const (
	StatusActive      Status = "active"
	StatusArchived    Status = "archived"
	StatusInvalidated Status = "invalidated"
)

// ValidateKind checks a kind string
func ValidateKind(k string) error {
	switch Kind(k) {
	case KindEpisodic, KindSemantic, KindProcedural, KindStrategic:
		return nil
	default:
		return fmt.Errorf("invalid memory kind: %s (must be 'episodic', 'semantic', 'procedural', or 'strategic')", k)
	}
}

// DefaultTrust returns the starting trust for a kind when none is supplied.
// Experienced events are trusted, asserted facts start low until evidenced,
// skills and patterns start in the middle.
func DefaultTrust(k Kind) float64 {
	switch k {
	case KindEpisodic:
		return 0.9
	case KindSemantic:
		return 0.3
	default:
		return 0.6
	}
}

// SourceRef identifies one piece of evidence behind a semantic memory
type SourceRef struct {
	SourceID   string    `json:"source_id"`
	Trust      float64   `json:"trust"`
	ObservedAt time.Time `json:"observed_at"`
}

// EpisodicExt carries the kind-specific fields of an episodic memory
type EpisodicExt struct {
	Valence float64 `json:"valence"` // Emotional tone, -1.0 to 1.0
	Context string  `json:"context,omitempty"`
	Result  string  `json:"result,omitempty"`
}

// SemanticExt carries the kind-specific fields of a semantic memory
type SemanticExt struct {
	Confidence float64     `json:"confidence"`
	Sources    []SourceRef `json:"sources,omitempty"`
	Categories []string    `json:"categories,omitempty"`
}

// ProceduralExt carries the kind-specific fields of a procedural memory
type ProceduralExt struct {
	Steps     []string `json:"steps,omitempty"`
	Successes int      `json:"successes"`
	Attempts  int      `json:"attempts"`
}

// StrategicExt carries the kind-specific fields of a strategic memory
type StrategicExt struct {
	Pattern  string   `json:"pattern"`
	Evidence []string `json:"evidence,omitempty"` // Supporting memory IDs
}

// Extension is the tagged union of per-kind metadata. Exactly one variant
// should be set, matching the memory's kind. Extra carries forward-compatible
// fields that have no typed home yet.
type Extension struct {
	Episodic   *EpisodicExt           `json:"episodic,omitempty"`
	Semantic   *SemanticExt           `json:"semantic,omitempty"`
	Procedural *ProceduralExt         `json:"procedural,omitempty"`
	Strategic  *StrategicExt          `json:"strategic,omitempty"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

// Validate checks that the extension variant matches the kind
func (e *Extension) Validate(k Kind) error {
	switch k {
	case KindEpisodic:
		if e.Semantic != nil || e.Procedural != nil || e.Strategic != nil {
			return fmt.Errorf("episodic memory carries a non-episodic extension")
		}
	case KindSemantic:
		if e.Episodic != nil || e.Procedural != nil || e.Strategic != nil {
			return fmt.Errorf("semantic memory carries a non-semantic extension")
		}
	case KindProcedural:
		if e.Episodic != nil || e.Semantic != nil || e.Strategic != nil {
			return fmt.Errorf("procedural memory carries a non-procedural extension")
		}
	case KindStrategic:
		if e.Episodic != nil || e.Semantic != nil || e.Procedural != nil {
			return fmt.Errorf("strategic memory carries a non-strategic extension")
		}
	}
	return nil
}

// Memory is the durable primitive everything else is layered on
type Memory struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	Status         Status    `json:"status"`
	Content        string    `json:"content"`
	Embedding      []float32 `json:"-"`          // Not serialized
	Importance     float64   `json:"importance"` // 0.0-1.0
	Trust          float64   `json:"trust"`      // 0.0-1.0
	DecayRate      float64   `json:"decay_rate"` // Per-day relevance decay
	AccessCount    int       `json:"access_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// Working memories are short-lived until maintenance promotes or evicts them
	Working   bool      `json:"working"`
	Promote   bool      `json:"promote"` // Explicit promotion request
	ExpiresAt time.Time `json:"expires_at,omitzero"`

	Extension Extension `json:"extension"`
}

// Active reports whether the memory may appear in recall results
func (m *Memory) Active() bool {
	return m.Status == StatusActive
}

// DecayedImportance returns importance discounted by time since last access.
// A decay rate of 0 leaves importance untouched.
func (m *Memory) DecayedImportance(now time.Time) float64 {
	days := now.Sub(m.LastAccessedAt).Hours() / 24.0
	if days < 0 {
		days = 0
	}
	return m.Importance * math.Exp(-m.DecayRate*days)
}

// Touch records one retrieval of this memory
func (m *Memory) Touch(now time.Time) {
	m.AccessCount++
	m.LastAccessedAt = now
}

// ScoredMemory pairs a memory with a retrieval score
type ScoredMemory struct {
	Memory *Memory
	Score  float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
