// internal/belief/types.go
package belief

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Belief layers category, stability and confidence over a memory record.
// High-stability beliefs additionally carry a transformation state that gates
// content rewrites.
type Belief struct {
	ID          string  `gorm:"primaryKey" json:"id"`
	MemoryID    string  `gorm:"uniqueIndex;not null" json:"memory_id"`
	Category    string  `gorm:"not null;index" json:"category"`
	Stability   float64 `gorm:"not null;default:0.5" json:"stability"`  // 0.0-1.0
	Confidence  float64 `gorm:"not null;default:0.5" json:"confidence"` // 0.0-1.0
	Established bool    `gorm:"not null;default:false" json:"established"`

	// TransformationState, serialized. Mutated only through the gate.
	Transformation datatypes.JSON `gorm:"not null;default:'{}'" json:"transformation"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Belief) TableName() string {
	return "psyche_beliefs"
}

// TransformationState tracks one belief's progress toward a deliberate
// content rewrite. Effort only accumulates while ActiveExploration is true.
type TransformationState struct {
	ActiveExploration    bool      `json:"active_exploration"`
	ExplorationGoalID    string    `json:"exploration_goal_id,omitempty"`
	EvidenceIDs          []string  `json:"evidence_ids,omitempty"`
	ReflectionCount      int       `json:"reflection_count"`
	FirstQuestioned      time.Time `json:"first_questioned,omitzero"`
	FirstQuestionedCycle int64     `json:"first_questioned_cycle"`
	ContemplationActions int       `json:"contemplation_actions"`
}

// State decodes the embedded transformation state
func (b *Belief) State() (TransformationState, error) {
	var st TransformationState
	if len(b.Transformation) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(b.Transformation, &st); err != nil {
		return st, fmt.Errorf("failed to decode transformation state: %w", err)
	}
	return st, nil
}

// SetState encodes the transformation state back onto the row
func (b *Belief) SetState(st TransformationState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode transformation state: %w", err)
	}
	b.Transformation = datatypes.JSON(raw)
	return nil
}

// Change is one append-only change-history entry recording a prior content
// swap
type Change struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BeliefID   string    `gorm:"not null;index" json:"belief_id"`
	OldContent string    `gorm:"type:text;not null" json:"old_content"`
	NewContent string    `gorm:"type:text;not null" json:"new_content"`
	Mechanism  string    `gorm:"not null" json:"mechanism"` // "transformation" or "calibration"
	Cycle      int64     `gorm:"not null" json:"cycle"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Change) TableName() string {
	return "psyche_belief_changes"
}

// Goal is a lightweight goal record layered on a memory, used here to anchor
// exploration of a belief
type Goal struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	MemoryID  string    `gorm:"index" json:"memory_id"`
	Title     string    `gorm:"not null" json:"title"`
	Status    string    `gorm:"not null;default:'open';index" json:"status"` // open|done|abandoned
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Goal) TableName() string {
	return "psyche_goals"
}

// EffortKind names one way of working on an exploration
type EffortKind string

const (
	EffortReflection    EffortKind = "reflection"
	EffortContemplation EffortKind = "contemplation"
	EffortJournaling    EffortKind = "journaling" // Valued at double weight
)

// ReflectionIncrement maps an effort kind to its fixed reflection-count
// increment
func ReflectionIncrement(kind EffortKind) (int, error) {
	switch kind {
	case EffortReflection, EffortContemplation:
		return 1, nil
	case EffortJournaling:
		return 2, nil
	default:
		return 0, fmt.Errorf("unknown effort kind: %s", kind)
	}
}

// CategoryThresholds are the quantitative gating conditions for one belief
// category
type CategoryThresholds struct {
	MinReflections    int     `json:"min_reflections"`
	MinHeartbeats     int64   `json:"min_heartbeats"` // Elapsed scheduler cycles, not raw time
	EvidenceThreshold float64 `json:"evidence_threshold"`
}

// DefaultThresholds returns the stock gating conditions per category
func DefaultThresholds(category string) CategoryThresholds {
	switch category {
	case "core_identity":
		return CategoryThresholds{MinReflections: 50, MinHeartbeats: 100, EvidenceThreshold: 0.95}
	case "worldview":
		return CategoryThresholds{MinReflections: 30, MinHeartbeats: 50, EvidenceThreshold: 0.9}
	case "preference":
		return CategoryThresholds{MinReflections: 10, MinHeartbeats: 20, EvidenceThreshold: 0.8}
	default:
		return CategoryThresholds{MinReflections: 20, MinHeartbeats: 30, EvidenceThreshold: 0.85}
	}
}

// ThresholdSource resolves gating conditions for a category. Production wires
// this to the durable settings store; DefaultThresholds is the fallback.
type ThresholdSource func(category string) CategoryThresholds
