// internal/belief/gate.go
package belief

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go-psyche/internal/memory"
)

// Gate failure names. Attempt results cite these rather than raising errors:
// an unmet condition is an expected state, not a bug.
const (
	GateActiveExploration = "active_exploration"
	GateMinReflections    = "min_reflections"
	GateMinHeartbeats     = "min_heartbeats"
	GateEvidenceStrength  = "evidence_strength"
)

// ErrNotExploring is returned when effort is recorded against a belief that
// has no active exploration
var ErrNotExploring = errors.New("belief has no active exploration")

// ErrBeliefNotFound is returned when an ID resolves to no belief row
var ErrBeliefNotFound = errors.New("belief not found")

// GateCheck reports one gate's status and a 0-1 progress fraction
type GateCheck struct {
	Gate      string  `json:"gate"`
	Satisfied bool    `json:"satisfied"`
	Progress  float64 `json:"progress"`
}

// AttemptResult is the structured outcome of a transformation attempt. A
// failed attempt names the first unmet gate and reports progress on all four.
type AttemptResult struct {
	Transformed bool        `json:"transformed"`
	FailedGate  string      `json:"failed_gate,omitempty"`
	Gates       []GateCheck `json:"gates"`
}

// Gate is the state machine that controls when a high-stability belief's
// content may change
type Gate struct {
	db         *gorm.DB
	store      *memory.Store
	thresholds ThresholdSource

	// Calibration path constants: the lighter bar for never-established
	// beliefs
	calibrationMinEvidence int
	calibrationMinStrength float64
}

// NewGate creates the transformation gate
func NewGate(db *gorm.DB, store *memory.Store, thresholds ThresholdSource) *Gate {
	if thresholds == nil {
		thresholds = DefaultThresholds
	}
	return &Gate{
		db:                     db,
		store:                  store,
		thresholds:             thresholds,
		calibrationMinEvidence: 3,
		calibrationMinStrength: 0.5,
	}
}

// CreateBelief persists a new belief: one memory record plus the belief row.
// Fresh beliefs start unestablished at neutral confidence.
func (g *Gate) CreateBelief(ctx context.Context, content, category string, stability float64) (*Belief, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("belief content must not be empty")
	}

	memID, err := g.store.Create(ctx, memory.CreateParams{
		Kind:       memory.KindSemantic,
		Content:    content,
		Importance: stability,
		Extension: memory.Extension{Semantic: &memory.SemanticExt{
			Confidence: 0.5,
			Categories: []string{category},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create belief memory: %w", err)
	}

	b := &Belief{
		ID:         uuid.New().String(),
		MemoryID:   memID,
		Category:   category,
		Stability:  stability,
		Confidence: 0.5,
	}
	if err := b.SetState(TransformationState{}); err != nil {
		return nil, err
	}
	if err := g.db.WithContext(ctx).Create(b).Error; err != nil {
		return nil, fmt.Errorf("failed to create belief row: %w", err)
	}

	return b, nil
}

// GetBelief loads one belief by ID
func (g *Gate) GetBelief(ctx context.Context, beliefID string) (*Belief, error) {
	var b Belief
	err := g.db.WithContext(ctx).First(&b, "id = ?", beliefID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrBeliefNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load belief: %w", err)
	}
	return &b, nil
}

// ConfidenceOf implements memory.BeliefLookup: it resolves a memory ID to its
// belief confidence, if the memory backs a belief
func (g *Gate) ConfidenceOf(ctx context.Context, memoryID string) (float64, bool, error) {
	var b Belief
	err := g.db.WithContext(ctx).First(&b, "memory_id = ?", memoryID).Error
	if err == gorm.ErrRecordNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up belief: %w", err)
	}
	return b.Confidence, true, nil
}

// ApplyEvidenceDelta nudges a belief's confidence by delta, bounded to [0,1]
func (g *Gate) ApplyEvidenceDelta(ctx context.Context, beliefID string, delta float64) error {
	b, err := g.GetBelief(ctx, beliefID)
	if err != nil {
		return err
	}

	conf := b.Confidence + delta
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	if err := g.db.WithContext(ctx).Model(&Belief{}).
		Where("id = ?", beliefID).
		Update("confidence", conf).Error; err != nil {
		return fmt.Errorf("failed to update belief confidence: %w", err)
	}
	return nil
}

// BeginExploration moves a belief from dormant to exploring. The caller must
// name an open exploration goal; questioning starts the wall-clock and cycle
// counters the heartbeat gate measures against.
func (g *Gate) BeginExploration(ctx context.Context, beliefID, goalID string, currentCycle int64) error {
	b, err := g.GetBelief(ctx, beliefID)
	if err != nil {
		return err
	}
	if goalID == "" {
		return fmt.Errorf("exploration requires a named goal")
	}
	goal, err := g.GetGoal(ctx, goalID)
	if err != nil {
		return err
	}
	if goal.Status != GoalOpen {
		return ErrGoalClosed
	}

	st, err := b.State()
	if err != nil {
		return err
	}
	if st.ActiveExploration {
		return nil // Already exploring: idempotent
	}

	st = TransformationState{
		ActiveExploration:    true,
		ExplorationGoalID:    goalID,
		FirstQuestioned:      time.Now(),
		FirstQuestionedCycle: currentCycle,
	}
	return g.saveState(ctx, b, st)
}

// RecordEffort accumulates reflection effort and evidence against an active
// exploration. Effort against a dormant belief is refused.
func (g *Gate) RecordEffort(ctx context.Context, beliefID string, kind EffortKind, evidenceIDs []string) error {
	increment, err := ReflectionIncrement(kind)
	if err != nil {
		return err
	}

	b, err := g.GetBelief(ctx, beliefID)
	if err != nil {
		return err
	}
	st, err := b.State()
	if err != nil {
		return err
	}
	if !st.ActiveExploration {
		return ErrNotExploring
	}

	st.ReflectionCount += increment
	if kind == EffortContemplation {
		st.ContemplationActions++
	}

	have := make(map[string]bool, len(st.EvidenceIDs))
	for _, id := range st.EvidenceIDs {
		have[id] = true
	}
	for _, id := range evidenceIDs {
		if !have[id] {
			st.EvidenceIDs = append(st.EvidenceIDs, id)
			have[id] = true
		}
	}

	return g.saveState(ctx, b, st)
}

// Attempt evaluates all four gates and, only if every one passes, rewrites the
// belief's content, appends one change-history entry, and resets the state to
// dormant. A failed attempt mutates nothing and names the first unmet gate.
func (g *Gate) Attempt(ctx context.Context, beliefID, newContent string, currentCycle int64) (AttemptResult, error) {
	if strings.TrimSpace(newContent) == "" {
		return AttemptResult{}, fmt.Errorf("replacement content must not be empty")
	}

	b, err := g.GetBelief(ctx, beliefID)
	if err != nil {
		return AttemptResult{}, err
	}
	st, err := b.State()
	if err != nil {
		return AttemptResult{}, err
	}

	th := g.thresholds(b.Category)
	checks := make([]GateCheck, 0, 4)

	// Gate 1: must be exploring
	exploring := GateCheck{Gate: GateActiveExploration, Satisfied: st.ActiveExploration}
	if st.ActiveExploration {
		exploring.Progress = 1
	}
	checks = append(checks, exploring)

	// Gate 2: accumulated reflections
	checks = append(checks, progressCheck(GateMinReflections,
		float64(st.ReflectionCount), float64(th.MinReflections)))

	// Gate 3: elapsed heartbeat cycles since first questioned
	elapsed := currentCycle - st.FirstQuestionedCycle
	if !st.ActiveExploration {
		elapsed = 0
	}
	checks = append(checks, progressCheck(GateMinHeartbeats,
		float64(elapsed), float64(th.MinHeartbeats)))

	// Gate 4: mean evidence strength (importance x trust)
	strength, err := g.meanEvidenceStrength(ctx, st.EvidenceIDs)
	if err != nil {
		return AttemptResult{}, err
	}
	checks = append(checks, progressCheck(GateEvidenceStrength,
		strength, th.EvidenceThreshold))

	for _, c := range checks {
		if !c.Satisfied {
			return AttemptResult{Transformed: false, FailedGate: c.Gate, Gates: checks}, nil
		}
	}

	// All four gates pass: rewrite content, log the change, reset to dormant.
	// Everything happens inside one transaction so a failure leaves the state
	// untouched.
	mem, err := g.store.Get(ctx, b.MemoryID)
	if err != nil {
		return AttemptResult{}, fmt.Errorf("failed to load belief memory: %w", err)
	}
	oldContent := mem.Content

	if err := g.rewriteMemoryContent(ctx, mem, newContent); err != nil {
		return AttemptResult{}, err
	}

	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		change := Change{
			BeliefID:   b.ID,
			OldContent: oldContent,
			NewContent: newContent,
			Mechanism:  "transformation",
			Cycle:      currentCycle,
		}
		if cerr := tx.Create(&change).Error; cerr != nil {
			return fmt.Errorf("failed to append change history: %w", cerr)
		}

		if serr := b.SetState(TransformationState{}); serr != nil {
			return serr
		}
		if uerr := tx.Model(&Belief{}).Where("id = ?", b.ID).
			Updates(map[string]interface{}{
				"transformation": b.Transformation,
				"established":    true,
			}).Error; uerr != nil {
			return fmt.Errorf("failed to reset transformation state: %w", uerr)
		}
		return nil
	})
	if err != nil {
		// Compensate the already-rewritten memory so no partial state leaks
		if rerr := g.rewriteMemoryContent(ctx, mem, oldContent); rerr != nil {
			log.Printf("[Gate] ERROR: failed to restore belief memory %s after aborted attempt: %v", mem.ID, rerr)
		}
		return AttemptResult{}, err
	}

	log.Printf("[Gate] Belief %s transformed after %d reflections (%s)", b.ID, st.ReflectionCount, b.Category)
	return AttemptResult{Transformed: true, Gates: checks}, nil
}

// meanEvidenceStrength averages importance x trust over the evidence set.
// An empty set scores zero.
func (g *Gate) meanEvidenceStrength(ctx context.Context, evidenceIDs []string) (float64, error) {
	if len(evidenceIDs) == 0 {
		return 0, nil
	}

	memories, err := g.store.Index().GetMany(ctx, evidenceIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to load evidence memories: %w", err)
	}
	if len(memories) == 0 {
		return 0, nil
	}

	var sum float64
	for _, m := range memories {
		sum += m.Importance * m.Trust
	}
	return sum / float64(len(memories)), nil
}

// rewriteMemoryContent swaps a memory's content, re-embeds it, and marks the
// neighborhood stale. The embed happens first so boundary failures abort
// cleanly.
func (g *Gate) rewriteMemoryContent(ctx context.Context, mem *memory.Memory, newContent string) error {
	vec, err := g.store.Embed(ctx, newContent)
	if err != nil {
		return fmt.Errorf("failed to embed replacement content: %w", err)
	}

	mem.Content = newContent
	mem.Embedding = vec
	if err := g.store.Index().Upsert(ctx, mem); err != nil {
		return fmt.Errorf("failed to persist rewritten belief memory: %w", err)
	}
	return g.store.Neighborhoods().MarkStale(ctx, mem.ID)
}

func (g *Gate) saveState(ctx context.Context, b *Belief, st TransformationState) error {
	if err := b.SetState(st); err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Model(&Belief{}).
		Where("id = ?", b.ID).
		Update("transformation", b.Transformation).Error; err != nil {
		return fmt.Errorf("failed to save transformation state: %w", err)
	}
	return nil
}

func progressCheck(gate string, have, want float64) GateCheck {
	if want <= 0 {
		return GateCheck{Gate: gate, Satisfied: true, Progress: 1}
	}
	progress := have / want
	if progress > 1 {
		progress = 1
	}
	if progress < 0 {
		progress = 0
	}
	return GateCheck{Gate: gate, Satisfied: have >= want, Progress: progress}
}
