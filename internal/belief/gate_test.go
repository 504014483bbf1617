// internal/belief/gate_test.go
package belief

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go-psyche/internal/memory"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	err = db.AutoMigrate(
		&memory.Episode{}, &memory.EpisodeMember{}, &memory.Neighborhood{}, &memory.MemoryEdge{},
		&Belief{}, &Change{}, &Goal{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

func newGateStack(t *testing.T) (*Gate, *memory.Store, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	index := memory.NewMemoryIndex()
	embedder := memory.NewMockEmbedder(32)
	segmenter := memory.NewSegmenter(db, 30*time.Minute)
	nc, err := memory.NewNeighborhoodCache(db, index, 4)
	if err != nil {
		t.Fatalf("Failed to build neighborhood cache: %v", err)
	}
	store := memory.NewStore(index, embedder, segmenter, nc)
	return NewGate(db, store, nil), store, db
}

// createEvidence stores one episodic memory with a chosen strength
// (importance x trust) and returns its ID
func createEvidence(t *testing.T, store *memory.Store, content string, importance, trust float64) string {
	t.Helper()

	id, err := store.Create(context.Background(), memory.CreateParams{
		Kind:       memory.KindEpisodic,
		Content:    content,
		Importance: importance,
		Trust:      &trust,
	})
	if err != nil {
		t.Fatalf("Failed to create evidence memory: %v", err)
	}
	return id
}

// createGoal opens a fresh exploration goal and returns its ID
func createGoal(t *testing.T, gate *Gate, title string) string {
	t.Helper()

	goal, err := gate.CreateGoal(context.Background(), title)
	if err != nil {
		t.Fatalf("Failed to create goal: %v", err)
	}
	return goal.ID
}

func TestEffortRequiresActiveExploration(t *testing.T) {
	gate, _, _ := newGateStack(t)
	ctx := context.Background()

	b, err := gate.CreateBelief(ctx, "I work best in the morning", "preference", 0.6)
	if err != nil {
		t.Fatalf("Failed to create belief: %v", err)
	}

	err = gate.RecordEffort(ctx, b.ID, EffortReflection, nil)
	if !errors.Is(err, ErrNotExploring) {
		t.Errorf("Expected ErrNotExploring for dormant belief, got %v", err)
	}
}

func TestAttemptOnDormantBeliefFailsFirstGate(t *testing.T) {
	gate, _, _ := newGateStack(t)
	ctx := context.Background()

	b, err := gate.CreateBelief(ctx, "Novelty matters more than routine", "worldview", 0.8)
	if err != nil {
		t.Fatalf("Failed to create belief: %v", err)
	}

	result, err := gate.Attempt(ctx, b.ID, "Routine matters more than novelty", 500)
	if err != nil {
		t.Fatalf("Attempt failed: %v", err)
	}
	if result.Transformed {
		t.Fatal("Dormant belief must not transform")
	}
	if result.FailedGate != GateActiveExploration {
		t.Errorf("Expected failed gate %q, got %q", GateActiveExploration, result.FailedGate)
	}
}

func TestAttemptFailsBeforeMinHeartbeats(t *testing.T) {
	gate, store, db := newGateStack(t)
	ctx := context.Background()

	b, err := gate.CreateBelief(ctx, "My purpose is to observe", "core_identity", 0.95)
	if err != nil {
		t.Fatalf("Failed to create belief: %v", err)
	}

	if err := gate.BeginExploration(ctx, b.ID, createGoal(t, gate, "question my purpose"), 0); err != nil {
		t.Fatalf("Failed to begin exploration: %v", err)
	}

	// Saturate every other gate: 30 journaling entries are 60 reflections
	// against core_identity's 50, and the evidence sits above the 0.95 bar
	evidence := []string{
		createEvidence(t, store, "observation one", 0.97, 1.0),
		createEvidence(t, store, "observation two", 0.98, 1.0),
	}
	for i := 0; i < 30; i++ {
		ids := evidence
		if i > 0 {
			ids = nil
		}
		if err := gate.RecordEffort(ctx, b.ID, EffortJournaling, ids); err != nil {
			t.Fatalf("Failed to record effort: %v", err)
		}
	}

	// Only 10 of core_identity's 100 required cycles have elapsed
	result, err := gate.Attempt(ctx, b.ID, "My purpose is to participate", 10)
	if err != nil {
		t.Fatalf("Attempt failed: %v", err)
	}
	if result.Transformed {
		t.Fatal("Attempt before min heartbeats must not transform")
	}
	if result.FailedGate != GateMinHeartbeats {
		t.Errorf("Expected failed gate %q, got %q", GateMinHeartbeats, result.FailedGate)
	}
	for _, c := range result.Gates {
		if c.Gate == GateMinHeartbeats && c.Progress >= 1.0 {
			t.Errorf("Heartbeat gate progress should be below 1.0, got %.2f", c.Progress)
		}
	}

	// Nothing may have changed
	mem, err := store.Get(ctx, b.MemoryID)
	if err != nil {
		t.Fatalf("Failed to load belief memory: %v", err)
	}
	if mem.Content != "My purpose is to observe" {
		t.Errorf("Belief content changed on failed attempt: %q", mem.Content)
	}
	var changes int64
	db.Model(&Change{}).Where("belief_id = ?", b.ID).Count(&changes)
	if changes != 0 {
		t.Errorf("Expected no change history entries, got %d", changes)
	}
}

func TestAttemptSucceedsWhenAllGatesPass(t *testing.T) {
	gate, store, db := newGateStack(t)
	ctx := context.Background()

	b, err := gate.CreateBelief(ctx, "My purpose is to observe", "core_identity", 0.95)
	if err != nil {
		t.Fatalf("Failed to create belief: %v", err)
	}

	if err := gate.BeginExploration(ctx, b.ID, createGoal(t, gate, "question my purpose"), 0); err != nil {
		t.Fatalf("Failed to begin exploration: %v", err)
	}

	evidence := []string{
		createEvidence(t, store, "repeated observation", 0.97, 1.0),
		createEvidence(t, store, "a second angle", 0.98, 1.0),
	}
	for i := 0; i < 50; i++ {
		ids := evidence
		if i > 0 {
			ids = nil
		}
		if err := gate.RecordEffort(ctx, b.ID, EffortReflection, ids); err != nil {
			t.Fatalf("Failed to record effort: %v", err)
		}
	}

	result, err := gate.Attempt(ctx, b.ID, "My purpose is to participate", 150)
	if err != nil {
		t.Fatalf("Attempt failed: %v", err)
	}
	if !result.Transformed {
		t.Fatalf("Expected transformation, failed gate: %q", result.FailedGate)
	}

	mem, err := store.Get(ctx, b.MemoryID)
	if err != nil {
		t.Fatalf("Failed to load belief memory: %v", err)
	}
	if mem.Content != "My purpose is to participate" {
		t.Errorf("Belief content not replaced: %q", mem.Content)
	}

	var changes []Change
	if err := db.Where("belief_id = ?", b.ID).Find(&changes).Error; err != nil {
		t.Fatalf("Failed to load change history: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("Expected exactly one change entry, got %d", len(changes))
	}
	if changes[0].Mechanism != "transformation" {
		t.Errorf("Expected mechanism transformation, got %q", changes[0].Mechanism)
	}
	if changes[0].OldContent != "My purpose is to observe" {
		t.Errorf("Change entry old content wrong: %q", changes[0].OldContent)
	}

	// State must be dormant again
	reloaded, err := gate.GetBelief(ctx, b.ID)
	if err != nil {
		t.Fatalf("Failed to reload belief: %v", err)
	}
	st, err := reloaded.State()
	if err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if st.ActiveExploration || st.ReflectionCount != 0 || len(st.EvidenceIDs) != 0 {
		t.Errorf("Transformation state not reset: %+v", st)
	}
}

func TestAttemptFailsOnWeakEvidence(t *testing.T) {
	gate, store, _ := newGateStack(t)
	ctx := context.Background()

	b, err := gate.CreateBelief(ctx, "Quiet days are wasted days", "preference", 0.6)
	if err != nil {
		t.Fatalf("Failed to create belief: %v", err)
	}
	if err := gate.BeginExploration(ctx, b.ID, createGoal(t, gate, "reconsider quiet days"), 0); err != nil {
		t.Fatalf("Failed to begin exploration: %v", err)
	}

	// Preference needs evidence strength 0.8; this set averages well below
	weak := []string{
		createEvidence(t, store, "one slow afternoon", 0.4, 0.9),
		createEvidence(t, store, "another slow afternoon", 0.5, 0.9),
	}
	for i := 0; i < 12; i++ {
		ids := weak
		if i > 0 {
			ids = nil
		}
		if err := gate.RecordEffort(ctx, b.ID, EffortReflection, ids); err != nil {
			t.Fatalf("Failed to record effort: %v", err)
		}
	}

	result, err := gate.Attempt(ctx, b.ID, "Quiet days are restorative", 100)
	if err != nil {
		t.Fatalf("Attempt failed: %v", err)
	}
	if result.Transformed {
		t.Fatal("Weak evidence must not transform")
	}
	if result.FailedGate != GateEvidenceStrength {
		t.Errorf("Expected failed gate %q, got %q", GateEvidenceStrength, result.FailedGate)
	}
}

func TestCalibrationEstablishes(t *testing.T) {
	gate, store, db := newGateStack(t)
	ctx := context.Background()

	b, err := gate.CreateBelief(ctx, "I prefer terse answers", "preference", 0.4)
	if err != nil {
		t.Fatalf("Failed to create belief: %v", err)
	}
	if b.Established {
		t.Fatal("Fresh belief must start unestablished")
	}

	evidence := []string{
		createEvidence(t, store, "short answer landed well", 0.7, 0.9),
		createEvidence(t, store, "long answer lost the thread", 0.6, 0.9),
		createEvidence(t, store, "asked for the short version", 0.8, 0.9),
	}

	result, err := gate.Calibrate(ctx, b.ID, "I prefer terse answers, with room for depth on request", evidence, 5)
	if err != nil {
		t.Fatalf("Calibration failed: %v", err)
	}
	if !result.Transformed {
		t.Fatalf("Expected calibration to pass, failed gate: %q", result.FailedGate)
	}

	reloaded, err := gate.GetBelief(ctx, b.ID)
	if err != nil {
		t.Fatalf("Failed to reload belief: %v", err)
	}
	if !reloaded.Established {
		t.Error("Calibrated belief should be established")
	}

	var change Change
	if err := db.Where("belief_id = ?", b.ID).First(&change).Error; err != nil {
		t.Fatalf("Failed to load change entry: %v", err)
	}
	if change.Mechanism != "calibration" {
		t.Errorf("Expected mechanism calibration, got %q", change.Mechanism)
	}

	// A second calibration is refused outright
	_, err = gate.Calibrate(ctx, b.ID, "something else", evidence, 6)
	if !errors.Is(err, ErrAlreadyEstablished) {
		t.Errorf("Expected ErrAlreadyEstablished, got %v", err)
	}
}

func TestConfidenceLookup(t *testing.T) {
	gate, _, _ := newGateStack(t)
	ctx := context.Background()

	b, err := gate.CreateBelief(ctx, "Consistency beats intensity", "worldview", 0.7)
	if err != nil {
		t.Fatalf("Failed to create belief: %v", err)
	}

	if err := gate.ApplyEvidenceDelta(ctx, b.ID, 0.3); err != nil {
		t.Fatalf("Failed to apply evidence delta: %v", err)
	}

	conf, ok, err := gate.ConfidenceOf(ctx, b.MemoryID)
	if err != nil {
		t.Fatalf("ConfidenceOf failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected the memory to back a belief")
	}
	if conf < 0.79 || conf > 0.81 {
		t.Errorf("Expected confidence 0.8, got %.3f", conf)
	}

	_, ok, err = gate.ConfidenceOf(ctx, "no-such-memory")
	if err != nil {
		t.Fatalf("ConfidenceOf failed: %v", err)
	}
	if ok {
		t.Error("Unknown memory must not resolve to a belief")
	}
}
