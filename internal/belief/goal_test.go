// internal/belief/goal_test.go
package belief

import (
	"context"
	"errors"
	"testing"

	"go-psyche/internal/memory"
)

func TestExplorationRequiresOpenGoal(t *testing.T) {
	gate, _, _ := newGateStack(t)
	ctx := context.Background()

	b, err := gate.CreateBelief(ctx, "Silence means disinterest", "worldview", 0.7)
	if err != nil {
		t.Fatalf("Failed to create belief: %v", err)
	}

	err = gate.BeginExploration(ctx, b.ID, "no-such-goal", 0)
	if !errors.Is(err, ErrGoalNotFound) {
		t.Errorf("Expected ErrGoalNotFound for unknown goal, got %v", err)
	}

	goalID := createGoal(t, gate, "revisit silence")
	if err := gate.CloseGoal(ctx, goalID, GoalAbandoned); err != nil {
		t.Fatalf("Failed to close goal: %v", err)
	}
	err = gate.BeginExploration(ctx, b.ID, goalID, 0)
	if !errors.Is(err, ErrGoalClosed) {
		t.Errorf("Expected ErrGoalClosed for abandoned goal, got %v", err)
	}

	// The belief must still be dormant after both refusals
	reloaded, err := gate.GetBelief(ctx, b.ID)
	if err != nil {
		t.Fatalf("Failed to reload belief: %v", err)
	}
	st, err := reloaded.State()
	if err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if st.ActiveExploration {
		t.Error("Refused exploration must leave the belief dormant")
	}
}

func TestOpenGoalsListsOnlyOpen(t *testing.T) {
	gate, _, _ := newGateStack(t)
	ctx := context.Background()

	first := createGoal(t, gate, "first")
	second := createGoal(t, gate, "second")
	if err := gate.CloseGoal(ctx, first, GoalDone); err != nil {
		t.Fatalf("Failed to close goal: %v", err)
	}

	goals, err := gate.OpenGoals(ctx)
	if err != nil {
		t.Fatalf("OpenGoals failed: %v", err)
	}
	if len(goals) != 1 || goals[0].ID != second {
		t.Errorf("Expected only the second goal open, got %+v", goals)
	}
}

func TestCloseGoal(t *testing.T) {
	gate, _, _ := newGateStack(t)
	ctx := context.Background()

	id := createGoal(t, gate, "wrap up")
	if err := gate.CloseGoal(ctx, id, "paused"); err == nil {
		t.Error("Invalid status must be refused")
	}
	if err := gate.CloseGoal(ctx, id, GoalDone); err != nil {
		t.Fatalf("CloseGoal failed: %v", err)
	}
	if err := gate.CloseGoal(ctx, id, GoalAbandoned); !errors.Is(err, ErrGoalClosed) {
		t.Errorf("Expected ErrGoalClosed on double close, got %v", err)
	}
	if err := gate.CloseGoal(ctx, "no-such-goal", GoalDone); !errors.Is(err, ErrGoalNotFound) {
		t.Errorf("Expected ErrGoalNotFound, got %v", err)
	}
}

func TestCreateGoalWritesAnchorMemory(t *testing.T) {
	gate, store, _ := newGateStack(t)
	ctx := context.Background()

	goal, err := gate.CreateGoal(ctx, "learn the new codebase")
	if err != nil {
		t.Fatalf("CreateGoal failed: %v", err)
	}

	mem, err := store.Get(ctx, goal.MemoryID)
	if err != nil {
		t.Fatalf("Failed to load goal memory: %v", err)
	}
	if mem.Kind != memory.KindEpisodic {
		t.Errorf("Expected episodic anchor memory, got %q", mem.Kind)
	}
}
