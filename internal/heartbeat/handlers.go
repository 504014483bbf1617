// internal/heartbeat/handlers.go
package heartbeat

import (
	"context"
	"fmt"
	"log"

	"go-psyche/internal/belief"
	"go-psyche/internal/memory"
)

// RegisterDefaultHandlers wires the stock action handlers: reflective actions
// write memories and feed belief exploration, satisfy_drive relaxes a drive,
// idle does nothing. Open goals are surfaced into decision context.
func RegisterDefaultHandlers(e *Engine, store *memory.Store, gate *belief.Gate) {
	e.SetGoalSource(func(ctx context.Context) ([]GoalSnapshot, error) {
		goals, err := gate.OpenGoals(ctx)
		if err != nil {
			return nil, err
		}
		snaps := make([]GoalSnapshot, 0, len(goals))
		for _, goal := range goals {
			snaps = append(snaps, GoalSnapshot{ID: goal.ID, Title: goal.Title})
		}
		return snaps, nil
	})

	e.executor.Register(ActionIdle, func(ctx context.Context, a Action) error {
		return nil
	})

	e.executor.Register(ActionSatisfy, func(ctx context.Context, a Action) error {
		if a.TargetID == "" {
			return fmt.Errorf("satisfy_drive requires a drive name in target_id")
		}
		return e.drives.Satisfy(ctx, a.TargetID)
	})

	e.executor.Register(ActionRecall, func(ctx context.Context, a Action) error {
		if a.Content == "" {
			return fmt.Errorf("recall requires query content")
		}
		results, err := e.recall.Recall(ctx, a.Content, 5)
		if err != nil {
			return err
		}
		log.Printf("[Heartbeat] Recall for %q surfaced %d memories", a.Content, len(results))
		return nil
	})

	e.executor.Register(ActionReflect, reflectiveHandler(store, gate, belief.EffortReflection, memory.KindSemantic))
	e.executor.Register(ActionContemplate, reflectiveHandler(store, gate, belief.EffortContemplation, memory.KindSemantic))
	e.executor.Register(ActionJournal, reflectiveHandler(store, gate, belief.EffortJournaling, memory.KindEpisodic))
}

// reflectiveHandler builds a handler that records the action's content as a
// memory and, when the action targets a belief, counts as exploration effort
// with the new memory as evidence
func reflectiveHandler(store *memory.Store, gate *belief.Gate, effort belief.EffortKind, kind memory.Kind) Handler {
	return func(ctx context.Context, a Action) error {
		if a.Content == "" {
			return fmt.Errorf("%s requires content", effort)
		}

		params := memory.CreateParams{
			Kind:       kind,
			Content:    a.Content,
			Importance: 0.5,
		}
		switch kind {
		case memory.KindSemantic:
			params.Extension = memory.Extension{Semantic: &memory.SemanticExt{Confidence: 0.5}}
		case memory.KindEpisodic:
			params.Extension = memory.Extension{Episodic: &memory.EpisodicExt{Context: string(effort)}}
		}

		memID, err := store.Create(ctx, params)
		if err != nil {
			return fmt.Errorf("failed to record %s memory: %w", effort, err)
		}

		if a.TargetID == "" {
			return nil
		}
		return gate.RecordEffort(ctx, a.TargetID, effort, []string{memID})
	}
}
