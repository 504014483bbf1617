// internal/heartbeat/cycle.go
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"go-psyche/internal/memory"
)

// Engine runs one heartbeat cycle: regenerate energy, advance drives, execute
// any answered decision, and ask the reasoner about the most urgent drive.
// Cycles are serialized; the scheduler never runs two at once.
type Engine struct {
	db        *gorm.DB
	executor  *Executor
	drives    *DriveEngine
	decisions *Decisions
	recall    *memory.RecallEngine
	regen     float64
	goals     GoalSource

	mu sync.Mutex
}

// NewEngine assembles the heartbeat engine
func NewEngine(db *gorm.DB, executor *Executor, drives *DriveEngine, decisions *Decisions, recall *memory.RecallEngine, regen float64) *Engine {
	return &Engine{
		db:        db,
		executor:  executor,
		drives:    drives,
		decisions: decisions,
		recall:    recall,
		regen:     regen,
	}
}

// Executor exposes the action executor for handler registration
func (e *Engine) Executor() *Executor {
	return e.executor
}

// Drives exposes the drive engine
func (e *Engine) Drives() *DriveEngine {
	return e.drives
}

// Decisions exposes the decision manager
func (e *Engine) Decisions() *Decisions {
	return e.decisions
}

// SetGoalSource installs the open-goal lookup included in decision context
func (e *Engine) SetGoalSource(src GoalSource) {
	e.goals = src
}

// RunCycle executes one heartbeat. Paused agents skip silently; terminated
// agents refuse.
func (e *Engine) RunCycle(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var st State
	if err := e.db.WithContext(ctx).First(&st, "id = ?", 1).Error; err != nil {
		return fmt.Errorf("failed to load heartbeat state: %w", err)
	}
	if st.Terminated {
		return ErrTerminated
	}
	if st.Paused {
		log.Printf("[Heartbeat] Paused, skipping cycle")
		return nil
	}

	// Advance the cycle clock and regenerate, one ledger entry per cycle.
	// The previous cycle stamp decides which drives count as just satisfied.
	prevCycleAt := st.LastCycleAt
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st.CycleCount++
		if uerr := tx.Model(&State{}).Where("id = ?", 1).
			Updates(map[string]interface{}{
				"cycle_count":   st.CycleCount,
				"last_cycle_at": time.Now(),
			}).Error; uerr != nil {
			return fmt.Errorf("failed to advance cycle: %w", uerr)
		}
		if e.regen > 0 && st.Energy < st.MaxEnergy {
			return applyDelta(tx, &st, e.regen, "regeneration")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if affect, aerr := st.GetAffect(); aerr == nil {
		log.Printf("[Heartbeat] Cycle %d: energy=%.1f valence=%.2f arousal=%.2f",
			st.CycleCount, st.Energy, affect.Valence, affect.Arousal)
	}

	if err := e.drives.Tick(ctx, prevCycleAt); err != nil {
		return err
	}

	if err := e.executeAnswered(ctx, &st); err != nil {
		log.Printf("[Heartbeat] ERROR executing answered decision: %v", err)
	}

	return e.maybeAsk(ctx, &st)
}

// executeAnswered runs at most one answered decision per cycle. The answer's
// actions execute one at a time, each passing its own check-then-charge; one
// refused action does not block the rest.
func (e *Engine) executeAnswered(ctx context.Context, st *State) error {
	req, answer, err := e.decisions.NextAnswered(ctx)
	if err != nil {
		return err
	}
	if req == nil {
		return nil
	}

	log.Printf("[Heartbeat] Executing decision %s (%d actions)", req.ID, len(answer.Actions))
	for _, da := range answer.Actions {
		action := Action{
			Type:     da.Action,
			Content:  da.Content,
			TargetID: da.TargetID,
			Cycle:    st.CycleCount,
		}
		if xerr := e.executor.Execute(ctx, action); xerr != nil {
			if errors.Is(xerr, ErrTerminated) {
				return xerr
			}
			log.Printf("[Heartbeat] WARNING: action %s from decision %s refused: %v", action.Type, req.ID, xerr)
		}
	}

	if answer.Affect != nil {
		if aerr := e.saveAffect(ctx, st, *answer.Affect); aerr != nil {
			return aerr
		}
	}
	return nil
}

// saveAffect persists the reasoner's self-reported affective state
func (e *Engine) saveAffect(ctx context.Context, st *State, a Affect) error {
	if err := st.SetAffect(a); err != nil {
		return err
	}
	if err := e.db.WithContext(ctx).Model(&State{}).
		Where("id = ?", 1).
		Update("affect", st.Affect).Error; err != nil {
		return fmt.Errorf("failed to persist affect: %w", err)
	}
	return nil
}

// maybeAsk emits a decision request for the most urgent drive, if one is
// urgent and no request is already in flight
func (e *Engine) maybeAsk(ctx context.Context, st *State) error {
	pending, err := e.decisions.PendingCount(ctx)
	if err != nil {
		return err
	}
	if pending > 0 {
		return nil
	}

	drive, err := e.drives.MostUrgent(ctx)
	if err != nil {
		return err
	}
	if drive == nil {
		return nil
	}

	affect, err := st.GetAffect()
	if err != nil {
		return err
	}

	dc := DecisionContext{
		Drive:  drive.Name,
		Level:  drive.Level,
		Affect: affect,
		Energy: st.Energy,
		Cycle:  st.CycleCount,
	}

	// Ground the ask in what the agent remembers about this pressure
	results, rerr := e.recall.Recall(ctx, drive.Name, 5)
	if rerr != nil {
		log.Printf("[Heartbeat] WARNING: recall failed for drive %s: %v", drive.Name, rerr)
	} else {
		for _, r := range results {
			dc.Memories = append(dc.Memories, r.Memory.Content)
		}
	}

	if e.goals != nil {
		goals, gerr := e.goals(ctx)
		if gerr != nil {
			log.Printf("[Heartbeat] WARNING: goal lookup failed: %v", gerr)
		} else {
			dc.Goals = goals
		}
	}

	id, err := e.decisions.Emit(ctx, dc)
	if err != nil {
		return err
	}
	log.Printf("[Heartbeat] Drive %s is urgent (%.2f), asked reasoner (decision %s)", drive.Name, drive.Level, id)
	return nil
}

// Worker manages the background heartbeat scheduling
type Worker struct {
	engine          *Engine
	intervalSeconds int
	stopChan        chan struct{}
}

// NewWorker creates a new heartbeat worker
func NewWorker(engine *Engine, intervalSeconds int) *Worker {
	return &Worker{
		engine:          engine,
		intervalSeconds: intervalSeconds,
		stopChan:        make(chan struct{}),
	}
}

// Start begins the heartbeat loop
func (w *Worker) Start() {
	log.Printf("[HeartbeatWorker] Starting heartbeat worker (interval: %d seconds)", w.intervalSeconds)
	go w.loop()
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	log.Printf("[HeartbeatWorker] Stopping heartbeat worker")
	close(w.stopChan)
}

func (w *Worker) loop() {
	ticker := time.NewTicker(time.Duration(w.intervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runCycleSafely()
		case <-w.stopChan:
			log.Printf("[HeartbeatWorker] Stopped")
			return
		}
	}
}

// runCycleSafely runs one cycle with panic recovery
func (w *Worker) runCycleSafely() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[HeartbeatWorker] PANIC recovered: %v", r)
		}
	}()

	ctx := context.Background()
	if err := w.engine.RunCycle(ctx); err != nil {
		if err == ErrTerminated {
			log.Printf("[HeartbeatWorker] Agent terminated, stopping")
			return
		}
		log.Printf("[HeartbeatWorker] ERROR in heartbeat cycle: %v", err)
	}
}
