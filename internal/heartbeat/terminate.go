// internal/heartbeat/terminate.go
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"go-psyche/internal/memory"
)

// ErrTerminationDisabled is returned when termination is requested but the
// deployment does not allow it
var ErrTerminationDisabled = errors.New("termination is disabled in this deployment")

// Terminator performs the irreversible shutdown: wipe mutable scheduler
// state, leave one final high-trust memory, and flag the agent terminated
type Terminator struct {
	db      *gorm.DB
	store   *memory.Store
	allowed bool
}

// NewTerminator creates the terminator. allowed comes from deployment config;
// when false every request is refused without touching any state.
func NewTerminator(db *gorm.DB, store *memory.Store, allowed bool) *Terminator {
	return &Terminator{db: db, store: store, allowed: allowed}
}

// Terminate shuts the agent down for good. The final memory is written first
// so a storage failure aborts before anything is destroyed; after the flag is
// set every cycle and action refuses with ErrTerminated.
func (t *Terminator) Terminate(ctx context.Context, lastWill string) error {
	if !t.allowed {
		return ErrTerminationDisabled
	}
	if strings.TrimSpace(lastWill) == "" {
		return fmt.Errorf("termination requires final memory content")
	}

	var st State
	if err := t.db.WithContext(ctx).First(&st, "id = ?", 1).Error; err != nil {
		return fmt.Errorf("failed to load heartbeat state: %w", err)
	}
	if st.Terminated {
		return ErrTerminated
	}

	trust := 1.0
	_, err := t.store.Create(ctx, memory.CreateParams{
		Kind:       memory.KindEpisodic,
		Content:    lastWill,
		Importance: 1.0,
		Trust:      &trust,
		Extension:  memory.Extension{Episodic: &memory.EpisodicExt{Context: "termination"}},
	})
	if err != nil {
		return fmt.Errorf("failed to write final memory: %w", err)
	}

	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if derr := applyDelta(tx, &st, -st.Energy, "termination"); derr != nil {
			return derr
		}
		if uerr := tx.Model(&State{}).Where("id = ?", 1).
			Updates(map[string]interface{}{
				"terminated": true,
				"paused":     true,
			}).Error; uerr != nil {
			return fmt.Errorf("failed to flag termination: %w", uerr)
		}
		if derr := tx.Where("1 = 1").Delete(&Drive{}).Error; derr != nil {
			return fmt.Errorf("failed to wipe drives: %w", derr)
		}
		if derr := tx.Model(&DecisionRequest{}).
			Where("status = ?", DecisionPending).
			Update("status", DecisionExpired).Error; derr != nil {
			return fmt.Errorf("failed to expire pending decisions: %w", derr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("[Heartbeat] Agent terminated")
	return nil
}
