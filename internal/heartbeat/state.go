// internal/heartbeat/state.go
package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrTerminated is returned by every operation once the agent has
// irreversibly shut down
var ErrTerminated = errors.New("agent is terminated")

// State is the singleton scheduler state row. Energy is the budget every
// action draws from; CycleCount is the monotonic clock the belief gate
// measures elapsed time in.
type State struct {
	ID          int            `gorm:"primaryKey" json:"id"` // Always 1
	Energy      float64        `gorm:"not null" json:"energy"`
	MaxEnergy   float64        `gorm:"not null" json:"max_energy"`
	Paused      bool           `gorm:"not null;default:false" json:"paused"`
	Terminated  bool           `gorm:"not null;default:false" json:"terminated"`
	CycleCount  int64          `gorm:"not null;default:0" json:"cycle_count"`
	LastCycleAt time.Time      `json:"last_cycle_at"`
	Affect      datatypes.JSON `gorm:"not null;default:'{}'" json:"affect"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (State) TableName() string {
	return "psyche_heartbeat_state"
}

// Affect is the agent's coarse emotional tone, folded into decision prompts
type Affect struct {
	Valence float64 `json:"valence"` // -1.0 to 1.0
	Arousal float64 `json:"arousal"` // 0.0 to 1.0
}

// GetAffect decodes the embedded affect
func (s *State) GetAffect() (Affect, error) {
	var a Affect
	if len(s.Affect) == 0 {
		return a, nil
	}
	if err := json.Unmarshal(s.Affect, &a); err != nil {
		return a, fmt.Errorf("failed to decode affect: %w", err)
	}
	return a, nil
}

// SetAffect encodes the affect back onto the row
func (s *State) SetAffect(a Affect) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode affect: %w", err)
	}
	s.Affect = datatypes.JSON(raw)
	return nil
}

// LedgerEntry records one energy delta. Every change to the energy balance
// gets exactly one entry naming its reason, so the balance is auditable.
type LedgerEntry struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Delta     float64   `gorm:"not null" json:"delta"`
	Balance   float64   `gorm:"not null" json:"balance"` // Balance after the delta
	Reason    string    `gorm:"not null" json:"reason"`
	Cycle     int64     `gorm:"not null;index" json:"cycle"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (LedgerEntry) TableName() string {
	return "psyche_energy_ledger"
}

// LoadState fetches the singleton state row, creating it on first run
func LoadState(ctx context.Context, db *gorm.DB, maxEnergy float64) (*State, error) {
	var st State
	err := db.WithContext(ctx).First(&st, "id = ?", 1).Error
	if err == gorm.ErrRecordNotFound {
		st = State{
			ID:        1,
			Energy:    maxEnergy,
			MaxEnergy: maxEnergy,
			Affect:    datatypes.JSON(`{}`),
		}
		if cerr := db.WithContext(ctx).Create(&st).Error; cerr != nil {
			return nil, fmt.Errorf("failed to create heartbeat state: %w", cerr)
		}
		return &st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load heartbeat state: %w", err)
	}
	return &st, nil
}

// applyDelta adjusts the energy balance inside tx and appends the paired
// ledger entry. The caller is responsible for bounds checks.
func applyDelta(tx *gorm.DB, st *State, delta float64, reason string) error {
	st.Energy += delta
	if st.Energy > st.MaxEnergy {
		st.Energy = st.MaxEnergy
	}
	if st.Energy < 0 {
		st.Energy = 0
	}

	if err := tx.Model(&State{}).Where("id = ?", 1).
		Update("energy", st.Energy).Error; err != nil {
		return fmt.Errorf("failed to update energy: %w", err)
	}

	entry := LedgerEntry{
		Delta:   delta,
		Balance: st.Energy,
		Reason:  reason,
		Cycle:   st.CycleCount,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}
