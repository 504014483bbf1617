// internal/heartbeat/actions.go
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"gorm.io/gorm"

	"go-psyche/internal/config"
)

// ActionType names one kind of work the scheduler can spend energy on
type ActionType string

const (
	ActionReflect     ActionType = "reflect"
	ActionContemplate ActionType = "contemplate"
	ActionJournal     ActionType = "journal"
	ActionRecall      ActionType = "recall"
	ActionSatisfy     ActionType = "satisfy_drive"
	ActionIdle        ActionType = "idle"
)

// defaultCosts are the stock energy prices, overridable per type through the
// settings store under "energy.cost.<type>"
var defaultCosts = map[ActionType]float64{
	ActionReflect:     3,
	ActionContemplate: 5,
	ActionJournal:     4,
	ActionRecall:      1,
	ActionSatisfy:     2,
	ActionIdle:        0,
}

// ErrUnknownAction is returned for action types with no registered handler
var ErrUnknownAction = errors.New("unknown action type")

// ErrInsufficientEnergy is returned when the balance cannot cover an action's
// cost. Nothing is charged and no side effect runs.
var ErrInsufficientEnergy = errors.New("insufficient energy")

// Action is one unit of scheduled work
type Action struct {
	Type     ActionType `json:"type"`
	Content  string     `json:"content,omitempty"`
	TargetID string     `json:"target_id,omitempty"` // Memory, belief or drive the action acts on
	Cycle    int64      `json:"cycle"`
}

// Handler executes one action after its energy has been charged
type Handler func(ctx context.Context, a Action) error

// Executor charges energy and dispatches actions to registered handlers. The
// check-then-charge step is serialized so two actions cannot both spend the
// same energy.
type Executor struct {
	db       *gorm.DB
	settings *config.Settings
	screener *Screener

	mu       sync.Mutex
	handlers map[ActionType]Handler
}

// NewExecutor creates the action executor
func NewExecutor(db *gorm.DB, settings *config.Settings, screener *Screener) *Executor {
	return &Executor{
		db:       db,
		settings: settings,
		screener: screener,
		handlers: make(map[ActionType]Handler),
	}
}

// Register installs the handler for one action type, replacing any previous
// one
func (e *Executor) Register(t ActionType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[t] = h
}

// Cost resolves the energy price of one action type
func (e *Executor) Cost(ctx context.Context, t ActionType) (float64, error) {
	def, ok := defaultCosts[t]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAction, t)
	}
	return e.settings.GetFloat(ctx, "energy.cost."+string(t), def), nil
}

// Execute screens, charges and runs one action. The screen and the balance
// check both happen before any mutation: a refused action leaves the energy
// balance and the ledger untouched.
func (e *Executor) Execute(ctx context.Context, a Action) error {
	e.mu.Lock()
	handler, registered := e.handlers[a.Type]
	e.mu.Unlock()

	cost, err := e.Cost(ctx, a.Type)
	if err != nil {
		return err
	}
	if !registered {
		return fmt.Errorf("%w: %s has no handler", ErrUnknownAction, a.Type)
	}

	if err := e.screener.Screen(ctx, a.Content); err != nil {
		return err
	}

	// Serialize check-then-charge only; the handler runs outside the lock
	e.mu.Lock()
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var st State
		if lerr := tx.First(&st, "id = ?", 1).Error; lerr != nil {
			return fmt.Errorf("failed to load heartbeat state: %w", lerr)
		}
		if st.Terminated {
			return ErrTerminated
		}
		if st.Energy < cost {
			return fmt.Errorf("%w: need %.1f, have %.1f", ErrInsufficientEnergy, cost, st.Energy)
		}
		if cost == 0 {
			return nil
		}
		return applyDelta(tx, &st, -cost, "action:"+string(a.Type))
	})
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if herr := handler(ctx, a); herr != nil {
		// Energy was spent on the attempt; the failure is logged, not refunded
		log.Printf("[Heartbeat] ERROR: action %s failed after charge: %v", a.Type, herr)
		return fmt.Errorf("action %s failed: %w", a.Type, herr)
	}
	return nil
}
