// internal/heartbeat/decision.go
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Decision request lifecycle. Requests go out through the outbox; an external
// reasoner answers through the API, and the next cycle executes the answer.
const (
	DecisionPending  = "pending"
	DecisionAnswered = "answered"
	DecisionExecuted = "executed"
	DecisionExpired  = "expired"
)

// GoalSnapshot is one open goal as the reasoner sees it
type GoalSnapshot struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// GoalSource supplies the open goals included in decision context
type GoalSource func(ctx context.Context) ([]GoalSnapshot, error)

// DecisionContext is what the reasoner sees: the urgent drive plus the
// recalled memories and open goals relevant to it
type DecisionContext struct {
	Drive    string         `json:"drive"`
	Level    float64        `json:"level"`
	Affect   Affect         `json:"affect"`
	Energy   float64        `json:"energy"`
	Cycle    int64          `json:"cycle"`
	Memories []string       `json:"memories,omitempty"` // Recalled content, highest scored first
	Goals    []GoalSnapshot `json:"goals,omitempty"`
}

// DecisionRequest is one durable ask-the-reasoner record
type DecisionRequest struct {
	ID        string         `gorm:"primaryKey" json:"id"`
	Status    string         `gorm:"not null;default:'pending';index" json:"status"`
	Context   datatypes.JSON `gorm:"not null" json:"context"`
	Answer    datatypes.JSON `json:"answer,omitempty"`
	Cycle     int64          `gorm:"not null" json:"cycle"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (DecisionRequest) TableName() string {
	return "psyche_decisions"
}

// DecisionAction is one unit of the reasoner's chosen action set
type DecisionAction struct {
	Action   ActionType `json:"action"`
	Content  string     `json:"content,omitempty"`
	TargetID string     `json:"target_id,omitempty"`
}

// DecisionAnswer is the reasoner's response: an ordered action set, executed
// one at a time with per-action cost checks, plus an optional self-reported
// affective state persisted onto the scheduler row
type DecisionAnswer struct {
	Actions []DecisionAction `json:"actions"`
	Affect  *Affect          `json:"affect,omitempty"`
}

// Decisions manages the request lifecycle
type Decisions struct {
	db     *gorm.DB
	outbox *Outbox
	maxAge time.Duration
}

// NewDecisions creates the decision manager. Requests unanswered for longer
// than maxAge are expired rather than executed.
func NewDecisions(db *gorm.DB, outbox *Outbox, maxAge time.Duration) *Decisions {
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	return &Decisions{db: db, outbox: outbox, maxAge: maxAge}
}

// Emit persists a pending request and sends it through the outbox
func (d *Decisions) Emit(ctx context.Context, dc DecisionContext) (string, error) {
	raw, err := json.Marshal(dc)
	if err != nil {
		return "", fmt.Errorf("failed to encode decision context: %w", err)
	}

	req := DecisionRequest{
		ID:      uuid.New().String(),
		Status:  DecisionPending,
		Context: datatypes.JSON(raw),
		Cycle:   dc.Cycle,
	}
	if err := d.db.WithContext(ctx).Create(&req).Error; err != nil {
		return "", fmt.Errorf("failed to persist decision request: %w", err)
	}

	payload := map[string]interface{}{
		"decision_id": req.ID,
		"context":     json.RawMessage(raw),
	}
	if _, err := d.outbox.Emit(ctx, "decision_request", payload); err != nil {
		return "", err
	}
	return req.ID, nil
}

// Answer records the reasoner's choice against a pending request. Answering a
// non-pending request is refused, as is an empty action set.
func (d *Decisions) Answer(ctx context.Context, id string, answer DecisionAnswer) error {
	if len(answer.Actions) == 0 {
		return fmt.Errorf("decision answer requires at least one action")
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("failed to encode decision answer: %w", err)
	}

	result := d.db.WithContext(ctx).Model(&DecisionRequest{}).
		Where("id = ? AND status = ?", id, DecisionPending).
		Updates(map[string]interface{}{
			"status": DecisionAnswered,
			"answer": datatypes.JSON(raw),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to answer decision %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("decision %s is not pending", id)
	}
	return nil
}

// NextAnswered pops the oldest answered request, marking stale pending
// requests expired along the way. Returns nil with no error when nothing is
// ready.
func (d *Decisions) NextAnswered(ctx context.Context) (*DecisionRequest, *DecisionAnswer, error) {
	cutoff := time.Now().Add(-d.maxAge)
	if err := d.db.WithContext(ctx).Model(&DecisionRequest{}).
		Where("status = ? AND created_at < ?", DecisionPending, cutoff).
		Update("status", DecisionExpired).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to expire stale decisions: %w", err)
	}

	var req DecisionRequest
	err := d.db.WithContext(ctx).
		Where("status = ?", DecisionAnswered).
		Order("created_at asc").
		First(&req).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load answered decision: %w", err)
	}

	var answer DecisionAnswer
	if err := json.Unmarshal(req.Answer, &answer); err != nil {
		return nil, nil, fmt.Errorf("failed to decode answer for decision %s: %w", req.ID, err)
	}

	if err := d.db.WithContext(ctx).Model(&DecisionRequest{}).
		Where("id = ?", req.ID).
		Update("status", DecisionExecuted).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to retire decision %s: %w", req.ID, err)
	}
	return &req, &answer, nil
}

// PendingCount reports how many requests await an answer
func (d *Decisions) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&DecisionRequest{}).
		Where("status = ?", DecisionPending).
		Count(&count).Error
	return count, err
}
