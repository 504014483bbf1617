// internal/belief/goal.go
package belief

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go-psyche/internal/memory"
)

// Goal statuses
const (
	GoalOpen      = "open"
	GoalDone      = "done"
	GoalAbandoned = "abandoned"
)

// ErrGoalNotFound is returned when an ID resolves to no goal row
var ErrGoalNotFound = errors.New("goal not found")

// ErrGoalClosed is returned when an operation needs an open goal but the goal
// is done or abandoned
var ErrGoalClosed = errors.New("goal is not open")

// CreateGoal persists a new goal: one episodic memory anchoring it, plus the
// goal row. Goals start open.
func (g *Gate) CreateGoal(ctx context.Context, title string) (*Goal, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("goal title must not be empty")
	}

	memID, err := g.store.Create(ctx, memory.CreateParams{
		Kind:       memory.KindEpisodic,
		Content:    "Goal set: " + title,
		Importance: 0.6,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create goal memory: %w", err)
	}

	goal := &Goal{
		ID:       uuid.New().String(),
		MemoryID: memID,
		Title:    title,
		Status:   GoalOpen,
	}
	if err := g.db.WithContext(ctx).Create(goal).Error; err != nil {
		return nil, fmt.Errorf("failed to create goal row: %w", err)
	}
	return goal, nil
}

// GetGoal loads one goal by ID
func (g *Gate) GetGoal(ctx context.Context, goalID string) (*Goal, error) {
	var goal Goal
	err := g.db.WithContext(ctx).First(&goal, "id = ?", goalID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrGoalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load goal %s: %w", goalID, err)
	}
	return &goal, nil
}

// OpenGoals lists goals still open, oldest first
func (g *Gate) OpenGoals(ctx context.Context) ([]Goal, error) {
	var goals []Goal
	err := g.db.WithContext(ctx).
		Where("status = ?", GoalOpen).
		Order("created_at asc").
		Find(&goals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open goals: %w", err)
	}
	return goals, nil
}

// CloseGoal retires an open goal as done or abandoned
func (g *Gate) CloseGoal(ctx context.Context, goalID, status string) error {
	if status != GoalDone && status != GoalAbandoned {
		return fmt.Errorf("invalid goal status %q", status)
	}
	result := g.db.WithContext(ctx).Model(&Goal{}).
		Where("id = ? AND status = ?", goalID, GoalOpen).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to close goal %s: %w", goalID, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := g.GetGoal(ctx, goalID); err != nil {
			return err
		}
		return ErrGoalClosed
	}
	return nil
}
