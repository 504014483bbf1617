// internal/heartbeat/safety.go
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go-psyche/internal/config"
)

// ErrBoundaryViolation is returned when action content trips the boundary
// screen. The screen runs before any energy is charged.
var ErrBoundaryViolation = errors.New("action content violates a boundary")

// Screener checks action content against the durable boundary list. Boundary
// terms live in settings under "safety.blocked.<n>" so operators can adjust
// them at runtime.
type Screener struct {
	settings *config.Settings
}

// NewScreener creates the boundary screener
func NewScreener(settings *config.Settings) *Screener {
	return &Screener{settings: settings}
}

// Screen returns ErrBoundaryViolation if content matches any blocked term.
// Matching is case-insensitive substring; empty content always passes.
func (s *Screener) Screen(ctx context.Context, content string) error {
	if content == "" {
		return nil
	}

	blocked, err := s.settings.Scope(ctx, "safety.blocked.")
	if err != nil {
		return fmt.Errorf("failed to load boundary list: %w", err)
	}

	lower := strings.ToLower(content)
	for key, term := range blocked {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return fmt.Errorf("%w: matched %s", ErrBoundaryViolation, key)
		}
	}
	return nil
}
