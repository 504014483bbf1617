// internal/belief/calibration.go
package belief

import (
	"context"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
)

// ErrAlreadyEstablished is returned when calibration is attempted on a belief
// that has already settled
var ErrAlreadyEstablished = fmt.Errorf("belief is already established")

// Calibrate adjusts a never-established belief against evidence. The bar is
// deliberately lower than transformation: a fixed minimum evidence count and
// mean strength, no exploration or cycle requirements. Success rewrites the
// content, records a calibration change entry and marks the belief
// established, moving all future rewrites behind the full gate.
func (g *Gate) Calibrate(ctx context.Context, beliefID, newContent string, evidenceIDs []string, currentCycle int64) (AttemptResult, error) {
	if strings.TrimSpace(newContent) == "" {
		return AttemptResult{}, fmt.Errorf("replacement content must not be empty")
	}

	b, err := g.GetBelief(ctx, beliefID)
	if err != nil {
		return AttemptResult{}, err
	}
	if b.Established {
		return AttemptResult{}, ErrAlreadyEstablished
	}

	strength, err := g.meanEvidenceStrength(ctx, evidenceIDs)
	if err != nil {
		return AttemptResult{}, err
	}

	checks := []GateCheck{
		progressCheck(GateMinReflections, float64(len(evidenceIDs)), float64(g.calibrationMinEvidence)),
		progressCheck(GateEvidenceStrength, strength, g.calibrationMinStrength),
	}
	for _, c := range checks {
		if !c.Satisfied {
			return AttemptResult{Transformed: false, FailedGate: c.Gate, Gates: checks}, nil
		}
	}

	mem, err := g.store.Get(ctx, b.MemoryID)
	if err != nil {
		return AttemptResult{}, fmt.Errorf("failed to load belief memory: %w", err)
	}
	oldContent := mem.Content

	if err := g.rewriteMemoryContent(ctx, mem, newContent); err != nil {
		return AttemptResult{}, err
	}

	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		change := Change{
			BeliefID:   b.ID,
			OldContent: oldContent,
			NewContent: newContent,
			Mechanism:  "calibration",
			Cycle:      currentCycle,
		}
		if cerr := tx.Create(&change).Error; cerr != nil {
			return fmt.Errorf("failed to append change history: %w", cerr)
		}
		return tx.Model(&Belief{}).Where("id = ?", b.ID).
			Update("established", true).Error
	})
	if err != nil {
		if rerr := g.rewriteMemoryContent(ctx, mem, oldContent); rerr != nil {
			log.Printf("[Gate] ERROR: failed to restore belief memory %s after aborted calibration: %v", mem.ID, rerr)
		}
		return AttemptResult{}, err
	}

	log.Printf("[Gate] Belief %s calibrated and established (%s)", b.ID, b.Category)
	return AttemptResult{Transformed: true, Gates: checks}, nil
}
