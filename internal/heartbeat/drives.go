// internal/heartbeat/drives.go
package heartbeat

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// Drive is one homeostatic pressure. Level climbs by AccumulationRate each
// cycle until satisfied, then falls back toward Baseline.
type Drive struct {
	Name             string    `gorm:"primaryKey" json:"name"`
	Level            float64   `gorm:"not null" json:"level"` // 0.0-1.0
	Baseline         float64   `gorm:"not null" json:"baseline"`
	AccumulationRate float64   `gorm:"not null" json:"accumulation_rate"` // Per cycle
	DecayRate        float64   `gorm:"not null" json:"decay_rate"`        // Per cycle, toward baseline
	UrgencyThreshold float64   `gorm:"not null" json:"urgency_threshold"`
	LastSatisfied    time.Time `json:"last_satisfied"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Drive) TableName() string {
	return "psyche_drives"
}

// Urgent reports whether the drive has crossed its urgency threshold
func (d *Drive) Urgent() bool {
	return d.Level >= d.UrgencyThreshold
}

// DriveEngine owns the drive set
type DriveEngine struct {
	db *gorm.DB
}

// NewDriveEngine creates the drive engine
func NewDriveEngine(db *gorm.DB) *DriveEngine {
	return &DriveEngine{db: db}
}

// SeedDefaults installs the stock drive set if none exist yet
func (e *DriveEngine) SeedDefaults(ctx context.Context) error {
	var count int64
	if err := e.db.WithContext(ctx).Model(&Drive{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count drives: %w", err)
	}
	if count > 0 {
		return nil
	}

	defaults := []Drive{
		{Name: "curiosity", Level: 0.3, Baseline: 0.2, AccumulationRate: 0.04, DecayRate: 0.1, UrgencyThreshold: 0.7},
		{Name: "coherence", Level: 0.2, Baseline: 0.1, AccumulationRate: 0.02, DecayRate: 0.1, UrgencyThreshold: 0.6},
		{Name: "connection", Level: 0.2, Baseline: 0.2, AccumulationRate: 0.03, DecayRate: 0.1, UrgencyThreshold: 0.75},
		{Name: "rest", Level: 0.1, Baseline: 0.0, AccumulationRate: 0.01, DecayRate: 0.2, UrgencyThreshold: 0.8},
	}
	if err := e.db.WithContext(ctx).Create(&defaults).Error; err != nil {
		return fmt.Errorf("failed to seed drives: %w", err)
	}
	log.Printf("[Drives] Seeded %d default drives", len(defaults))
	return nil
}

// Tick advances every drive by one cycle. Drives satisfied since the
// previous cycle decay by DecayRate toward their baseline; everything else
// accumulates toward 1.
func (e *DriveEngine) Tick(ctx context.Context, since time.Time) error {
	drives, err := e.All(ctx)
	if err != nil {
		return err
	}
	for i := range drives {
		d := &drives[i]
		if d.LastSatisfied.After(since) {
			d.Level -= d.DecayRate
			if d.Level < d.Baseline {
				d.Level = d.Baseline
			}
		} else {
			d.Level += d.AccumulationRate
			if d.Level > 1 {
				d.Level = 1
			}
		}
		if err := e.db.WithContext(ctx).Model(&Drive{}).
			Where("name = ?", d.Name).
			Update("level", d.Level).Error; err != nil {
			return fmt.Errorf("failed to advance drive %s: %w", d.Name, err)
		}
	}
	return nil
}

// All returns every drive
func (e *DriveEngine) All(ctx context.Context) ([]Drive, error) {
	var drives []Drive
	if err := e.db.WithContext(ctx).Order("name asc").Find(&drives).Error; err != nil {
		return nil, fmt.Errorf("failed to load drives: %w", err)
	}
	return drives, nil
}

// MostUrgent returns the drive furthest over its urgency threshold, or nil if
// none is urgent
func (e *DriveEngine) MostUrgent(ctx context.Context) (*Drive, error) {
	drives, err := e.All(ctx)
	if err != nil {
		return nil, err
	}

	var best *Drive
	bestOvershoot := 0.0
	for i := range drives {
		d := &drives[i]
		if !d.Urgent() {
			continue
		}
		overshoot := d.Level - d.UrgencyThreshold
		if best == nil || overshoot > bestOvershoot {
			best = d
			bestOvershoot = overshoot
		}
	}
	return best, nil
}

// Satisfy relaxes a drive by one decay step toward its baseline and stamps
// the satisfaction time
func (e *DriveEngine) Satisfy(ctx context.Context, name string) error {
	var d Drive
	err := e.db.WithContext(ctx).First(&d, "name = ?", name).Error
	if err == gorm.ErrRecordNotFound {
		return fmt.Errorf("unknown drive: %s", name)
	}
	if err != nil {
		return fmt.Errorf("failed to load drive %s: %w", name, err)
	}

	d.Level -= d.DecayRate
	if d.Level < d.Baseline {
		d.Level = d.Baseline
	}

	err = e.db.WithContext(ctx).Model(&Drive{}).Where("name = ?", name).
		Updates(map[string]interface{}{
			"level":          d.Level,
			"last_satisfied": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to satisfy drive %s: %w", name, err)
	}
	return nil
}
