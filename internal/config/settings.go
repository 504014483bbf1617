package config

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting is one durable key/value pair. Keys are dot-scoped by category
// ("energy.cost.reflect", "gate.preference.min_reflections") so related
// settings can be read in one pass.
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Setting) TableName() string {
	return "psyche_settings"
}

// Settings is the durable settings store: tunables that survive restarts and
// can be adjusted at runtime without a config file rollout
type Settings struct {
	db *gorm.DB
}

// NewSettings creates the settings store
func NewSettings(db *gorm.DB) *Settings {
	return &Settings{db: db}
}

// Set writes one setting, creating or replacing it
func (s *Settings) Set(ctx context.Context, key, value string) error {
	setting := Setting{Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// GetString reads one setting, falling back to def when unset
func (s *Settings) GetString(ctx context.Context, key, def string) string {
	var setting Setting
	err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error
	if err != nil {
		return def
	}
	return setting.Value
}

// GetFloat reads one setting as a float, falling back to def when unset or
// unparsable
func (s *Settings) GetFloat(ctx context.Context, key string, def float64) float64 {
	raw := s.GetString(ctx, key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

// GetInt reads one setting as an int, falling back to def when unset or
// unparsable
func (s *Settings) GetInt(ctx context.Context, key string, def int) int {
	raw := s.GetString(ctx, key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// GetBool reads one setting as a bool, falling back to def when unset or
// unparsable
func (s *Settings) GetBool(ctx context.Context, key string, def bool) bool {
	raw := s.GetString(ctx, key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// Scope reads every setting under a key prefix, returned as a key->value map
// with the prefix intact
func (s *Settings) Scope(ctx context.Context, prefix string) (map[string]string, error) {
	var rows []Setting
	err := s.db.WithContext(ctx).
		Where("key LIKE ?", prefix+"%").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read settings scope %s: %w", prefix, err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}
