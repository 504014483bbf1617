package config

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSettingsDB(t *testing.T) *Settings {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&Setting{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return NewSettings(db)
}

func TestSettingsTypedAccessors(t *testing.T) {
	s := newSettingsDB(t)
	ctx := context.Background()

	if err := s.Set(ctx, "energy.cost.reflect", "2.5"); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	if err := s.Set(ctx, "maintenance.promote_min_access", "3"); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	if err := s.Set(ctx, "termination.enabled", "true"); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}

	if got := s.GetFloat(ctx, "energy.cost.reflect", 0); got != 2.5 {
		t.Errorf("GetFloat = %v, want 2.5", got)
	}
	if got := s.GetInt(ctx, "maintenance.promote_min_access", 0); got != 3 {
		t.Errorf("GetInt = %v, want 3", got)
	}
	if got := s.GetBool(ctx, "termination.enabled", false); !got {
		t.Error("GetBool = false, want true")
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := newSettingsDB(t)
	ctx := context.Background()

	if got := s.GetFloat(ctx, "missing", 1.5); got != 1.5 {
		t.Errorf("missing float should fall back, got %v", got)
	}

	// Unparsable values also fall back
	if err := s.Set(ctx, "garbage", "not-a-number"); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	if got := s.GetInt(ctx, "garbage", 7); got != 7 {
		t.Errorf("unparsable int should fall back, got %v", got)
	}
}

func TestSettingsOverwriteAndScope(t *testing.T) {
	s := newSettingsDB(t)
	ctx := context.Background()

	if err := s.Set(ctx, "energy.cost.reflect", "1"); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	if err := s.Set(ctx, "energy.cost.reflect", "2"); err != nil {
		t.Fatalf("Failed to overwrite: %v", err)
	}
	if err := s.Set(ctx, "energy.cost.journal", "3"); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	if err := s.Set(ctx, "gate.preference.min_reflections", "10"); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}

	scope, err := s.Scope(ctx, "energy.cost.")
	if err != nil {
		t.Fatalf("Scope failed: %v", err)
	}
	if len(scope) != 2 {
		t.Fatalf("Expected 2 settings in scope, got %d", len(scope))
	}
	if scope["energy.cost.reflect"] != "2" {
		t.Errorf("Overwrite not visible in scope: %v", scope)
	}
}
