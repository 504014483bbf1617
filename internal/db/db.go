package db

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"go-psyche/internal/belief"
	"go-psyche/internal/config"
	"go-psyche/internal/heartbeat"
	"go-psyche/internal/memory"
)

var DB *gorm.DB

func Init(cfg *config.Config) error {
	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		return err
	}

	// Auto-migrate memory support tables (episodes, neighborhoods, edges)
	if err := db.AutoMigrate(&memory.Episode{}, &memory.EpisodeMember{}, &memory.Neighborhood{}, &memory.MemoryEdge{}); err != nil {
		return err
	}

	// Auto-migrate belief models
	if err := db.AutoMigrate(&belief.Belief{}, &belief.Change{}, &belief.Goal{}); err != nil {
		return err
	}

	// Auto-migrate heartbeat models
	if err := db.AutoMigrate(&heartbeat.State{}, &heartbeat.LedgerEntry{}, &heartbeat.Drive{}, &heartbeat.OutboxEntry{}, &heartbeat.DecisionRequest{}); err != nil {
		return err
	}

	// Auto-migrate durable settings
	if err := db.AutoMigrate(&config.Setting{}); err != nil {
		return err
	}

	DB = db
	log.Printf("Database connected and migrated")
	return nil
}
