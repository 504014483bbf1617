package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

type EmbeddingConfig struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Dimensions int    `json:"dimensions"`
}

type PsycheConfig struct {
	EmbeddingModel EmbeddingConfig `json:"embedding_model"`
	Qdrant         struct {
		URL        string `json:"url"`
		Collection string `json:"collection"`
		APIKey     string `json:"api_key"`
	} `json:"qdrant"`
	Heartbeat struct {
		IntervalSeconds int     `json:"interval_seconds"`
		MaxEnergy       float64 `json:"max_energy"`
		RegenPerCycle   float64 `json:"regen_per_cycle"`
	} `json:"heartbeat"`
	Maintenance struct {
		IntervalMinutes   int `json:"interval_minutes"`
		NeighborBatchSize int `json:"neighbor_batch_size"`
		EmbedCacheMaxDays int `json:"embed_cache_max_days"`
	} `json:"maintenance"`
	AllowTermination bool `json:"allow_termination"`
}

type Config struct {
	Server struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"server"`
	Postgres struct {
		DSN string `json:"dsn"`
	} `json:"postgres"`
	Redis struct {
		Addr           string `json:"addr"`
		Password       string `json:"password"`
		DB             int    `json:"db"`
		PoolSize       int    `json:"pool_size"`
		DialTimeoutMS  int    `json:"dial_timeout_ms"`
		ReadTimeoutMS  int    `json:"read_timeout_ms"`
		WriteTimeoutMS int    `json:"write_timeout_ms"`
	} `json:"redis"`
	Psyche PsycheConfig `json:"psyche"`
}

var (
	once   sync.Once
	cfg    *Config
	cfgErr error
)

// LoadConfig reads config.json from disk (singleton)
func LoadConfig(path string) (*Config, error) {
	once.Do(func() {
		raw, err := os.ReadFile(path)
		if err != nil {
			cfgErr = fmt.Errorf("failed to read config file: %w", err)
			return
		}
		var c Config
		if err := json.Unmarshal(raw, &c); err != nil {
			cfgErr = fmt.Errorf("invalid config format: %w", err)
			return
		}
		// Minimal validation
		if c.Psyche.EmbeddingModel.Dimensions <= 0 {
			cfgErr = errors.New("embedding_model.dimensions must be set in config")
			return
		}
		if c.Psyche.Heartbeat.IntervalSeconds <= 0 {
			c.Psyche.Heartbeat.IntervalSeconds = 60
		}
		if c.Psyche.Heartbeat.MaxEnergy <= 0 {
			c.Psyche.Heartbeat.MaxEnergy = 100
		}
		if c.Psyche.Heartbeat.RegenPerCycle <= 0 {
			c.Psyche.Heartbeat.RegenPerCycle = 5
		}
		if c.Psyche.Maintenance.IntervalMinutes <= 0 {
			c.Psyche.Maintenance.IntervalMinutes = 30
		}
		if c.Psyche.Maintenance.NeighborBatchSize <= 0 {
			c.Psyche.Maintenance.NeighborBatchSize = 16
		}
		if c.Psyche.Maintenance.EmbedCacheMaxDays <= 0 {
			c.Psyche.Maintenance.EmbedCacheMaxDays = 30
		}
		if c.Redis.PoolSize <= 0 {
			c.Redis.PoolSize = 10
		}
		cfg = &c
	})
	return cfg, cfgErr
}

// GetConfig returns the loaded config (must call LoadConfig first)
func GetConfig() *Config {
	return cfg
}

// ResetConfigForTest resets the singleton state (for testing only)
func ResetConfigForTest() {
	once = sync.Once{}
	cfg = nil
	cfgErr = nil
}
