package redisdb

import (
	"testing"
	"time"

	"go-psyche/internal/config"
)

func TestNewClient_BasicConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.Password = ""
	cfg.Redis.DB = 15

	client := NewClient(cfg)
	if client == nil {
		t.Fatalf("NewClient returned nil")
	}
	// Check that options are set as expected
	opts := client.Options()
	if opts.Addr != cfg.Redis.Addr {
		t.Errorf("expected Addr %s, got %s", cfg.Redis.Addr, opts.Addr)
	}
	if opts.Password != cfg.Redis.Password {
		t.Errorf("expected Password %s, got %s", cfg.Redis.Password, opts.Password)
	}
	if opts.DB != cfg.Redis.DB {
		t.Errorf("expected DB %d, got %d", cfg.Redis.DB, opts.DB)
	}
}

func TestNewClient_PoolAndTimeouts(t *testing.T) {
	cfg := &config.Config{}
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.PoolSize = 25
	cfg.Redis.DialTimeoutMS = 1500
	cfg.Redis.ReadTimeoutMS = 700
	cfg.Redis.WriteTimeoutMS = 900

	opts := NewClient(cfg).Options()
	if opts.PoolSize != 25 {
		t.Errorf("expected PoolSize 25, got %d", opts.PoolSize)
	}
	if opts.DialTimeout != 1500*time.Millisecond {
		t.Errorf("expected DialTimeout 1.5s, got %v", opts.DialTimeout)
	}
	if opts.ReadTimeout != 700*time.Millisecond {
		t.Errorf("expected ReadTimeout 700ms, got %v", opts.ReadTimeout)
	}
	if opts.WriteTimeout != 900*time.Millisecond {
		t.Errorf("expected WriteTimeout 900ms, got %v", opts.WriteTimeout)
	}
}
