package redisdb

import (
	"time"

	"github.com/redis/go-redis/v9"

	"go-psyche/internal/config"
)

// NewClient builds the outbox delivery client. Pool size and timeouts come
// from config; unset timeouts keep the driver defaults.
func NewClient(cfg *config.Config) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	if cfg.Redis.DialTimeoutMS > 0 {
		opts.DialTimeout = time.Duration(cfg.Redis.DialTimeoutMS) * time.Millisecond
	}
	if cfg.Redis.ReadTimeoutMS > 0 {
		opts.ReadTimeout = time.Duration(cfg.Redis.ReadTimeoutMS) * time.Millisecond
	}
	if cfg.Redis.WriteTimeoutMS > 0 {
		opts.WriteTimeout = time.Duration(cfg.Redis.WriteTimeoutMS) * time.Millisecond
	}
	return redis.NewClient(opts)
}
