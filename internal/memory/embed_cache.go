// internal/memory/embed_cache.go
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const embedCachePrefix = "psyche:emb:"

// CachedEmbedder sits in front of another Embedder and memoizes vectors by
// content hash in redis, so identical text never pays a second network cost.
type CachedEmbedder struct {
	inner Embedder
	rdb   *redis.Client
}

type cachedVector struct {
	Vector   []float32 `json:"v"`
	CachedAt int64     `json:"at"`
}

// NewCachedEmbedder wraps inner with a redis content-hash cache
func NewCachedEmbedder(inner Embedder, rdb *redis.Client) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, rdb: rdb}
}

// Dimensions returns the inner embedder's vector size
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Health delegates to the inner embedder
func (c *CachedEmbedder) Health(ctx context.Context) error {
	return c.inner.Health(ctx)
}

// Embed returns a cached vector when the exact text was embedded before,
// otherwise calls through and stores the result. Cache failures degrade to a
// direct call rather than failing the embed.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := embedCacheKey(text)

	raw, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		var cached cachedVector
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			if len(cached.Vector) == c.inner.Dimensions() {
				return cached.Vector, nil
			}
			// Stale entry from a different model dimension, drop it
			c.rdb.Del(ctx, key)
		}
	} else if err != redis.Nil {
		log.Printf("[EmbedCache] WARNING: cache read failed: %v", err)
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	entry, jsonErr := json.Marshal(cachedVector{Vector: vec, CachedAt: time.Now().Unix()})
	if jsonErr == nil {
		if setErr := c.rdb.Set(ctx, key, entry, 0).Err(); setErr != nil {
			log.Printf("[EmbedCache] WARNING: cache write failed: %v", setErr)
		}
	}

	return vec, nil
}

// GC deletes cache entries older than maxAge. Returns the number removed.
// Safe to call repeatedly; each pass is independent.
func (c *CachedEmbedder) GC(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	removed := 0

	iter := c.rdb.Scan(ctx, 0, embedCachePrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := c.rdb.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var cached cachedVector
		if err := json.Unmarshal([]byte(raw), &cached); err != nil || cached.CachedAt < cutoff {
			if delErr := c.rdb.Del(ctx, key).Err(); delErr == nil {
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("embed cache scan failed: %w", err)
	}

	return removed, nil
}

func embedCacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return embedCachePrefix + hex.EncodeToString(sum[:])
}
