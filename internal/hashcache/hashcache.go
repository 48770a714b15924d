// Package hashcache keeps artifact content hashes in Redis so hash lookups can
// skip the database.
package hashcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"corpora/internal/config"
)

// Cache stores hashes under <prefix><table>:<key>.
type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	owned  bool
}

// New wraps an existing client. A zero ttl stores keys without expiry.
func New(client redis.UniversalClient, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

// Open connects to the configured Redis server and verifies it responds.
// It returns nil when the cache is disabled.
func Open(ctx context.Context, cfg *config.Config) (*Cache, error) {
	if cfg == nil || !cfg.Cache.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Cache.RedisAddr,
		DB:   cfg.Cache.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Cache.RedisAddr, err)
	}
	cache := New(client, cfg.Cache.KeyPrefix, cfg.CacheTTL())
	cache.owned = true
	return cache, nil
}

// key keeps the document key verbatim. Rewriting the separator would let
// distinct composite ids share a slot.
func (c *Cache) key(table, key string) string {
	return c.prefix + table + ":" + key
}

// Get returns the cached hash for key in table.
func (c *Cache) Get(ctx context.Context, table, key string) (string, bool, error) {
	hash, err := c.client.Get(ctx, c.key(table, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

// GetMany fetches hashes for keys in one MGET. Missing keys are absent from
// the result.
func (c *Cache) GetMany(ctx context.Context, table string, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	names := make([]string, len(keys))
	for i, key := range keys {
		names[i] = c.key(table, key)
	}
	values, err := c.client.MGet(ctx, names...).Result()
	if err != nil {
		return nil, err
	}
	for i, value := range values {
		if hash, ok := value.(string); ok {
			out[keys[i]] = hash
		}
	}
	return out, nil
}

// SetMany stores hashes keyed by document key in one pipeline.
func (c *Cache) SetMany(ctx context.Context, table string, hashes map[string]string) error {
	if len(hashes) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, hash := range hashes {
			pipe.Set(ctx, c.key(table, key), hash, c.ttl)
		}
		return nil
	})
	return err
}

// Set stores hash for key in table.
func (c *Cache) Set(ctx context.Context, table, key, hash string) error {
	return c.client.Set(ctx, c.key(table, key), hash, c.ttl).Err()
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client when the cache opened it.
func (c *Cache) Close() error {
	if c == nil || !c.owned {
		return nil
	}
	return c.client.Close()
}
