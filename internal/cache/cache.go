// Package cache is a Redis cache-aside layer in front of the catalog.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON values in Redis under a common prefix
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	stats  stats
}

type stats struct {
	hits, misses, sets, deletes, errors atomic.Uint64
}

// Stats is a point-in-time copy of the counters
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Sets    uint64  `json:"sets"`
	Deletes uint64  `json:"deletes"`
	Errors  uint64  `json:"errors"`
	HitRate float64 `json:"hitRate"`
}

func New(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

// Get decodes the cached value into dest; false means a miss
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.stats.misses.Add(1)
			return false, nil
		}
		c.stats.errors.Add(1)
		return false, fmt.Errorf("cache get: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.stats.errors.Add(1)
		return false, fmt.Errorf("cache decode: %w", err)
	}
	c.stats.hits.Add(1)
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.stats.errors.Add(1)
		return fmt.Errorf("cache encode: %w", err)
	}
	return c.setRaw(ctx, key, data)
}

func (c *Cache) setRaw(ctx context.Context, key string, data []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.stats.errors.Add(1)
		return fmt.Errorf("cache set: %w", err)
	}
	c.stats.sets.Add(1)
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	n, err := c.client.Del(ctx, full...).Result()
	if err != nil {
		c.stats.errors.Add(1)
		return fmt.Errorf("cache delete: %w", err)
	}
	c.stats.deletes.Add(uint64(n))
	return nil
}

// DeletePattern removes every key matching the glob pattern
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+pattern, 100).Result()
		if err != nil {
			c.stats.errors.Add(1)
			return fmt.Errorf("cache scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				c.stats.errors.Add(1)
				return fmt.Errorf("cache delete: %w", err)
			}
			c.stats.deletes.Add(uint64(n))
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (c *Cache) Stats() Stats {
	s := Stats{
		Hits:    c.stats.hits.Load(),
		Misses:  c.stats.misses.Load(),
		Sets:    c.stats.sets.Load(),
		Deletes: c.stats.deletes.Load(),
		Errors:  c.stats.errors.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total) * 100
	}
	return s
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
