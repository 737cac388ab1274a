// Package ratelimit throttles API clients with a Redis sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, counts it and records the request when under the limit.
// Returns {allowed, remaining, resetAtMs}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local window_ms = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local current = redis.call('ZCARD', key)

if current < limit then
	local seq = redis.call('INCR', key .. ':seq')
	redis.call('ZADD', key, now, now .. ':' .. seq)
	local ttl = math.ceil(window_ms / 1000)
	redis.call('EXPIRE', key, ttl)
	redis.call('EXPIRE', key .. ':seq', ttl)
	return {1, limit - current - 1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local reset_at = 0
if oldest and #oldest >= 2 then
	reset_at = tonumber(oldest[2]) + window_ms
end
return {0, 0, reset_at}
`)

// Limiter counts requests per key in Redis
type Limiter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewLimiter(client *redis.Client, prefix string) *Limiter {
	return &Limiter{client: client, prefix: prefix, now: time.Now}
}

// Result of a single check
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := l.now()
	res, err := slidingWindow.Run(ctx, l.client, []string{l.prefix + key},
		now.UnixMilli(), now.Add(-window).UnixMilli(), limit, window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply of %d values", len(res))
	}
	out := &Result{
		Allowed:   res[0] == 1,
		Limit:     limit,
		Remaining: int(res[1]),
		ResetAt:   now.Add(window),
	}
	if res[2] > 0 {
		out.ResetAt = time.UnixMilli(res[2])
	}
	return out, nil
}

// Reset forgets every request recorded for key
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key, l.prefix+key+":seq").Err()
}
