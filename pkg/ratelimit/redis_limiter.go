// Package ratelimit throttles outbound calls to paid/rate-limited
// collaborators (chiefly the LLM layer matcher) with a Redis-backed token
// bucket, so a single match run can't blow through an upstream provider's
// quota, grounded on the teacher's pkg/kernel token-bucket limiter.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// bucketScript implements a token bucket atomically in Redis: refill by
// elapsed time * rate, then attempt to consume cost tokens.
//
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens/second)
// ARGV[2] = capacity (burst size)
// ARGV[3] = cost (tokens to consume)
// ARGV[4] = now (unix seconds, float)
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
	tokens = capacity
	last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
	tokens = math.min(capacity, tokens + elapsed * rate)
	last_refill = now
end

local allowed = 0
if tokens >= cost then
	tokens = tokens - cost
	allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return allowed
`)

// Limiter is a per-key token bucket rate limiter.
type Limiter struct {
	client   *redis.Client
	rate     float64 // tokens/second
	capacity float64 // burst size
}

// NewLimiter connects to addr and builds a limiter with the given
// sustained rate (tokens/second) and burst capacity.
func NewLimiter(addr, password string, db int, rate, capacity float64) *Limiter {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &Limiter{client: client, rate: rate, capacity: capacity}
}

// Allow reports whether one call under key may proceed now, consuming a
// token if so. Fails open (allowed=true) on Redis errors — a rate limiter
// outage must never itself block matching.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(time.Now().UnixNano()) / 1e9
	res, err := bucketScript.Run(ctx, l.client, []string{"ratelimit:" + key}, l.rate, l.capacity, 1, now).Result()
	if err != nil {
		return true, fmt.Errorf("rate limiter unavailable, failing open: %w", err)
	}
	allowed, _ := res.(int64)
	return allowed == 1, nil
}

func (l *Limiter) Close() error {
	return l.client.Close()
}
