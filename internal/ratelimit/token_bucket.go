package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrNotConfigured = errors.New("rate limiter not configured")
	ErrInvalidSpec   = errors.New("invalid rate limit spec")
)

// refillScript refills the bucket from the Redis clock, takes one token when
// available and returns {allowed, tokens*1000}. Lua numbers come back as
// integers, hence the scaling.
const refillScript = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now_ms = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", key, "t", "at")
local tokens = tonumber(state[1]) or burst
local last_ms = tonumber(state[2]) or now_ms

local elapsed_ms = math.max(0, now_ms - last_ms)
tokens = math.min(burst, tokens + elapsed_ms * rate / 1000)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("HSET", key, "t", tokens, "at", now_ms)
redis.call("PEXPIRE", key, ttl_ms)

return {allowed, math.floor(tokens * 1000)}
`

// Spec is a refill rate in tokens per second and a bucket capacity.
type Spec struct {
	Rate  float64
	Burst int
}

func (s Spec) validate() error {
	if s.Rate <= 0 || math.IsInf(s.Rate, 0) || math.IsNaN(s.Rate) {
		return fmt.Errorf("%w: rate %v", ErrInvalidSpec, s.Rate)
	}
	if s.Burst <= 0 {
		return fmt.Errorf("%w: burst %d", ErrInvalidSpec, s.Burst)
	}
	return nil
}

// TokenBucket is a Redis-backed token bucket shared by every replica.
type TokenBucket struct {
	client redis.Scripter
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// NewTokenBucket returns nil for a nil client so callers can treat a
// missing Redis as "limiting off".
func NewTokenBucket(client redis.Scripter) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(refillScript)}
}

// Take consumes one token from the bucket stored at key.
func (t *TokenBucket) Take(ctx context.Context, key string, spec Spec) (*RateLimitResult, error) {
	if t == nil || t.client == nil {
		return nil, ErrNotConfigured
	}
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidSpec)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}

	reply, err := t.script.Run(ctx, t.client, []string{key},
		strconv.FormatFloat(spec.Rate, 'f', -1, 64),
		spec.Burst,
		defaultBucketTTL(spec.Rate, spec.Burst).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("run token bucket script: %w", err)
	}
	if len(reply) < 2 {
		return nil, fmt.Errorf("token bucket script returned %d values", len(reply))
	}

	return bucketResult(reply[0] == 1, float64(reply[1])/1000, spec.Rate, spec.Burst), nil
}

func bucketResult(allowed bool, remaining, rate float64, burst int) *RateLimitResult {
	res := &RateLimitResult{Allowed: allowed, Limit: burst, Remaining: int(remaining)}
	if !allowed && remaining < 1 {
		res.RetryAfter = time.Duration((1 - remaining) / rate * float64(time.Second))
	}
	return res
}

// defaultBucketTTL keeps idle buckets for twice the time a full refill takes.
func defaultBucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	return time.Duration(max(math.Ceil(float64(burst)/rate*2), 1)) * time.Second
}
