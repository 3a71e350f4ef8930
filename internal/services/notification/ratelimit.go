package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter decides whether another email may be sent on behalf of key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// tokenBucketScript refills and consumes a token bucket atomically. Buckets are hashes that
// expire shortly after a full window of inactivity.
const tokenBucketScript = `
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local refillRate = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local windowSeconds = tonumber(ARGV[4])

	local bucket = redis.call('HMGET', key, 'tokens', 'lastRefill')
	local tokens = tonumber(bucket[1])
	local lastRefill = tonumber(bucket[2])
	if tokens == nil then
		tokens = capacity
	end
	if lastRefill == nil then
		lastRefill = now
	end

	local elapsed = (now - lastRefill) / 1000000000
	if elapsed > 0 then
		tokens = math.min(capacity, tokens + elapsed * refillRate)
	end

	local allowed = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	end

	redis.call('HSET', key, 'tokens', tostring(tokens), 'lastRefill', tostring(now))
	redis.call('EXPIRE', key, math.ceil(windowSeconds * 1.1))

	return allowed
`

// RedisRateLimiter is a token bucket shared by every server instance.
type RedisRateLimiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int
	window    time.Duration
}

// NewRedisRateLimiter allows limit sends per window for each key.
// keyPrefix defaults to "invite_email:" if empty.
func NewRedisRateLimiter(client *redis.Client, keyPrefix string, limit int, window time.Duration) *RedisRateLimiter {
	if keyPrefix == "" {
		keyPrefix = "invite_email:"
	}

	return &RedisRateLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
	}
}

// ParseRateLimitUnit converts units like "1min", "1h" or "1d" into a duration.
func ParseRateLimitUnit(unit string) (time.Duration, error) {
	switch unit {
	case "1min":
		return time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "6h":
		return 6 * time.Hour, nil
	case "12h":
		return 12 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	case "1w":
		return 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown rate limit unit: %s", unit)
	}
}

// Allow consumes a token for key if one is available.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	capacity := float64(r.limit)
	refillRate := capacity / r.window.Seconds()

	result, err := r.client.Eval(ctx, tokenBucketScript, []string{r.keyPrefix + key},
		capacity,
		refillRate,
		time.Now().UnixNano(),
		r.window.Seconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	return result == 1, nil
}

// Ping checks if the Redis connection is healthy.
func (r *RedisRateLimiter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (r *RedisRateLimiter) Close() error {
	return r.client.Close()
}
