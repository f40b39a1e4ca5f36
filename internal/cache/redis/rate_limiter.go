package redis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/forescene/forescene/internal/domain"
	"github.com/redis/go-redis/v9"
)

// slidingWindowLua trims a sorted set to the window, counts the remaining
// members, and conditionally records the new request, all atomically.
// KEYS[1] is the limiter key; ARGV[1] now (us), ARGV[2] window (us),
// ARGV[3] limit, ARGV[4] a unique member for this request. Returns
// {allowed, count}.
const slidingWindowLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, ARGV[4])
    redis.call('PEXPIRE', key, math.ceil(window / 1000))
    return {1, count + 1}
end
return {0, count}
`

// RateLimiter implements domain.RateLimiter with a sliding window over a
// Redis sorted set. The HTTP middleware uses it for per-client limits on the
// write endpoints.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
	seq           atomic.Uint64 // disambiguates requests sharing a timestamp
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:           c.Underlying(),
		slidingWindow: redis.NewScript(slidingWindowLua),
	}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// Allow reports whether a request for key is permitted under the sliding
// window. A permitted request is counted; a rejected one is not. Each
// counted request gets a distinct set member so bursts landing in the same
// microsecond are not collapsed.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now().UnixMicro()
	member := fmt.Sprintf("%d-%d", now, rl.seq.Add(1))

	result, err := rl.slidingWindow.Run(
		ctx,
		rl.rdb,
		[]string{rateLimitKey(key)},
		now,
		window.Microseconds(),
		limit,
		member,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}

	return result[0] == 1, nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
