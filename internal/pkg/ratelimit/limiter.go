package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/JonasKellner/RenderForge/internal/pkg/cache"
)

const keyPrefix = "ratelimit:"

// slidingWindowScript performs the complete check-and-increment in a single
// atomic evaluation: expire old timestamps, count the trailing window, append
// on allow, arm the block key on violation. A client-side read/filter/upsert
// sequence would race under concurrent requests sharing a key.
var slidingWindowScript = redis.NewScript(`
local window_key = KEYS[1]
local block_key = KEYS[2]
local seq_key = KEYS[3]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local max_requests = tonumber(ARGV[3])
local block_ms = tonumber(ARGV[4])

local blocked_until = redis.call("GET", block_key)
if blocked_until and tonumber(blocked_until) > now_ms then
  local count = redis.call("ZCOUNT", window_key, now_ms - window_ms, "+inf")
  return {0, 0, tonumber(blocked_until), tonumber(blocked_until) - now_ms, count}
end

redis.call("ZREMRANGEBYSCORE", window_key, "-inf", now_ms - window_ms)
local count = redis.call("ZCARD", window_key)

if count < max_requests then
  local seq = redis.call("INCR", seq_key)
  local member = tostring(now_ms) .. "-" .. tostring(seq)
  redis.call("ZADD", window_key, now_ms, member)
  redis.call("PEXPIRE", window_key, window_ms)
  redis.call("PEXPIRE", seq_key, window_ms)
  return {1, max_requests - count - 1, now_ms + window_ms, 0, count + 1}
end

local blocked_end = now_ms + block_ms
redis.call("SET", block_key, tostring(blocked_end), "PX", block_ms)
return {0, 0, blocked_end, block_ms, count}
`)

// Result describes a single rate-limit decision.
type Result struct {
	Allowed      bool
	Remaining    int
	ResetAt      time.Time
	RetryAfter   time.Duration
	CurrentCount int
	FailedOpen   bool
}

// Limiter enforces named sliding-window tiers on Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a limiter on the shared cache client.
func NewLimiter() *Limiter {
	return &Limiter{client: cache.GetClient()}
}

// NewLimiterWithClient creates a limiter on an explicit Redis client.
func NewLimiterWithClient(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

func limiterKeys(action, identifier string) (string, string, string) {
	base := keyPrefix + action + ":" + identifier
	return base, base + ":blocked", base + ":seq"
}

// CheckLimit records a request attempt for identifier+action against the
// named tier and returns the decision. On Redis failure the limiter fails
// open: availability wins over strict enforcement.
func (l *Limiter) CheckLimit(ctx context.Context, identifier, action, tierName string) Result {
	tier := GetTier(tierName)
	windowKey, blockKey, seqKey := limiterKeys(action, identifier)
	now := time.Now()

	raw, err := slidingWindowScript.Run(
		ctx,
		l.client,
		[]string{windowKey, blockKey, seqKey},
		now.UnixMilli(),
		tier.Window.Milliseconds(),
		tier.MaxRequests,
		tier.BlockDuration.Milliseconds(),
	).Result()
	if err != nil {
		log.Warnf("[RateLimit] check failed for %s/%s, failing open: %v", action, identifier, err)
		return Result{
			Allowed:    true,
			Remaining:  tier.MaxRequests,
			ResetAt:    now.Add(tier.Window),
			FailedOpen: true,
		}
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 5 {
		log.Warnf("[RateLimit] unexpected script response for %s/%s, failing open", action, identifier)
		return Result{Allowed: true, Remaining: tier.MaxRequests, ResetAt: now.Add(tier.Window), FailedOpen: true}
	}

	allowed := asInt64(values[0]) == 1
	return Result{
		Allowed:      allowed,
		Remaining:    int(asInt64(values[1])),
		ResetAt:      time.UnixMilli(asInt64(values[2])),
		RetryAfter:   time.Duration(asInt64(values[3])) * time.Millisecond,
		CurrentCount: int(asInt64(values[4])),
	}
}

// Peek reports the current window state without recording a request.
func (l *Limiter) Peek(ctx context.Context, identifier, action, tierName string) (Result, error) {
	tier := GetTier(tierName)
	windowKey, blockKey, _ := limiterKeys(action, identifier)
	now := time.Now()

	count, err := l.client.ZCount(ctx, windowKey,
		fmt.Sprintf("%d", now.Add(-tier.Window).UnixMilli()), "+inf").Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit peek failed: %w", err)
	}

	res := Result{
		Allowed:      count < int64(tier.MaxRequests),
		Remaining:    tier.MaxRequests - int(count),
		ResetAt:      now.Add(tier.Window),
		CurrentCount: int(count),
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}

	blockedUntil, err := l.client.Get(ctx, blockKey).Int64()
	if err != nil && err != redis.Nil {
		return Result{}, fmt.Errorf("rate limit peek failed: %w", err)
	}
	if err == nil && blockedUntil > now.UnixMilli() {
		res.Allowed = false
		res.Remaining = 0
		res.ResetAt = time.UnixMilli(blockedUntil)
		res.RetryAfter = time.Duration(blockedUntil-now.UnixMilli()) * time.Millisecond
	}

	return res, nil
}

// Reset clears the window and any active block for identifier+action.
func (l *Limiter) Reset(ctx context.Context, identifier, action string) error {
	windowKey, blockKey, seqKey := limiterKeys(action, identifier)
	if err := l.client.Del(ctx, windowKey, blockKey, seqKey).Err(); err != nil {
		return fmt.Errorf("rate limit reset failed: %w", err)
	}
	return nil
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
