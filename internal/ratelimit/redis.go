package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisLimiter enforces fixed-window counters in Redis, so horizontally
// scaled gateway replicas share one quota per identity. Counters use
// INCR on per-window keys; windows align on wall-clock boundaries
// (time truncated to the window length), which keeps the reset-then-
// increment atomic without scripting.
//
// When Redis is unreachable the limiter falls back to an in-process
// MemoryLimiter so a cache outage degrades isolation, not availability.
// While down, one request per probe interval retries Redis; the rest go
// straight to the fallback.
type RedisLimiter struct {
	client     redis.UniversalClient
	keyPrefix  string
	fallback   *MemoryLimiter
	logger     *zap.Logger
	probeEvery time.Duration

	availableMu sync.RWMutex
	available   bool
	nextProbe   time.Time
}

// defaultProbeInterval is how long the limiter waits between reconnect
// attempts while Redis is marked unavailable.
const defaultProbeInterval = 30 * time.Second

// NewRedisLimiter creates a distributed limiter with an in-memory fallback.
func NewRedisLimiter(client redis.UniversalClient, keyPrefix string, logger *zap.Logger) *RedisLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	return &RedisLimiter{
		client:     client,
		keyPrefix:  keyPrefix,
		fallback:   NewMemoryLimiter(),
		logger:     logger,
		probeEvery: defaultProbeInterval,
		available:  true,
	}
}

// Allow implements Limiter.
func (r *RedisLimiter) Allow(ctx context.Context, identity string, scope Scope, limit int) error {
	if !r.shouldTryRedis() {
		return r.fallback.Allow(ctx, identity, scope, limit)
	}

	length := scope.Window()
	windowStart := time.Now().Truncate(length)
	key := fmt.Sprintf("%s%s:%s:%d", r.keyPrefix, identity, scope, windowStart.Unix())

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		r.markUnavailable(err)
		return r.fallback.Allow(ctx, identity, scope, limit)
	}
	r.markAvailable()

	if count == 1 {
		// TTL slightly longer than the window so boundary requests still
		// observe the counter; Redis reaps the key afterwards.
		_ = r.client.Expire(ctx, key, length+time.Second).Err()
	}

	if count > int64(limit) {
		return &LimitExceededError{
			Scope:   scope,
			Limit:   limit,
			ResetAt: windowStart.Add(length),
		}
	}
	return nil
}

func (r *RedisLimiter) isAvailable() bool {
	r.availableMu.RLock()
	defer r.availableMu.RUnlock()
	return r.available
}

// shouldTryRedis reports whether this request should hit Redis. While
// unavailable, it elects at most one probe per interval and pushes the
// next probe time forward so concurrent requests stay on the fallback.
func (r *RedisLimiter) shouldTryRedis() bool {
	r.availableMu.Lock()
	defer r.availableMu.Unlock()
	if r.available {
		return true
	}
	now := time.Now()
	if now.Before(r.nextProbe) {
		return false
	}
	r.nextProbe = now.Add(r.probeEvery)
	return true
}

func (r *RedisLimiter) markUnavailable(err error) {
	r.availableMu.Lock()
	was := r.available
	r.available = false
	r.nextProbe = time.Now().Add(r.probeEvery)
	r.availableMu.Unlock()
	if was {
		r.logger.Warn("redis unavailable, falling back to in-memory rate limiting", zap.Error(err))
	}
}

func (r *RedisLimiter) markAvailable() {
	r.availableMu.Lock()
	was := r.available
	r.available = true
	r.availableMu.Unlock()
	if !was {
		r.logger.Info("redis reachable again, resuming distributed rate limiting")
	}
}
