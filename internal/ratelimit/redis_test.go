package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiterForTest(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLimiter(client, "test:", nil), mr
}

func TestRedisLimiterAllow(t *testing.T) {
	limiter, _ := newRedisLimiterForTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "id-1", ScopeBurst, 3); err != nil {
			t.Fatalf("Allow() #%d error = %v", i+1, err)
		}
	}

	err := limiter.Allow(ctx, "id-1", ScopeBurst, 3)
	var limitErr *LimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("Allow() over limit error = %v, want LimitExceededError", err)
	}
	if limitErr.Scope != ScopeBurst {
		t.Errorf("scope = %s, want burst", limitErr.Scope)
	}
}

func TestRedisLimiterIsolatesIdentitiesAndScopes(t *testing.T) {
	limiter, _ := newRedisLimiterForTest(t)
	ctx := context.Background()

	if err := limiter.Allow(ctx, "id-1", ScopeBurst, 1); err != nil {
		t.Fatalf("Allow(id-1 burst) error = %v", err)
	}
	if err := limiter.Allow(ctx, "id-1", ScopeBurst, 1); err == nil {
		t.Fatal("expected id-1 burst limit")
	}
	if err := limiter.Allow(ctx, "id-1", ScopeHourly, 1); err != nil {
		t.Errorf("Allow(id-1 hourly) error = %v", err)
	}
	if err := limiter.Allow(ctx, "id-2", ScopeBurst, 1); err != nil {
		t.Errorf("Allow(id-2 burst) error = %v", err)
	}
}

func TestRedisLimiterSetsWindowTTL(t *testing.T) {
	limiter, mr := newRedisLimiterForTest(t)
	ctx := context.Background()

	if err := limiter.Allow(ctx, "id-1", ScopeBurst, 10); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("keys = %v, want exactly one", keys)
	}
	ttl := mr.TTL(keys[0])
	if ttl <= 0 {
		t.Errorf("TTL = %v, want positive", ttl)
	}
}

func TestRedisLimiterFallsBackWhenUnavailable(t *testing.T) {
	limiter, mr := newRedisLimiterForTest(t)
	ctx := context.Background()

	mr.Close()

	// Redis is down; the in-memory fallback still enforces the limit.
	if err := limiter.Allow(ctx, "id-1", ScopeBurst, 1); err != nil {
		t.Fatalf("Allow() with fallback error = %v", err)
	}
	err := limiter.Allow(ctx, "id-1", ScopeBurst, 1)
	var limitErr *LimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("Allow() over limit error = %v, want LimitExceededError", err)
	}
	if limiter.isAvailable() {
		t.Error("limiter still marked available after redis failure")
	}
}

func TestRedisLimiterReconnectsAfterOutage(t *testing.T) {
	limiter, mr := newRedisLimiterForTest(t)
	ctx := context.Background()

	mr.Close()
	if err := limiter.Allow(ctx, "id-1", ScopeBurst, 10); err != nil {
		t.Fatalf("Allow() during outage error = %v", err)
	}
	if limiter.isAvailable() {
		t.Fatal("limiter still marked available during outage")
	}

	if err := mr.Restart(); err != nil {
		t.Fatalf("miniredis Restart() error = %v", err)
	}

	// Inside the probe interval requests stay on the fallback.
	if err := limiter.Allow(ctx, "id-1", ScopeBurst, 10); err != nil {
		t.Fatalf("Allow() before probe error = %v", err)
	}
	if limiter.isAvailable() {
		t.Fatal("limiter recovered before the probe interval elapsed")
	}

	// Once the interval has passed, the next request probes Redis and
	// restores the distributed counters.
	limiter.availableMu.Lock()
	limiter.nextProbe = time.Time{}
	limiter.availableMu.Unlock()

	if err := limiter.Allow(ctx, "id-1", ScopeBurst, 10); err != nil {
		t.Fatalf("Allow() on probe error = %v", err)
	}
	if !limiter.isAvailable() {
		t.Error("limiter not marked available after successful probe")
	}
	if len(mr.Keys()) == 0 {
		t.Error("no counter written to redis after recovery")
	}
}
