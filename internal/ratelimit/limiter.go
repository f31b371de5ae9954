// Package ratelimit enforces the gateway's dual-window quotas: a short
// burst window checked first and an hourly window checked second, both
// fixed-window counters keyed by caller identity.
//
// Fixed windows keep memory and update cost O(1) per identity. The known
// tradeoff is the boundary burst: a caller can fit up to twice the nominal
// rate across a window edge.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Scope is a rate-limiting time horizon.
type Scope string

const (
	// ScopeBurst is the short 60-second window, checked first.
	ScopeBurst Scope = "burst"
	// ScopeHourly is the 3600-second window, checked after burst.
	ScopeHourly Scope = "hourly"
)

// Window returns the fixed window length for the scope.
func (s Scope) Window() time.Duration {
	if s == ScopeBurst {
		return time.Minute
	}
	return time.Hour
}

// LimitExceededError is returned when a counter is at its effective limit.
// Scope distinguishes burst from hourly rejections. Tier and Endpoint are
// filled by the caller that computed the effective limit, so responses can
// carry machine-readable context and a Retry-After value.
type LimitExceededError struct {
	Scope    Scope
	Limit    int
	ResetAt  time.Time
	Tier     string
	Endpoint string
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded: limit %d, resets at %s",
		e.Scope, e.Limit, e.ResetAt.UTC().Format(time.RFC3339))
}

// RetryAfter returns the whole seconds until the window resets, never
// less than one.
func (e *LimitExceededError) RetryAfter() int {
	secs := int(time.Until(e.ResetAt).Seconds()) + 1
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter checks and updates a fixed-window counter for an identity and
// scope. Implementations must perform the reset-then-increment as an
// atomic step per identity and scope key.
type Limiter interface {
	// Allow increments the counter for (identity, scope) if it is below
	// limit, returning a *LimitExceededError otherwise. Other errors
	// indicate a backend failure.
	Allow(ctx context.Context, identity string, scope Scope, limit int) error
}

// window is the mutable counter state for one identity and scope.
type window struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// MemoryLimiter is an in-process Limiter. Counters reset lazily when a
// request arrives after the window has elapsed; there is no sweeper.
type MemoryLimiter struct {
	mu      sync.RWMutex
	windows map[string]*window
}

// NewMemoryLimiter creates an in-process fixed-window limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*window)}
}

// Allow implements Limiter.
func (m *MemoryLimiter) Allow(_ context.Context, identity string, scope Scope, limit int) error {
	w := m.getWindow(identity, scope)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	length := scope.Window()
	if now.Sub(w.windowStart) >= length {
		w.count = 0
		w.windowStart = now
	}

	if w.count >= limit {
		return &LimitExceededError{
			Scope:   scope,
			Limit:   limit,
			ResetAt: w.windowStart.Add(length),
		}
	}

	w.count++
	return nil
}

func (m *MemoryLimiter) getWindow(identity string, scope Scope) *window {
	key := identity + "|" + string(scope)

	m.mu.RLock()
	w, ok := m.windows[key]
	m.mu.RUnlock()
	if ok {
		return w
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok = m.windows[key]; ok {
		return w
	}
	w = &window{windowStart: time.Now()}
	m.windows[key] = w
	return w
}

// EffectiveLimit applies an endpoint cost multiplier to a tier ceiling.
func EffectiveLimit(tierLimit int, multiplier float64) int {
	return int(float64(tierLimit) * multiplier)
}
