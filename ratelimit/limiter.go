// Package ratelimit implements a distributed fixed-window rate limiter.
//
// Each scope gets one counter per time window, keyed by the window
// index. The first increment in a window arms a TTL so counters clean
// themselves up on backends with native expiry; a Sweeper covers
// backends without it.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy caps executions per scope within a fixed window.
// A zero Limit means unlimited.
type Policy struct {
	Limit  int64
	Window time.Duration
}

// Unlimited reports whether the policy imposes no cap.
func (p Policy) Unlimited() bool { return p.Limit <= 0 || p.Window <= 0 }

// Result is the outcome of an admission check.
type Result struct {
	Allowed   bool
	Remaining int64
	// ResetAt is the start of the next window, when a denied scope
	// becomes eligible again.
	ResetAt time.Time
}

// CounterStore is the persistence interface for window counters.
// IncrCounter must be atomic across processes sharing the store.
type CounterStore interface {
	// IncrCounter atomically increments the counter at key and returns
	// the post-increment value.
	IncrCounter(ctx context.Context, key string) (int64, error)

	// ExpireCounter arms a TTL on key. Backends without native expiry
	// may record the deadline for the sweeper instead.
	ExpireCounter(ctx context.Context, key string, ttl time.Duration) error

	// ScanCounters returns all counter keys with the given prefix.
	ScanCounters(ctx context.Context, prefix string) ([]string, error)

	// CounterTTL returns the remaining TTL for key. Negative means no
	// TTL or missing key.
	CounterTTL(ctx context.Context, key string) (time.Duration, error)

	// DeleteCounter removes a counter.
	DeleteCounter(ctx context.Context, key string) error
}

const keyPrefix = "ratelimit:"

// Limiter performs fixed-window admission checks against a shared
// counter store. It fails open: if the store errors, the check allows
// the execution rather than stalling the queue.
type Limiter struct {
	store  CounterStore
	logger *slog.Logger
	now    func() time.Time
}

// NewLimiter creates a Limiter backed by store.
func NewLimiter(store CounterStore, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, logger: logger, now: time.Now}
}

// SetClock overrides the limiter's clock. Test hook.
func (l *Limiter) SetClock(now func() time.Time) { l.now = now }

// Check performs one admission check for scope under policy. A denied
// result consumes nothing from the job's attempt budget; callers
// reschedule for Result.ResetAt.
func (l *Limiter) Check(ctx context.Context, scope string, policy Policy) Result {
	if policy.Unlimited() {
		return Result{Allowed: true, Remaining: -1}
	}

	now := l.now()
	windowMs := policy.Window.Milliseconds()
	idx := now.UnixMilli() / windowMs
	resetAt := time.UnixMilli((idx + 1) * windowMs)
	key := fmt.Sprintf("%s%s:%d", keyPrefix, scope, idx)

	count, err := l.store.IncrCounter(ctx, key)
	if err != nil {
		l.logger.Warn("rate limit check failed, allowing",
			slog.String("scope", scope),
			slog.String("error", err.Error()))
		return Result{Allowed: true, Remaining: -1, ResetAt: resetAt}
	}

	if count == 1 {
		// The key is window-indexed, so nothing increments it after its
		// window ends; one window of TTL is enough.
		if err := l.store.ExpireCounter(ctx, key, policy.Window); err != nil {
			l.logger.Warn("rate limit expire failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}

	if count > policy.Limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}
	return Result{Allowed: true, Remaining: policy.Limit - count, ResetAt: resetAt}
}
