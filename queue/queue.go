// Package queue manages named queue configuration: per-queue defaults,
// retention, rate policy, durable pause state, and metrics.
package queue

import (
	"context"
	"time"

	"github.com/relayworks/relay/ratelimit"
)

// Options are the per-queue defaults applied to jobs enqueued without
// explicit overrides.
type Options struct {
	// MaxAttempts is the default attempt budget for jobs on this queue.
	MaxAttempts int

	// Priority is the default priority. Lower runs first.
	Priority int

	// Timeout is the default per-attempt execution budget.
	Timeout time.Duration

	// Concurrency caps how many jobs from this queue run at once in
	// this process. Zero means the pool-wide cap is the only limit.
	Concurrency int

	// RateLimit caps executions per rate scope within a fixed window,
	// shared across all worker processes. Zero means unlimited.
	RateLimit ratelimit.Policy

	// KeepCompleted and KeepFailed bound how many terminal jobs are
	// retained per queue for inspection. Zero keeps everything.
	KeepCompleted int
	KeepFailed    int
}

// DefaultQueueOptions returns the options applied when a queue is
// created without overrides.
func DefaultQueueOptions() Options {
	return Options{
		MaxAttempts: 3,
		Timeout:     5 * time.Minute,
	}
}

// Option is a functional option for queue configuration.
type Option func(*Options)

// WithMaxAttempts sets the default attempt budget.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithPriority sets the default priority.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithTimeout sets the default per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithConcurrency caps in-process parallelism for the queue.
func WithConcurrency(n int) Option {
	return func(o *Options) { o.Concurrency = n }
}

// WithRateLimit caps executions per scope to limit per window.
func WithRateLimit(limit int64, window time.Duration) Option {
	return func(o *Options) {
		o.RateLimit = ratelimit.Policy{Limit: limit, Window: window}
	}
}

// WithRetention bounds retained terminal jobs per state.
func WithRetention(keepCompleted, keepFailed int) Option {
	return func(o *Options) {
		o.KeepCompleted = keepCompleted
		o.KeepFailed = keepFailed
	}
}

// Metrics is a point-in-time snapshot of one queue.
type Metrics struct {
	// Waiting counts pending jobs that are due now.
	Waiting int64 `json:"waiting"`
	// Delayed counts jobs scheduled for the future, including retry
	// waits.
	Delayed int64 `json:"delayed"`
	// Active counts jobs currently executing.
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Paused    bool  `json:"paused"`
}

// Store is the persistence interface for durable queue state. Pause
// survives process restarts and is honored by every worker sharing the
// store.
type Store interface {
	// SetQueuePaused persists the pause flag for a queue.
	SetQueuePaused(ctx context.Context, name string, paused bool) error

	// QueuePaused reports the durable pause flag.
	QueuePaused(ctx context.Context, name string) (bool, error)
}

// Queue is a handle to one named queue. Handles are cheap and shared;
// all state lives in the registry and the store.
type Queue struct {
	name string
	reg  *Registry
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Options returns the queue's configured defaults.
func (q *Queue) Options() Options { return q.reg.options(q.name) }

// Pause durably stops dequeue for this queue. Enqueue keeps working
// and jobs accumulate until Resume.
func (q *Queue) Pause(ctx context.Context) error {
	return q.reg.setPaused(ctx, q.name, true)
}

// Resume durably re-enables dequeue for this queue.
func (q *Queue) Resume(ctx context.Context) error {
	return q.reg.setPaused(ctx, q.name, false)
}

// Paused reports the durable pause flag.
func (q *Queue) Paused(ctx context.Context) (bool, error) {
	return q.reg.paused(ctx, q.name)
}

// Metrics returns a point-in-time snapshot of the queue's job counts.
func (q *Queue) Metrics(ctx context.Context) (*Metrics, error) {
	return q.reg.metrics(ctx, q.name)
}
