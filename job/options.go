package job

import "time"

// Options configures per-job behavior such as retries, queue, priority,
// scheduling delay, and rate-limit scope.
type Options struct {
	// MaxAttempts is the total number of executions allowed before the
	// job is moved to the dead letter queue.
	MaxAttempts int

	// Queue is the queue name this job should be enqueued to.
	Queue string

	// Priority determines dequeue ordering. Lower values are processed
	// first; ties break FIFO by enqueue time.
	Priority int

	// Delay postpones the first execution. Must be >= 0.
	Delay time.Duration

	// Timeout is the maximum duration one attempt may run before its
	// context is cancelled.
	Timeout time.Duration

	// RateScope overrides the rate-limit aggregation key. Empty means
	// the queue name.
	RateScope string
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		Queue:       "default",
		Priority:    0,
		Timeout:     5 * time.Minute,
	}
}

// Validate reports whether the options are acceptable to the enqueue
// surface. Producers only ever learn that enqueue accepted or rejected
// the job; malformed options are the reject case.
func (o Options) Validate() error {
	if o.Delay < 0 {
		return errInvalidDelay
	}
	if o.MaxAttempts < 1 {
		return errInvalidAttempts
	}
	return nil
}

// Option is a functional option for configuring a job.
type Option func(*Options)

// WithMaxAttempts sets the total execution budget.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithQueue sets the queue name for the job.
func WithQueue(q string) Option {
	return func(o *Options) { o.Queue = q }
}

// WithPriority sets the job priority. Lower values are processed first.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithDelay postpones the first execution by d.
func WithDelay(d time.Duration) Option {
	return func(o *Options) { o.Delay = d }
}

// WithTimeout sets the maximum per-attempt execution duration.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithRateScope sets the rate-limit aggregation key for the job.
func WithRateScope(scope string) Option {
	return func(o *Options) { o.RateScope = scope }
}
