package ext

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/relayworks/relay/dlq"
	"github.com/relayworks/relay/job"
)

// Registry holds registered extensions and dispatches lifecycle events
// to every extension implementing the matching hook. Hook slices are
// resolved once at registration, so emits are allocation-free lookups.
type Registry struct {
	mu     sync.RWMutex
	logger *slog.Logger

	enqueued  []JobEnqueuedHook
	started   []JobStartedHook
	completed []JobCompletedHook
	failed    []JobFailedHook
	retrying  []JobRetryingHook
	dlq       []JobDLQHook
	stalled   []JobStalledHook
	shutdown  []ShutdownHook
}

// NewRegistry creates an empty extension registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension, slotting it into every hook list whose
// interface it implements.
func (r *Registry) Register(extension any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := extension.(JobEnqueuedHook); ok {
		r.enqueued = append(r.enqueued, h)
	}
	if h, ok := extension.(JobStartedHook); ok {
		r.started = append(r.started, h)
	}
	if h, ok := extension.(JobCompletedHook); ok {
		r.completed = append(r.completed, h)
	}
	if h, ok := extension.(JobFailedHook); ok {
		r.failed = append(r.failed, h)
	}
	if h, ok := extension.(JobRetryingHook); ok {
		r.retrying = append(r.retrying, h)
	}
	if h, ok := extension.(JobDLQHook); ok {
		r.dlq = append(r.dlq, h)
	}
	if h, ok := extension.(JobStalledHook); ok {
		r.stalled = append(r.stalled, h)
	}
	if h, ok := extension.(ShutdownHook); ok {
		r.shutdown = append(r.shutdown, h)
	}
}

func (r *Registry) safely(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("extension hook panicked",
				slog.String("hook", name),
				slog.Any("panic", rec))
		}
	}()
	fn()
}

// EmitJobEnqueued dispatches to all JobEnqueuedHook implementers.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	r.mu.RLock()
	hooks := r.enqueued
	r.mu.RUnlock()
	for _, h := range hooks {
		r.safely("job_enqueued", func() { h.OnJobEnqueued(ctx, j) })
	}
}

// EmitJobStarted dispatches to all JobStartedHook implementers.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	r.mu.RLock()
	hooks := r.started
	r.mu.RUnlock()
	for _, h := range hooks {
		r.safely("job_started", func() { h.OnJobStarted(ctx, j) })
	}
}

// EmitJobCompleted dispatches to all JobCompletedHook implementers.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, took time.Duration) {
	r.mu.RLock()
	hooks := r.completed
	r.mu.RUnlock()
	for _, h := range hooks {
		r.safely("job_completed", func() { h.OnJobCompleted(ctx, j, took) })
	}
}

// EmitJobFailed dispatches to all JobFailedHook implementers.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, err error) {
	r.mu.RLock()
	hooks := r.failed
	r.mu.RUnlock()
	for _, h := range hooks {
		r.safely("job_failed", func() { h.OnJobFailed(ctx, j, err) })
	}
}

// EmitJobRetrying dispatches to all JobRetryingHook implementers.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, delay time.Duration) {
	r.mu.RLock()
	hooks := r.retrying
	r.mu.RUnlock()
	for _, h := range hooks {
		r.safely("job_retrying", func() { h.OnJobRetrying(ctx, j, delay) })
	}
}

// EmitJobDLQ dispatches to all JobDLQHook implementers.
func (r *Registry) EmitJobDLQ(ctx context.Context, j *job.Job, entry *dlq.Entry) {
	r.mu.RLock()
	hooks := r.dlq
	r.mu.RUnlock()
	for _, h := range hooks {
		r.safely("job_dlq", func() { h.OnJobDLQ(ctx, j, entry) })
	}
}

// EmitJobStalled dispatches to all JobStalledHook implementers.
func (r *Registry) EmitJobStalled(ctx context.Context, j *job.Job) {
	r.mu.RLock()
	hooks := r.stalled
	r.mu.RUnlock()
	for _, h := range hooks {
		r.safely("job_stalled", func() { h.OnJobStalled(ctx, j) })
	}
}

// EmitShutdown dispatches to all ShutdownHook implementers.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	hooks := r.shutdown
	r.mu.RUnlock()
	for _, h := range hooks {
		r.safely("shutdown", func() { h.OnShutdown(ctx) })
	}
}
