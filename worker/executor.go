// Package worker implements the worker pool: claiming jobs from the
// store, executing them through the middleware chain, and driving the
// retry, dead-letter, heartbeat, and reaper machinery.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/relayworks/relay/backoff"
	"github.com/relayworks/relay/dlq"
	"github.com/relayworks/relay/ext"
	"github.com/relayworks/relay/id"
	"github.com/relayworks/relay/job"
	"github.com/relayworks/relay/middleware"
	"github.com/relayworks/relay/queue"
)

// Executor runs one claimed job to its next state: completed, retrying,
// or dead-lettered. Rate-limit admission happens before the executor;
// by the time Execute runs, the attempt is being spent.
type Executor struct {
	registry    *job.Registry
	store       job.Store
	dlq         *dlq.Service
	exts        *ext.Registry
	queues      *queue.Registry
	strategy    backoff.Strategy
	middlewares []middleware.Middleware
	logger      *slog.Logger
	now         func() time.Time
}

// NewExecutor creates an executor.
func NewExecutor(
	registry *job.Registry,
	store job.Store,
	dlqSvc *dlq.Service,
	exts *ext.Registry,
	queues *queue.Registry,
	strategy backoff.Strategy,
	middlewares []middleware.Middleware,
	logger *slog.Logger,
) *Executor {
	if strategy == nil {
		strategy = backoff.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:    registry,
		store:       store,
		dlq:         dlqSvc,
		exts:        exts,
		queues:      queues,
		strategy:    strategy,
		middlewares: middlewares,
		logger:      logger,
		now:         time.Now,
	}
}

// Execute runs one attempt of a claimed job and persists the outcome.
func (e *Executor) Execute(ctx context.Context, j *job.Job) {
	handler, ok := e.registry.Handler(j.Name)
	if !ok {
		// Nothing will ever be able to run this job.
		e.fail(ctx, j, job.Terminal(fmt.Errorf("no handler registered for %q", j.Name)))
		return
	}

	e.exts.EmitJobStarted(ctx, j)
	start := e.now()

	wrapped := middleware.Chain(handler, e.middlewares...)
	err := wrapped(ctx, j)
	took := e.now().Sub(start)

	if err == nil {
		e.succeed(ctx, j, took)
		return
	}
	e.fail(ctx, j, err)
}

func (e *Executor) succeed(ctx context.Context, j *job.Job, took time.Duration) {
	now := e.now()
	j.Attempts++
	j.State = job.StateCompleted
	j.CompletedAt = &now
	j.LastError = ""

	if err := e.store.UpdateJob(ctx, j); err != nil {
		e.logger.Error("persist completed job failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	e.exts.EmitJobCompleted(ctx, j, took)
	e.pruneRetention(ctx, j.Queue, job.StateCompleted)
}

func (e *Executor) fail(ctx context.Context, j *job.Job, execErr error) {
	j.Attempts++
	j.LastError = execErr.Error()
	e.exts.EmitJobFailed(ctx, j, execErr)

	exhausted := j.Attempts >= j.MaxAttempts
	if job.IsTerminal(execErr) || exhausted {
		e.deadLetter(ctx, j, execErr)
		return
	}
	e.scheduleRetry(ctx, j)
}

func (e *Executor) scheduleRetry(ctx context.Context, j *job.Job) {
	delay := e.strategy.Delay(j.Attempts)
	j.State = job.StateRetrying
	j.RunAt = e.now().Add(delay)
	j.WorkerID = id.Nil
	j.StartedAt = nil
	j.HeartbeatAt = nil

	if err := e.store.UpdateJob(ctx, j); err != nil {
		e.logger.Error("persist retry failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("queue", j.Queue),
		slog.Int("attempt", j.Attempts),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("delay", delay))
	e.exts.EmitJobRetrying(ctx, j, delay)
}

func (e *Executor) deadLetter(ctx context.Context, j *job.Job, execErr error) {
	now := e.now()
	j.State = job.StateFailed
	j.CompletedAt = &now

	entry, err := e.dlq.Push(ctx, j, execErr.Error())
	if err != nil {
		e.logger.Error("dead letter push failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()))
	}
	if err := e.store.UpdateJob(ctx, j); err != nil {
		e.logger.Error("persist failed job failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	e.exts.EmitJobDLQ(ctx, j, entry)
	e.pruneRetention(ctx, j.Queue, job.StateFailed)
}

// pruneRetention trims terminal jobs past the queue's retention bound.
func (e *Executor) pruneRetention(ctx context.Context, queueName string, state job.State) {
	q, ok := e.queues.Get(queueName)
	if !ok {
		return
	}
	opts := q.Options()
	keep := opts.KeepCompleted
	if state == job.StateFailed {
		keep = opts.KeepFailed
	}
	if keep <= 0 {
		return
	}
	if _, err := e.store.PruneJobs(ctx, queueName, state, keep); err != nil {
		e.logger.Warn("retention prune failed",
			slog.String("queue", queueName),
			slog.String("error", err.Error()))
	}
}
