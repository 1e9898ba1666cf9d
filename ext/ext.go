// Package ext defines the extension hook interfaces for job lifecycle
// events. An extension implements any subset of the hook interfaces;
// the Registry discovers which hooks an extension supports and fans
// events out to every implementer.
//
// Hooks run synchronously on the emitting goroutine and must not
// block. A hook that panics is recovered and logged so one misbehaving
// listener cannot take down the worker pool.
package ext

import (
	"context"
	"time"

	"github.com/relayworks/relay/dlq"
	"github.com/relayworks/relay/job"
)

// JobEnqueuedHook fires after a job is durably persisted.
type JobEnqueuedHook interface {
	OnJobEnqueued(ctx context.Context, j *job.Job)
}

// JobStartedHook fires when a worker claims a job and begins execution.
type JobStartedHook interface {
	OnJobStarted(ctx context.Context, j *job.Job)
}

// JobCompletedHook fires on successful completion.
type JobCompletedHook interface {
	OnJobCompleted(ctx context.Context, j *job.Job, took time.Duration)
}

// JobFailedHook fires on every failed execution, retryable or not.
type JobFailedHook interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error)
}

// JobRetryingHook fires when a failed job is scheduled for retry.
type JobRetryingHook interface {
	OnJobRetrying(ctx context.Context, j *job.Job, delay time.Duration)
}

// JobDLQHook fires when a job is moved to the dead letter queue.
type JobDLQHook interface {
	OnJobDLQ(ctx context.Context, j *job.Job, entry *dlq.Entry)
}

// JobStalledHook fires when the reaper returns a job with a lapsed
// heartbeat to the pending state.
type JobStalledHook interface {
	OnJobStalled(ctx context.Context, j *job.Job)
}

// ShutdownHook fires once during graceful shutdown, after workers have
// drained and before the store closes.
type ShutdownHook interface {
	OnShutdown(ctx context.Context)
}
