// Package observability provides an extension that turns job lifecycle
// events into OpenTelemetry counters. Register it with the extension
// registry; with no meter provider configured every instrument is a
// no-op.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/relayworks/relay/dlq"
	"github.com/relayworks/relay/job"
)

const instrumentationName = "github.com/relayworks/relay/observability"

// Extension counts job lifecycle transitions.
type Extension struct {
	enqueued  metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	retried   metric.Int64Counter
	dlq       metric.Int64Counter
	stalled   metric.Int64Counter
	duration  metric.Float64Histogram
}

// New creates the metrics extension.
func New() *Extension {
	meter := otel.Meter(instrumentationName)

	e := &Extension{}
	e.enqueued, _ = meter.Int64Counter("relay.jobs.enqueued",
		metric.WithDescription("Jobs accepted onto a queue"))
	e.completed, _ = meter.Int64Counter("relay.jobs.completed",
		metric.WithDescription("Jobs finished successfully"))
	e.failed, _ = meter.Int64Counter("relay.jobs.failed",
		metric.WithDescription("Failed job executions"))
	e.retried, _ = meter.Int64Counter("relay.jobs.retried",
		metric.WithDescription("Jobs scheduled for retry"))
	e.dlq, _ = meter.Int64Counter("relay.jobs.dead_lettered",
		metric.WithDescription("Jobs moved to the dead letter queue"))
	e.stalled, _ = meter.Int64Counter("relay.jobs.stalled",
		metric.WithDescription("Jobs recovered from dead workers"))
	e.duration, _ = meter.Float64Histogram("relay.jobs.duration",
		metric.WithDescription("Successful job execution duration"),
		metric.WithUnit("s"))
	return e
}

func attrs(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("queue", j.Queue),
		attribute.String("name", j.Name))
}

// OnJobEnqueued implements ext.JobEnqueuedHook.
func (e *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) {
	e.enqueued.Add(ctx, 1, attrs(j))
}

// OnJobCompleted implements ext.JobCompletedHook.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, took time.Duration) {
	e.completed.Add(ctx, 1, attrs(j))
	e.duration.Record(ctx, took.Seconds(), attrs(j))
}

// OnJobFailed implements ext.JobFailedHook.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, _ error) {
	e.failed.Add(ctx, 1, attrs(j))
}

// OnJobRetrying implements ext.JobRetryingHook.
func (e *Extension) OnJobRetrying(ctx context.Context, j *job.Job, _ time.Duration) {
	e.retried.Add(ctx, 1, attrs(j))
}

// OnJobDLQ implements ext.JobDLQHook.
func (e *Extension) OnJobDLQ(ctx context.Context, j *job.Job, _ *dlq.Entry) {
	e.dlq.Add(ctx, 1, attrs(j))
}

// OnJobStalled implements ext.JobStalledHook.
func (e *Extension) OnJobStalled(ctx context.Context, j *job.Job) {
	e.stalled.Add(ctx, 1, attrs(j))
}
