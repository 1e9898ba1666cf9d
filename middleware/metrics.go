package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/relayworks/relay/job"
)

const instrumentationName = "github.com/relayworks/relay"

// Metrics records execution counts and durations via OpenTelemetry.
// With no meter provider configured the instruments are no-ops.
func Metrics() Middleware {
	meter := otel.Meter(instrumentationName)

	executions, _ := meter.Int64Counter("relay.job.executions",
		metric.WithDescription("Job executions by outcome"))
	duration, _ := meter.Float64Histogram("relay.job.duration",
		metric.WithDescription("Job execution duration"),
		metric.WithUnit("s"))

	return func(next job.HandlerFunc) job.HandlerFunc {
		return func(ctx context.Context, j *job.Job) error {
			start := time.Now()
			err := next(ctx, j)
			took := time.Since(start).Seconds()

			status := "ok"
			if err != nil {
				status = "error"
			}
			attrs := metric.WithAttributes(
				attribute.String("queue", j.Queue),
				attribute.String("name", j.Name),
				attribute.String("status", status))

			executions.Add(ctx, 1, attrs)
			duration.Record(ctx, took, attrs)
			return err
		}
	}
}
