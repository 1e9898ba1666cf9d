package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/relayworks/relay/job"
)

// Tracing wraps each execution in an OpenTelemetry span. With no tracer
// provider configured the spans are no-ops.
func Tracing() Middleware {
	tracer := otel.Tracer(instrumentationName)

	return func(next job.HandlerFunc) job.HandlerFunc {
		return func(ctx context.Context, j *job.Job) error {
			ctx, span := tracer.Start(ctx, "relay.job.execute",
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(
					attribute.String("relay.job.id", j.ID.String()),
					attribute.String("relay.job.name", j.Name),
					attribute.String("relay.job.queue", j.Queue),
					attribute.Int("relay.job.attempt", j.Attempts+1)))
			defer span.End()

			err := next(ctx, j)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return err
		}
	}
}
