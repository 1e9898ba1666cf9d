package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/relayworks/relay/job"
)

// Logging logs execution start and outcome with structured fields.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next job.HandlerFunc) job.HandlerFunc {
		return func(ctx context.Context, j *job.Job) error {
			start := time.Now()
			logger.Debug("job started",
				slog.String("job_id", j.ID.String()),
				slog.String("name", j.Name),
				slog.String("queue", j.Queue),
				slog.Int("attempt", j.Attempts+1))

			err := next(ctx, j)
			took := time.Since(start)

			if err != nil {
				logger.Warn("job failed",
					slog.String("job_id", j.ID.String()),
					slog.String("name", j.Name),
					slog.String("queue", j.Queue),
					slog.Int("attempt", j.Attempts+1),
					slog.Duration("took", took),
					slog.String("error", err.Error()))
				return err
			}

			logger.Info("job completed",
				slog.String("job_id", j.ID.String()),
				slog.String("name", j.Name),
				slog.String("queue", j.Queue),
				slog.Duration("took", took))
			return nil
		}
	}
}
