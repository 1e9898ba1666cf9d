package middleware

import (
	"context"
	"fmt"

	"github.com/relayworks/relay/job"
)

// Timeout enforces the job's per-attempt execution budget. A handler
// that outlives its budget gets a cancelled context; the attempt counts
// as a retryable failure.
func Timeout() Middleware {
	return func(next job.HandlerFunc) job.HandlerFunc {
		return func(ctx context.Context, j *job.Job) error {
			if j.Timeout <= 0 {
				return next(ctx, j)
			}

			ctx, cancel := context.WithTimeout(ctx, j.Timeout)
			defer cancel()

			err := next(ctx, j)
			if err == nil && ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("job %q exceeded timeout %v", j.Name, j.Timeout)
			}
			return err
		}
	}
}
