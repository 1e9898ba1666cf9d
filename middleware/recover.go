package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/relayworks/relay/job"
)

// Recover converts handler panics into retryable errors, keeping one
// bad payload from taking down the worker pool.
func Recover() Middleware {
	return func(next job.HandlerFunc) job.HandlerFunc {
		return func(ctx context.Context, j *job.Job) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("panic in handler %q: %v\n%s", j.Name, rec, debug.Stack())
				}
			}()
			return next(ctx, j)
		}
	}
}
