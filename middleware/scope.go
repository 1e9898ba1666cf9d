package middleware

import (
	"context"

	"github.com/relayworks/relay/job"
	"github.com/relayworks/relay/scope"
)

// Scope restores the tenant identity captured at enqueue time onto the
// handler's context.
func Scope() Middleware {
	return func(next job.HandlerFunc) job.HandlerFunc {
		return func(ctx context.Context, j *job.Job) error {
			ctx = scope.Restore(ctx, scope.Scope{
				AppID: j.ScopeAppID,
				OrgID: j.ScopeOrgID,
			})
			return next(ctx, j)
		}
	}
}
