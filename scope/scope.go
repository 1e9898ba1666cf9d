// Package scope propagates tenant identity (app and organization)
// through contexts, so jobs enqueued inside a tenant request execute
// under the same tenant on a worker goroutine later.
package scope

import "context"

type ctxKey int

const (
	appIDKey ctxKey = iota
	orgIDKey
)

// Scope is a captured tenant identity.
type Scope struct {
	AppID string
	OrgID string
}

// Empty reports whether the scope carries no tenant identity.
func (s Scope) Empty() bool { return s.AppID == "" && s.OrgID == "" }

// WithAppID returns a context carrying the app ID.
func WithAppID(ctx context.Context, appID string) context.Context {
	return context.WithValue(ctx, appIDKey, appID)
}

// WithOrgID returns a context carrying the organization ID.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

// AppID extracts the app ID from ctx, if present.
func AppID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(appIDKey).(string)
	return v, ok && v != ""
}

// OrgID extracts the organization ID from ctx, if present.
func OrgID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(orgIDKey).(string)
	return v, ok && v != ""
}

// Capture snapshots the tenant identity in ctx for persistence
// alongside a job.
func Capture(ctx context.Context) Scope {
	var s Scope
	if appID, ok := AppID(ctx); ok {
		s.AppID = appID
	}
	if orgID, ok := OrgID(ctx); ok {
		s.OrgID = orgID
	}
	return s
}

// Restore reapplies a captured tenant identity onto a worker context.
func Restore(ctx context.Context, s Scope) context.Context {
	if s.AppID != "" {
		ctx = WithAppID(ctx, s.AppID)
	}
	if s.OrgID != "" {
		ctx = WithOrgID(ctx, s.OrgID)
	}
	return ctx
}
