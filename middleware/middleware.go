// Package middleware wraps job handlers with cross-cutting behavior:
// panic recovery, tracing, metrics, logging, tenant scope restoration,
// and per-attempt timeouts.
package middleware

import "github.com/relayworks/relay/job"

// Middleware wraps a handler with additional behavior.
type Middleware func(next job.HandlerFunc) job.HandlerFunc

// Chain composes middlewares around a handler. The first middleware is
// outermost: Chain(h, a, b) runs a, then b, then h.
func Chain(handler job.HandlerFunc, middlewares ...Middleware) job.HandlerFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}
