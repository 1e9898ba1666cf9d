// Package store defines the composite persistence interface assembled
// from the per-subsystem store interfaces. Backends implement the whole
// surface; subsystems depend only on the slice they use.
package store

import (
	"github.com/relayworks/relay"
	"github.com/relayworks/relay/dlq"
	"github.com/relayworks/relay/job"
	"github.com/relayworks/relay/queue"
	"github.com/relayworks/relay/ratelimit"
)

// Store is the full persistence surface a backend provides.
type Store interface {
	relay.Storer
	job.Store
	dlq.Store
	queue.Store
	ratelimit.CounterStore
}
