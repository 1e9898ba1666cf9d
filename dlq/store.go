package dlq

import (
	"context"

	"github.com/relayworks/relay/id"
)

// ListOpts filters and pages DLQ listings.
type ListOpts struct {
	Queue  string
	Limit  int
	Offset int
}

// Store is the persistence interface for dead letter entries.
type Store interface {
	// SaveDLQEntry persists a new entry.
	SaveDLQEntry(ctx context.Context, e *Entry) error

	// GetDLQEntry returns an entry by ID, or relay.ErrDLQNotFound.
	GetDLQEntry(ctx context.Context, entryID id.DLQID) (*Entry, error)

	// UpdateDLQEntry persists the entry's current fields.
	UpdateDLQEntry(ctx context.Context, e *Entry) error

	// DeleteDLQEntry removes an entry.
	DeleteDLQEntry(ctx context.Context, entryID id.DLQID) error

	// ListDLQEntries returns entries ordered most recently failed first.
	ListDLQEntries(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// CountDLQEntries tallies entries, optionally per queue.
	CountDLQEntries(ctx context.Context, queue string) (int64, error)

	// PurgeDLQEntries deletes all entries for a queue (all queues if
	// empty) and returns how many were removed.
	PurgeDLQEntries(ctx context.Context, queue string) (int64, error)
}
