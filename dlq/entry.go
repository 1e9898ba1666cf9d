// Package dlq implements the dead letter queue: storage for terminally
// failed jobs, inspection, and operator-driven replay.
package dlq

import (
	"time"

	"github.com/relayworks/relay"
	"github.com/relayworks/relay/id"
)

// Entry is a terminally failed job preserved for inspection and replay.
// It carries everything needed to reconstruct the job.
type Entry struct {
	relay.Entity

	ID    id.DLQID `json:"id"`
	JobID id.JobID `json:"job_id"`

	Name    string `json:"name"`
	Queue   string `json:"queue"`
	Payload []byte `json:"payload"`

	// Error is the final failure message that exhausted the job.
	Error string `json:"error"`

	// Attempts is how many executions the job consumed before
	// dead-lettering. Equals MaxAttempts for exhaustion, may be lower
	// for terminal errors.
	Attempts    int `json:"attempts"`
	MaxAttempts int `json:"max_attempts"`

	Priority   int    `json:"priority"`
	RateScope  string `json:"rate_scope,omitempty"`
	ScopeAppID string `json:"scope_app_id,omitempty"`
	ScopeOrgID string `json:"scope_org_id,omitempty"`

	Timeout time.Duration `json:"timeout,omitempty"`

	FailedAt   time.Time  `json:"failed_at"`
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`
}

// Replayed reports whether the entry has already been replayed.
func (e *Entry) Replayed() bool { return e.ReplayedAt != nil }

// Stats summarizes the dead letter queue.
type Stats struct {
	Total   int64            `json:"total"`
	ByQueue map[string]int64 `json:"by_queue"`
	// Recent holds up to the 10 most recently failed entries.
	Recent []*Entry `json:"recent"`
}
