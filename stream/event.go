// Package stream exposes job lifecycle transitions as an in-process
// event stream. The Broker plugs into the extension registry as a
// listener and fans events out to topic subscribers.
package stream

import (
	"time"

	"github.com/relayworks/relay/id"
)

// EventType identifies a lifecycle transition.
type EventType string

// Lifecycle event types.
const (
	EventJobEnqueued  EventType = "job.enqueued"
	EventJobStarted   EventType = "job.started"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
	EventJobRetrying  EventType = "job.retrying"
	EventJobDLQ       EventType = "job.dlq"
	EventJobStalled   EventType = "job.stalled"
)

// Event is one lifecycle transition of one job. Events are
// observational: consumers cannot mutate job state through them.
type Event struct {
	ID    id.EventID `json:"id"`
	Type  EventType  `json:"type"`
	JobID id.JobID   `json:"job_id"`
	Name  string     `json:"name"`
	Queue string     `json:"queue"`

	// Attempts is the job's attempt count at emit time.
	Attempts int `json:"attempts"`

	// Error carries the failure message on failed/retrying/dlq events.
	Error string `json:"error,omitempty"`

	// Delay carries the retry delay on retrying events.
	Delay time.Duration `json:"delay,omitempty"`

	At time.Time `json:"at"`
}
