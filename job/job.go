package job

import (
	"math"
	"time"

	"github.com/relayworks/relay"
	"github.com/relayworks/relay/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting (or delayed) until a worker
	// picks it up.
	StatePending State = "pending"
	// StateRunning means a worker is currently executing the job.
	StateRunning State = "running"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the job failed terminally and was dead-lettered.
	StateFailed State = "failed"
	// StateRetrying means the job failed but is scheduled for retry.
	StateRetrying State = "retrying"
	// StateCancelled means the job was explicitly cancelled before it ran.
	StateCancelled State = "cancelled"
)

// PriorityUrgent sorts ahead of every user-assigned priority. Lower
// priority values dequeue first.
const PriorityUrgent = math.MinInt32

// Job represents one unit of publishing work. It is mutated only by the
// worker pool that currently holds it; the store's atomic claim
// guarantees at most one active executor per job at a time.
type Job struct {
	relay.Entity

	ID      id.JobID `json:"id"`
	Name    string   `json:"name"`
	Queue   string   `json:"queue"`
	Payload []byte   `json:"payload"`
	State   State    `json:"state"`

	// Priority orders dequeue: lower values run first. Default 0.
	Priority int `json:"priority"`

	// MaxAttempts is the total execution budget before dead-lettering.
	MaxAttempts int `json:"max_attempts"`

	// Attempts counts executions made so far. Monotonically
	// non-decreasing; never exceeds MaxAttempts before a terminal state.
	Attempts int `json:"attempts"`

	LastError string `json:"last_error,omitempty"`

	// RateScope is the rate-limit aggregation key. Empty means the
	// queue name.
	RateScope string `json:"rate_scope,omitempty"`

	ScopeAppID string `json:"scope_app_id,omitempty"`
	ScopeOrgID string `json:"scope_org_id,omitempty"`

	WorkerID    id.WorkerID   `json:"worker_id,omitempty"`
	RunAt       time.Time     `json:"run_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	HeartbeatAt *time.Time    `json:"heartbeat_at,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// Scope returns the effective rate-limit scope for the job.
func (j *Job) Scope() string {
	if j.RateScope != "" {
		return j.RateScope
	}
	return "queue:" + j.Queue
}

// Terminal reports whether the job reached a terminal state.
func (j *Job) Terminal() bool {
	switch j.State {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}
