package job

import (
	"context"
	"time"

	"github.com/relayworks/relay/id"
)

// ListOpts filters and pages job listings.
type ListOpts struct {
	Queue  string
	Limit  int
	Offset int
}

// CountOpts selects which jobs a CountJobs call tallies. Zero values
// mean "any". OnlyDelayed restricts pending jobs to those whose RunAt
// is still in the future.
type CountOpts struct {
	Queue       string
	State       State
	OnlyDelayed bool
}

// Store is the persistence interface for jobs. Implementations must
// make DequeueJobs an atomic claim: a job handed to one caller is
// never handed to another until it is released back to a waiting state.
type Store interface {
	// EnqueueJob persists a new job in the pending state.
	EnqueueJob(ctx context.Context, j *Job) error

	// DequeueJobs atomically claims up to limit due jobs from the given
	// queues, marks them running, and stamps the claiming worker.
	// Paused queues and jobs with RunAt in the future are skipped.
	// Ordering is priority ascending, then RunAt ascending.
	DequeueJobs(ctx context.Context, workerID id.WorkerID, queues []string, limit int) ([]*Job, error)

	// GetJob returns a job by ID, or relay.ErrJobNotFound.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists the job's current fields.
	UpdateJob(ctx context.Context, j *Job) error

	// DeleteJob removes a job.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// CancelJob atomically cancels a job if and only if it is still
	// waiting (pending or retrying). Returns true if the job was
	// cancelled, false if it already started or finished.
	CancelJob(ctx context.Context, jobID id.JobID) (bool, error)

	// ListJobsByState returns jobs in the given state.
	ListJobsByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// CountJobs tallies jobs matching opts.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// HeartbeatJob stamps the job's liveness timestamp.
	HeartbeatJob(ctx context.Context, jobID id.JobID, at time.Time) error

	// ReapStaleJobs returns running jobs whose heartbeat is older than
	// threshold to the pending state and reports them.
	ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*Job, error)

	// PruneJobs trims terminal jobs in a queue and state down to the
	// keep most recent, returning how many were removed.
	PruneJobs(ctx context.Context, queue string, state State, keep int) (int64, error)
}
