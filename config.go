package relay

import "time"

// Config holds configuration for a Relay coordinator.
type Config struct {
	// Concurrency is the maximum number of jobs processed concurrently
	// per queue pool.
	Concurrency int

	// Queues is the list of queue names this process will poll. Empty
	// means every declared queue.
	Queues []string

	// PollInterval is how often idle workers poll for new jobs.
	// Zero means the one second default.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful drain.
	ShutdownTimeout time.Duration

	// HeartbeatInterval is how often running jobs send heartbeats.
	// Zero disables heartbeats.
	HeartbeatInterval time.Duration

	// StaleJobThreshold is how long a running job may go without a
	// heartbeat before it is considered stalled and reclaimed. Zero
	// disables the reaper.
	StaleJobThreshold time.Duration

	// SweepInterval is how often background maintenance runs: the
	// stale job reaper and the rate limit counter sweep. Zero means
	// the one minute default.
	SweepInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       5,
		PollInterval:      1 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		StaleJobThreshold: 30 * time.Second,
		SweepInterval:     1 * time.Minute,
	}
}
