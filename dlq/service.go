package dlq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/relayworks/relay/id"
	"github.com/relayworks/relay/job"
)

// Service provides push, inspection, and replay over the dead letter
// queue. Replay re-enqueues a fresh job built from the preserved entry.
type Service struct {
	store    Store
	jobs     job.Store
	logger   *slog.Logger
	attempts int
	retain   bool
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithReplayAttempts sets the attempt budget granted to replayed jobs.
// Default 1: a replayed job that fails again goes straight back to the
// dead letter queue for another operator decision.
func WithReplayAttempts(n int) ServiceOption {
	return func(s *Service) {
		if n >= 1 {
			s.attempts = n
		}
	}
}

// WithRetainReplayed keeps replayed entries in the DLQ, stamped with
// the replay time, instead of deleting them. An audit option for
// operators who want the history; retained entries still count toward
// Stats and List until deleted or purged.
func WithRetainReplayed() ServiceOption {
	return func(s *Service) { s.retain = true }
}

// NewService creates a DLQ service over the given stores.
func NewService(store Store, jobs job.Store, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		jobs:     jobs,
		logger:   logger,
		attempts: 1,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Push preserves a terminally failed job as a dead letter entry.
func (s *Service) Push(ctx context.Context, j *job.Job, failure string) (*Entry, error) {
	e := &Entry{
		ID:          id.NewDLQID(),
		JobID:       j.ID,
		Name:        j.Name,
		Queue:       j.Queue,
		Payload:     j.Payload,
		Error:       failure,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		Priority:    j.Priority,
		RateScope:   j.RateScope,
		ScopeAppID:  j.ScopeAppID,
		ScopeOrgID:  j.ScopeOrgID,
		Timeout:     j.Timeout,
		FailedAt:    s.now(),
	}
	e.CreatedAt = e.FailedAt
	e.UpdatedAt = e.FailedAt

	if err := s.store.SaveDLQEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("dlq: save entry for job %s: %w", j.ID, err)
	}

	s.logger.Warn("job dead-lettered",
		slog.String("job_id", j.ID.String()),
		slog.String("queue", j.Queue),
		slog.Int("attempts", j.Attempts),
		slog.String("error", failure))
	return e, nil
}

// Replay re-enqueues the entry as a fresh pending job with a reset
// attempt counter and a fresh attempt budget, then removes the entry.
// A job exists either in the DLQ or in a queue, never both. With
// WithRetainReplayed the entry is kept and stamped instead.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	e, err := s.store.GetDLQEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	j := &job.Job{
		ID:          id.NewJobID(),
		Name:        e.Name,
		Queue:       e.Queue,
		Payload:     e.Payload,
		State:       job.StatePending,
		Priority:    e.Priority,
		MaxAttempts: s.attempts,
		Attempts:    0,
		RateScope:   e.RateScope,
		ScopeAppID:  e.ScopeAppID,
		ScopeOrgID:  e.ScopeOrgID,
		Timeout:     e.Timeout,
		RunAt:       now,
	}
	j.CreatedAt = now
	j.UpdatedAt = now

	if err := s.jobs.EnqueueJob(ctx, j); err != nil {
		return nil, fmt.Errorf("dlq: replay entry %s: %w", entryID, err)
	}

	if s.retain {
		e.ReplayedAt = &now
		e.UpdatedAt = now
		if err := s.store.UpdateDLQEntry(ctx, e); err != nil {
			s.logger.Error("replay succeeded but entry update failed",
				slog.String("entry_id", entryID.String()),
				slog.String("error", err.Error()))
		}
	} else if err := s.store.DeleteDLQEntry(ctx, entryID); err != nil {
		s.logger.Error("replay succeeded but entry delete failed",
			slog.String("entry_id", entryID.String()),
			slog.String("error", err.Error()))
	}

	s.logger.Info("dead letter replayed",
		slog.String("entry_id", entryID.String()),
		slog.String("new_job_id", j.ID.String()),
		slog.String("queue", j.Queue))
	return j, nil
}

// Get returns one entry by ID.
func (s *Service) Get(ctx context.Context, entryID id.DLQID) (*Entry, error) {
	return s.store.GetDLQEntry(ctx, entryID)
}

// List returns entries ordered most recently failed first.
func (s *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return s.store.ListDLQEntries(ctx, opts)
}

// Delete removes one entry without replaying it.
func (s *Service) Delete(ctx context.Context, entryID id.DLQID) error {
	return s.store.DeleteDLQEntry(ctx, entryID)
}

// Purge deletes all entries for queue (all queues if empty).
func (s *Service) Purge(ctx context.Context, queue string) (int64, error) {
	n, err := s.store.PurgeDLQEntries(ctx, queue)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("dead letter queue purged",
			slog.String("queue", queue),
			slog.Int64("removed", n))
	}
	return n, nil
}

// Stats summarizes the DLQ: total entries, per-queue counts, and up to
// the 10 most recent failures.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.store.CountDLQEntries(ctx, "")
	if err != nil {
		return nil, err
	}

	recent, err := s.store.ListDLQEntries(ctx, ListOpts{Limit: 10})
	if err != nil {
		return nil, err
	}

	byQueue := make(map[string]int64)
	// Full scan per queue would need a schema the stores don't all
	// have; walk entries in pages instead.
	const page = 200
	for offset := 0; ; offset += page {
		entries, err := s.store.ListDLQEntries(ctx, ListOpts{Limit: page, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			byQueue[e.Queue]++
		}
		if len(entries) < page {
			break
		}
	}

	return &Stats{Total: total, ByQueue: byQueue, Recent: recent}, nil
}
