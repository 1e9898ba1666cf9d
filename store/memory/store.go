// Package memory provides an in-memory store for development and
// tests. It implements every subsystem store interface with the same
// semantics as the durable backends, including atomic claims and
// fixed-window counters, but nothing survives a process restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/relayworks/relay"
	"github.com/relayworks/relay/dlq"
	"github.com/relayworks/relay/id"
	"github.com/relayworks/relay/job"
)

type counter struct {
	value     int64
	expiresAt time.Time
}

// Store is an in-memory implementation of the relay store interfaces.
// Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	jobs     map[string]*job.Job
	entries  map[string]*dlq.Entry
	paused   map[string]bool
	counters map[string]*counter
	closed   bool
	now      func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		jobs:     make(map[string]*job.Job),
		entries:  make(map[string]*dlq.Entry),
		paused:   make(map[string]bool),
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

// SetClock overrides the store's clock. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Migrate implements relay.Storer. No schema to prepare.
func (s *Store) Migrate(context.Context) error { return nil }

// Ping implements relay.Storer.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return relay.ErrStoreClosed
	}
	return nil
}

// Close implements relay.Storer.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) live() error {
	if s.closed {
		return relay.ErrStoreClosed
	}
	return nil
}

func cloneJob(j *job.Job) *job.Job {
	c := *j
	if j.Payload != nil {
		c.Payload = append([]byte(nil), j.Payload...)
	}
	cloneTime := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		v := *t
		return &v
	}
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.HeartbeatAt = cloneTime(j.HeartbeatAt)
	return &c
}

// ──────────────────────────────────────────────────
// job.Store
// ──────────────────────────────────────────────────

// EnqueueJob implements job.Store.
func (s *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return err
	}
	key := j.ID.String()
	if _, exists := s.jobs[key]; exists {
		return relay.ErrJobAlreadyExists
	}
	c := cloneJob(j)
	if c.State == "" {
		c.State = job.StatePending
	}
	if c.RunAt.IsZero() {
		c.RunAt = s.now()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	c.UpdatedAt = s.now()
	s.jobs[key] = c
	return nil
}

// DequeueJobs implements job.Store. The claim is atomic under the
// store lock: a job handed out here is marked running before the lock
// releases, so no other caller can claim it.
func (s *Store) DequeueJobs(_ context.Context, workerID id.WorkerID, queues []string, limit int) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	wanted := make(map[string]bool, len(queues))
	for _, q := range queues {
		wanted[q] = true
	}

	now := s.now()
	var due []*job.Job
	for _, j := range s.jobs {
		if len(wanted) > 0 && !wanted[j.Queue] {
			continue
		}
		if s.paused[j.Queue] {
			continue
		}
		if j.State != job.StatePending && j.State != job.StateRetrying {
			continue
		}
		if j.RunAt.After(now) {
			continue
		}
		due = append(due, j)
	}

	sort.Slice(due, func(a, b int) bool {
		if due[a].Priority != due[b].Priority {
			return due[a].Priority < due[b].Priority
		}
		if !due[a].RunAt.Equal(due[b].RunAt) {
			return due[a].RunAt.Before(due[b].RunAt)
		}
		return due[a].CreatedAt.Before(due[b].CreatedAt)
	})

	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*job.Job, 0, len(due))
	for _, j := range due {
		j.State = job.StateRunning
		j.WorkerID = workerID
		started := now
		j.StartedAt = &started
		hb := now
		j.HeartbeatAt = &hb
		j.UpdatedAt = now
		claimed = append(claimed, cloneJob(j))
	}
	return claimed, nil
}

// GetJob implements job.Store.
func (s *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.live(); err != nil {
		return nil, err
	}
	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, relay.ErrJobNotFound
	}
	return cloneJob(j), nil
}

// UpdateJob implements job.Store.
func (s *Store) UpdateJob(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return err
	}
	key := j.ID.String()
	if _, ok := s.jobs[key]; !ok {
		return relay.ErrJobNotFound
	}
	c := cloneJob(j)
	c.UpdatedAt = s.now()
	s.jobs[key] = c
	return nil
}

// DeleteJob implements job.Store.
func (s *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return err
	}
	key := jobID.String()
	if _, ok := s.jobs[key]; !ok {
		return relay.ErrJobNotFound
	}
	delete(s.jobs, key)
	return nil
}

// CancelJob implements job.Store. Only jobs still waiting can be
// cancelled; a running claim always wins the race.
func (s *Store) CancelJob(_ context.Context, jobID id.JobID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return false, err
	}
	j, ok := s.jobs[jobID.String()]
	if !ok {
		return false, relay.ErrJobNotFound
	}
	if j.State != job.StatePending && j.State != job.StateRetrying {
		return false, nil
	}
	j.State = job.StateCancelled
	now := s.now()
	j.CompletedAt = &now
	j.UpdatedAt = now
	return true, nil
}

// ListJobsByState implements job.Store.
func (s *Store) ListJobsByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.live(); err != nil {
		return nil, err
	}

	var matched []*job.Job
	for _, j := range s.jobs {
		if j.State != state {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		matched = append(matched, j)
	}
	sort.Slice(matched, func(a, b int) bool {
		return matched[a].CreatedAt.Before(matched[b].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	out := make([]*job.Job, 0, len(matched))
	for _, j := range matched {
		out = append(out, cloneJob(j))
	}
	return out, nil
}

// CountJobs implements job.Store.
func (s *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.live(); err != nil {
		return 0, err
	}

	now := s.now()
	var n int64
	for _, j := range s.jobs {
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		if opts.OnlyDelayed && !j.RunAt.After(now) {
			continue
		}
		n++
	}
	return n, nil
}

// HeartbeatJob implements job.Store.
func (s *Store) HeartbeatJob(_ context.Context, jobID id.JobID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return err
	}
	j, ok := s.jobs[jobID.String()]
	if !ok {
		return relay.ErrJobNotFound
	}
	hb := at
	j.HeartbeatAt = &hb
	j.UpdatedAt = s.now()
	return nil
}

// ReapStaleJobs implements job.Store.
func (s *Store) ReapStaleJobs(_ context.Context, threshold time.Duration) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return nil, err
	}

	now := s.now()
	cutoff := now.Add(-threshold)
	var reaped []*job.Job
	for _, j := range s.jobs {
		if j.State != job.StateRunning {
			continue
		}
		if j.HeartbeatAt != nil && j.HeartbeatAt.After(cutoff) {
			continue
		}
		j.State = job.StatePending
		j.WorkerID = id.Nil
		j.StartedAt = nil
		j.HeartbeatAt = nil
		j.RunAt = now
		j.UpdatedAt = now
		reaped = append(reaped, cloneJob(j))
	}
	return reaped, nil
}

// PruneJobs implements job.Store. Keeps the most recently updated
// terminal jobs and removes the rest.
func (s *Store) PruneJobs(_ context.Context, queue string, state job.State, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}

	var matched []*job.Job
	for _, j := range s.jobs {
		if j.Queue == queue && j.State == state {
			matched = append(matched, j)
		}
	}
	if len(matched) <= keep {
		return 0, nil
	}
	sort.Slice(matched, func(a, b int) bool {
		return matched[a].UpdatedAt.After(matched[b].UpdatedAt)
	})

	var removed int64
	for _, j := range matched[keep:] {
		delete(s.jobs, j.ID.String())
		removed++
	}
	return removed, nil
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

func cloneEntry(e *dlq.Entry) *dlq.Entry {
	c := *e
	if e.Payload != nil {
		c.Payload = append([]byte(nil), e.Payload...)
	}
	if e.ReplayedAt != nil {
		v := *e.ReplayedAt
		c.ReplayedAt = &v
	}
	return &c
}

// SaveDLQEntry implements dlq.Store.
func (s *Store) SaveDLQEntry(_ context.Context, e *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return err
	}
	s.entries[e.ID.String()] = cloneEntry(e)
	return nil
}

// GetDLQEntry implements dlq.Store.
func (s *Store) GetDLQEntry(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.live(); err != nil {
		return nil, err
	}
	e, ok := s.entries[entryID.String()]
	if !ok {
		return nil, relay.ErrDLQNotFound
	}
	return cloneEntry(e), nil
}

// UpdateDLQEntry implements dlq.Store.
func (s *Store) UpdateDLQEntry(_ context.Context, e *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return err
	}
	key := e.ID.String()
	if _, ok := s.entries[key]; !ok {
		return relay.ErrDLQNotFound
	}
	s.entries[key] = cloneEntry(e)
	return nil
}

// DeleteDLQEntry implements dlq.Store.
func (s *Store) DeleteDLQEntry(_ context.Context, entryID id.DLQID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return err
	}
	key := entryID.String()
	if _, ok := s.entries[key]; !ok {
		return relay.ErrDLQNotFound
	}
	delete(s.entries, key)
	return nil
}

// ListDLQEntries implements dlq.Store. Most recently failed first.
func (s *Store) ListDLQEntries(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.live(); err != nil {
		return nil, err
	}

	var matched []*dlq.Entry
	for _, e := range s.entries {
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(a, b int) bool {
		return matched[a].FailedAt.After(matched[b].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	out := make([]*dlq.Entry, 0, len(matched))
	for _, e := range matched {
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

// CountDLQEntries implements dlq.Store.
func (s *Store) CountDLQEntries(_ context.Context, queue string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.live(); err != nil {
		return 0, err
	}
	var n int64
	for _, e := range s.entries {
		if queue == "" || e.Queue == queue {
			n++
		}
	}
	return n, nil
}

// PurgeDLQEntries implements dlq.Store.
func (s *Store) PurgeDLQEntries(_ context.Context, queue string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return 0, err
	}
	var n int64
	for key, e := range s.entries {
		if queue == "" || e.Queue == queue {
			delete(s.entries, key)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// queue.Store
// ──────────────────────────────────────────────────

// SetQueuePaused implements queue.Store.
func (s *Store) SetQueuePaused(_ context.Context, name string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return err
	}
	if paused {
		s.paused[name] = true
	} else {
		delete(s.paused, name)
	}
	return nil
}

// QueuePaused implements queue.Store.
func (s *Store) QueuePaused(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.live(); err != nil {
		return false, err
	}
	return s.paused[name], nil
}

// ──────────────────────────────────────────────────
// ratelimit.CounterStore
// ──────────────────────────────────────────────────

// IncrCounter implements ratelimit.CounterStore. A counter whose TTL
// lapsed restarts at one, matching Redis INCR-after-expiry.
func (s *Store) IncrCounter(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return 0, err
	}
	c, ok := s.counters[key]
	if !ok || (!c.expiresAt.IsZero() && !c.expiresAt.After(s.now())) {
		c = &counter{}
		s.counters[key] = c
	}
	c.value++
	return c.value, nil
}

// ExpireCounter implements ratelimit.CounterStore.
func (s *Store) ExpireCounter(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return err
	}
	c, ok := s.counters[key]
	if !ok {
		return nil
	}
	c.expiresAt = s.now().Add(ttl)
	return nil
}

// ScanCounters implements ratelimit.CounterStore.
func (s *Store) ScanCounters(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.live(); err != nil {
		return nil, err
	}
	var keys []string
	for key := range s.counters {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// CounterTTL implements ratelimit.CounterStore. Returns -1 for a
// counter with no TTL armed.
func (s *Store) CounterTTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.live(); err != nil {
		return 0, err
	}
	c, ok := s.counters[key]
	if !ok {
		return 0, nil
	}
	if c.expiresAt.IsZero() {
		return -1, nil
	}
	return c.expiresAt.Sub(s.now()), nil
}

// DeleteCounter implements ratelimit.CounterStore.
func (s *Store) DeleteCounter(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.live(); err != nil {
		return err
	}
	delete(s.counters, key)
	return nil
}
