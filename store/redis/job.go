package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relayworks/relay"
	"github.com/relayworks/relay/id"
	"github.com/relayworks/relay/job"
)

func (s *Store) loadJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	data, err := s.client.Get(ctx, s.keys.job(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, relay.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load job %s: %w", jobID, err)
	}
	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("redis: decode job %s: %w", jobID, err)
	}
	return &j, nil
}

func marshalJob(j *job.Job) (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("redis: encode job %s: %w", j.ID, err)
	}
	return string(data), nil
}

// indexJob writes the membership indexes for a job's current state
// into the pipeline: the per-state set, the schedule for waiting
// states, and the running set.
func (s *Store) indexJob(pipe redis.Pipeliner, ctx context.Context, j *job.Job, oldState job.State) {
	if oldState != "" && oldState != j.State {
		pipe.SRem(ctx, s.keys.state(j.Queue, oldState), j.ID.String())
	}
	pipe.SAdd(ctx, s.keys.state(j.Queue, j.State), j.ID.String())

	switch j.State {
	case job.StatePending, job.StateRetrying:
		pipe.ZAdd(ctx, s.keys.sched(j.Queue), redis.Z{
			Score:  float64(j.RunAt.UnixMilli()),
			Member: j.ID.String(),
		})
		pipe.ZRem(ctx, s.keys.running(), j.ID.String())
	case job.StateRunning:
		pipe.ZRem(ctx, s.keys.sched(j.Queue), j.ID.String())
		hb := j.RunAt
		if j.HeartbeatAt != nil {
			hb = *j.HeartbeatAt
		}
		pipe.ZAdd(ctx, s.keys.running(), redis.Z{
			Score:  float64(hb.UnixMilli()),
			Member: j.ID.String(),
		})
	default:
		pipe.ZRem(ctx, s.keys.sched(j.Queue), j.ID.String())
		pipe.ZRem(ctx, s.keys.running(), j.ID.String())
	}
}

// EnqueueJob implements job.Store.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	now := time.Now()
	c := *j
	if c.State == "" {
		c.State = job.StatePending
	}
	if c.RunAt.IsZero() {
		c.RunAt = now
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	doc, err := marshalJob(&c)
	if err != nil {
		return err
	}

	created, err := s.client.SetNX(ctx, s.keys.job(c.ID), doc, 0).Result()
	if err != nil {
		return fmt.Errorf("redis: enqueue job %s: %w", c.ID, err)
	}
	if !created {
		return relay.ErrJobAlreadyExists
	}

	pipe := s.client.TxPipeline()
	s.indexJob(pipe, ctx, &c, "")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: index job %s: %w", c.ID, err)
	}
	return nil
}

// DequeueJobs implements job.Store. Due candidates come from the
// per-queue schedule; the ZREM on each candidate is the claim. Losing
// the ZREM race means another worker owns the job.
func (s *Store) DequeueJobs(ctx context.Context, workerID id.WorkerID, queues []string, limit int) ([]*job.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now()
	nowMs := fmt.Sprintf("%d", now.UnixMilli())

	var candidates []*job.Job
	for _, q := range queues {
		paused, err := s.QueuePaused(ctx, q)
		if err != nil {
			return nil, err
		}
		if paused {
			continue
		}
		ids, err := s.client.ZRangeByScore(ctx, s.keys.sched(q), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   nowMs,
			Count: int64(limit * 4),
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: scan schedule %q: %w", q, err)
		}
		for _, raw := range ids {
			jobID, err := id.ParseJobID(raw)
			if err != nil {
				continue
			}
			j, err := s.loadJob(ctx, jobID)
			if errors.Is(err, relay.ErrJobNotFound) {
				// Orphaned index entry; drop it.
				s.client.ZRem(ctx, s.keys.sched(q), raw)
				continue
			}
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, j)
		}
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Priority != candidates[b].Priority {
			return candidates[a].Priority < candidates[b].Priority
		}
		if !candidates[a].RunAt.Equal(candidates[b].RunAt) {
			return candidates[a].RunAt.Before(candidates[b].RunAt)
		}
		return candidates[a].CreatedAt.Before(candidates[b].CreatedAt)
	})

	claimed := make([]*job.Job, 0, limit)
	for _, j := range candidates {
		if len(claimed) >= limit {
			break
		}
		removed, err := s.client.ZRem(ctx, s.keys.sched(j.Queue), j.ID.String()).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: claim job %s: %w", j.ID, err)
		}
		if removed == 0 {
			// Another worker won the claim.
			continue
		}

		oldState := j.State
		j.State = job.StateRunning
		j.WorkerID = workerID
		started := now
		j.StartedAt = &started
		hb := now
		j.HeartbeatAt = &hb
		j.UpdatedAt = now

		doc, err := marshalJob(j)
		if err != nil {
			return nil, err
		}
		pipe := s.client.TxPipeline()
		pipe.Set(ctx, s.keys.job(j.ID), doc, 0)
		s.indexJob(pipe, ctx, j, oldState)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("redis: persist claim %s: %w", j.ID, err)
		}
		claimed = append(claimed, j)
	}
	return claimed, nil
}

// GetJob implements job.Store.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.loadJob(ctx, jobID)
}

// UpdateJob implements job.Store.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	old, err := s.loadJob(ctx, j.ID)
	if err != nil {
		return err
	}

	c := *j
	c.UpdatedAt = time.Now()
	doc, err := marshalJob(&c)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keys.job(c.ID), doc, 0)
	s.indexJob(pipe, ctx, &c, old.State)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: update job %s: %w", c.ID, err)
	}
	return nil
}

// DeleteJob implements job.Store.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	j, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.keys.job(jobID))
	pipe.SRem(ctx, s.keys.state(j.Queue, j.State), jobID.String())
	pipe.ZRem(ctx, s.keys.sched(j.Queue), jobID.String())
	pipe.ZRem(ctx, s.keys.running(), jobID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: delete job %s: %w", jobID, err)
	}
	return nil
}

// CancelJob implements job.Store. The WATCH on the job document makes
// the waiting-state check and the cancellation one atomic step, so a
// worker claim racing in loses or wins cleanly.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) (bool, error) {
	cancelled := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, s.keys.job(jobID)).Bytes()
		if errors.Is(err, redis.Nil) {
			return relay.ErrJobNotFound
		}
		if err != nil {
			return err
		}
		var j job.Job
		if err := json.Unmarshal(data, &j); err != nil {
			return err
		}
		if j.State != job.StatePending && j.State != job.StateRetrying {
			return nil
		}

		oldState := j.State
		now := time.Now()
		j.State = job.StateCancelled
		j.CompletedAt = &now
		j.UpdatedAt = now
		doc, err := marshalJob(&j)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.keys.job(j.ID), doc, 0)
			s.indexJob(pipe, ctx, &j, oldState)
			return nil
		})
		if err == nil {
			cancelled = true
		}
		return err
	}, s.keys.job(jobID))

	if errors.Is(err, redis.TxFailedErr) {
		// The job changed under us; whoever changed it decided its fate.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis: cancel job %s: %w", jobID, err)
	}
	return cancelled, nil
}

func (s *Store) stateMembers(ctx context.Context, queue string, state job.State) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.keys.state(queue, state)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: members %q/%q: %w", queue, state, err)
	}
	return members, nil
}

func (s *Store) queuesWithState(ctx context.Context, state job.State) ([]string, error) {
	pattern := s.keys.prefix + ":state:*:" + string(state)
	var queues []string
	iter := s.client.Scan(ctx, 0, pattern, 200).Iterator()
	prefixLen := len(s.keys.prefix + ":state:")
	suffixLen := len(":" + string(state))
	for iter.Next(ctx) {
		key := iter.Val()
		queues = append(queues, key[prefixLen:len(key)-suffixLen])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: scan states: %w", err)
	}
	return queues, nil
}

func (s *Store) jobsInState(ctx context.Context, queue string, state job.State) ([]*job.Job, error) {
	queues := []string{queue}
	if queue == "" {
		var err error
		queues, err = s.queuesWithState(ctx, state)
		if err != nil {
			return nil, err
		}
	}

	var jobs []*job.Job
	for _, q := range queues {
		members, err := s.stateMembers(ctx, q, state)
		if err != nil {
			return nil, err
		}
		for _, raw := range members {
			jobID, err := id.ParseJobID(raw)
			if err != nil {
				continue
			}
			j, err := s.loadJob(ctx, jobID)
			if errors.Is(err, relay.ErrJobNotFound) {
				s.client.SRem(ctx, s.keys.state(q, state), raw)
				continue
			}
			if err != nil {
				return nil, err
			}
			if j.State != state {
				// Stale membership from an interrupted transition.
				continue
			}
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

// ListJobsByState implements job.Store.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	jobs, err := s.jobsInState(ctx, opts.Queue, state)
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})
	if opts.Offset > 0 {
		if opts.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && len(jobs) > opts.Limit {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// CountJobs implements job.Store.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	// Fast path: a plain per-queue, per-state count is one SCARD.
	if opts.Queue != "" && opts.State != "" && !opts.OnlyDelayed {
		n, err := s.client.SCard(ctx, s.keys.state(opts.Queue, opts.State)).Result()
		if err != nil {
			return 0, fmt.Errorf("redis: count %q/%q: %w", opts.Queue, opts.State, err)
		}
		return n, nil
	}

	states := []job.State{opts.State}
	if opts.State == "" {
		states = []job.State{
			job.StatePending, job.StateRunning, job.StateRetrying,
			job.StateCompleted, job.StateFailed, job.StateCancelled,
		}
	}

	now := time.Now()
	var n int64
	for _, state := range states {
		jobs, err := s.jobsInState(ctx, opts.Queue, state)
		if err != nil {
			return 0, err
		}
		for _, j := range jobs {
			if opts.OnlyDelayed && !j.RunAt.After(now) {
				continue
			}
			n++
		}
	}
	return n, nil
}

// HeartbeatJob implements job.Store.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, at time.Time) error {
	j, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	hb := at
	j.HeartbeatAt = &hb
	j.UpdatedAt = time.Now()
	doc, err := marshalJob(j)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keys.job(jobID), doc, 0)
	pipe.ZAdd(ctx, s.keys.running(), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: jobID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: heartbeat job %s: %w", jobID, err)
	}
	return nil
}

// ReapStaleJobs implements job.Store. The running set is scored by
// heartbeat time, so stale jobs are one range query. The ZREM claim
// keeps two reapers from double-recovering the same job.
func (s *Store) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	now := time.Now()
	cutoff := fmt.Sprintf("%d", now.Add(-threshold).UnixMilli())

	ids, err := s.client.ZRangeByScore(ctx, s.keys.running(), &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: scan stale: %w", err)
	}

	var reaped []*job.Job
	for _, raw := range ids {
		removed, err := s.client.ZRem(ctx, s.keys.running(), raw).Result()
		if err != nil || removed == 0 {
			continue
		}
		jobID, err := id.ParseJobID(raw)
		if err != nil {
			continue
		}
		j, err := s.loadJob(ctx, jobID)
		if err != nil {
			continue
		}
		if j.State != job.StateRunning {
			continue
		}

		oldState := j.State
		j.State = job.StatePending
		j.WorkerID = id.Nil
		j.StartedAt = nil
		j.HeartbeatAt = nil
		j.RunAt = now
		j.UpdatedAt = now

		doc, err := marshalJob(j)
		if err != nil {
			continue
		}
		pipe := s.client.TxPipeline()
		pipe.Set(ctx, s.keys.job(j.ID), doc, 0)
		s.indexJob(pipe, ctx, j, oldState)
		if _, err := pipe.Exec(ctx); err != nil {
			continue
		}
		reaped = append(reaped, j)
	}
	return reaped, nil
}

// PruneJobs implements job.Store.
func (s *Store) PruneJobs(ctx context.Context, queue string, state job.State, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	jobs, err := s.jobsInState(ctx, queue, state)
	if err != nil {
		return 0, err
	}
	if len(jobs) <= keep {
		return 0, nil
	}
	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].UpdatedAt.After(jobs[b].UpdatedAt)
	})

	pipe := s.client.TxPipeline()
	var removed int64
	for _, j := range jobs[keep:] {
		pipe.Del(ctx, s.keys.job(j.ID))
		pipe.SRem(ctx, s.keys.state(queue, state), j.ID.String())
		removed++
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis: prune %q/%q: %w", queue, state, err)
	}
	return removed, nil
}
