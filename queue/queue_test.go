package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/relayworks/relay/id"
	"github.com/relayworks/relay/job"
	"github.com/relayworks/relay/queue"
	"github.com/relayworks/relay/ratelimit"
	"github.com/relayworks/relay/store/memory"
)

func newRegistry(t *testing.T) (*queue.Registry, *memory.Store) {
	t.Helper()
	st := memory.New()
	return queue.NewRegistry(st, st, nil), st
}

func TestEnsureIsIdempotent(t *testing.T) {
	reg, _ := newRegistry(t)

	q1 := reg.Ensure("email", queue.WithMaxAttempts(5), queue.WithRateLimit(10, time.Second))
	q2 := reg.Ensure("email", queue.WithMaxAttempts(99))

	if q1.Name() != "email" || q2.Name() != "email" {
		t.Fatalf("names = %q, %q", q1.Name(), q2.Name())
	}
	// First declaration wins; the second call's options are ignored.
	if got := q2.Options().MaxAttempts; got != 5 {
		t.Errorf("MaxAttempts = %d, want 5", got)
	}
	if got := q2.Options().RateLimit.Limit; got != 10 {
		t.Errorf("RateLimit.Limit = %d, want 10", got)
	}
}

func TestPauseIsDurableInStore(t *testing.T) {
	reg, st := newRegistry(t)
	ctx := context.Background()

	q := reg.Ensure("email")
	if err := q.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// A second registry over the same store sees the flag.
	reg2 := queue.NewRegistry(st, st, nil)
	q2 := reg2.Ensure("email")
	paused, err := q2.Paused(ctx)
	if err != nil {
		t.Fatalf("paused: %v", err)
	}
	if !paused {
		t.Error("pause flag should survive registry recreation")
	}

	if err := q2.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	paused, err = q.Paused(ctx)
	if err != nil {
		t.Fatalf("paused: %v", err)
	}
	if paused {
		t.Error("resume should clear the flag for every registry")
	}
}

func TestMetricsCounts(t *testing.T) {
	reg, st := newRegistry(t)
	ctx := context.Background()
	q := reg.Ensure("email")

	now := time.Now()
	add := func(state job.State, runAt time.Time) {
		t.Helper()
		j := &job.Job{
			ID:          id.NewJobID(),
			Name:        "send",
			Queue:       "email",
			State:       state,
			MaxAttempts: 3,
			RunAt:       runAt,
		}
		if err := st.EnqueueJob(ctx, j); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		if state != job.StatePending {
			j.State = state
			if err := st.UpdateJob(ctx, j); err != nil {
				t.Fatalf("update: %v", err)
			}
		}
	}

	add(job.StatePending, now)                    // waiting
	add(job.StatePending, now)                    // waiting
	add(job.StatePending, now.Add(time.Hour))     // delayed
	add(job.StateRetrying, now.Add(time.Minute))  // delayed (retry wait)
	add(job.StateRunning, now)                    // active
	add(job.StateCompleted, now)                  // completed
	add(job.StateFailed, now)                     // failed

	m, err := q.Metrics(ctx)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if m.Waiting != 2 {
		t.Errorf("waiting = %d, want 2", m.Waiting)
	}
	if m.Delayed != 2 {
		t.Errorf("delayed = %d, want 2", m.Delayed)
	}
	if m.Active != 1 {
		t.Errorf("active = %d, want 1", m.Active)
	}
	if m.Completed != 1 || m.Failed != 1 {
		t.Errorf("completed/failed = %d/%d, want 1/1", m.Completed, m.Failed)
	}
	if m.Paused {
		t.Error("queue should not be paused")
	}
}

func TestGateConcurrencyCap(t *testing.T) {
	g := queue.NewGate()
	g.Configure("email", queue.Options{Concurrency: 2})

	if !g.TryAcquire("email") || !g.TryAcquire("email") {
		t.Fatal("first two acquires should succeed")
	}
	if g.TryAcquire("email") {
		t.Fatal("third acquire should hit the cap")
	}
	g.Release("email")
	if !g.TryAcquire("email") {
		t.Fatal("acquire after release should succeed")
	}
	if g.Active("email") != 2 {
		t.Errorf("active = %d, want 2", g.Active("email"))
	}
}

func TestGateUnconfiguredQueueIsUnlimited(t *testing.T) {
	g := queue.NewGate()
	for i := 0; i < 100; i++ {
		if !g.TryAcquire("anything") {
			t.Fatal("unconfigured queue must not be limited")
		}
	}
}

func TestGateSmootherExhaustsBurst(t *testing.T) {
	g := queue.NewGate()
	g.Configure("email", queue.Options{
		RateLimit: ratelimit.Policy{Limit: 2, Window: time.Hour},
	})

	if !g.TryAcquire("email") || !g.TryAcquire("email") {
		t.Fatal("burst of 2 should be allowed")
	}
	g.Release("email")
	g.Release("email")
	if g.TryAcquire("email") {
		t.Fatal("third acquire within the window should be smoothed out")
	}
}
