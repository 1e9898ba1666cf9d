package worker_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/relayworks/relay/backoff"
	"github.com/relayworks/relay/dlq"
	"github.com/relayworks/relay/ext"
	"github.com/relayworks/relay/id"
	"github.com/relayworks/relay/job"
	"github.com/relayworks/relay/queue"
	"github.com/relayworks/relay/store/memory"
	"github.com/relayworks/relay/worker"
)

type harness struct {
	store    *memory.Store
	registry *job.Registry
	queues   *queue.Registry
	exts     *ext.Registry
	dlq      *dlq.Service
	executor *worker.Executor
}

func newHarness(t *testing.T, strategy backoff.Strategy) *harness {
	t.Helper()
	st := memory.New()
	h := &harness{
		store:    st,
		registry: job.NewRegistry(),
		queues:   queue.NewRegistry(st, st, nil),
		exts:     ext.NewRegistry(nil),
		dlq:      dlq.NewService(st, st, nil),
	}
	h.queues.Ensure("email")
	h.executor = worker.NewExecutor(h.registry, st, h.dlq, h.exts, h.queues, strategy, nil, nil)
	return h
}

func (h *harness) enqueue(t *testing.T, name string, maxAttempts int) *job.Job {
	t.Helper()
	j := &job.Job{
		ID:          id.NewJobID(),
		Name:        name,
		Queue:       "email",
		MaxAttempts: maxAttempts,
		RunAt:       time.Now(),
	}
	if err := h.store.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return j
}

// claim pulls the job through the store so executor state transitions
// run against a properly claimed job.
func (h *harness) claim(t *testing.T, jobID id.JobID) *job.Job {
	t.Helper()
	ctx := context.Background()
	j, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// Retries sit in the future; pull them due first.
	if j.RunAt.After(time.Now()) {
		j.RunAt = time.Now().Add(-time.Second)
		if err := h.store.UpdateJob(ctx, j); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	claimed, err := h.store.DequeueJobs(ctx, id.NewWorkerID(), []string{"email"}, 1)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != jobID {
		t.Fatalf("claimed = %v, want %v", claimed, jobID)
	}
	return claimed[0]
}

func TestExecuteSuccess(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.registry.Register("ok", func(ctx context.Context, j *job.Job) error {
		return nil
	}, job.DefaultOptions()); err != nil {
		t.Fatalf("register: %v", err)
	}

	j := h.enqueue(t, "ok", 3)
	h.executor.Execute(context.Background(), h.claim(t, j.ID))

	got, err := h.store.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != job.StateCompleted {
		t.Errorf("state = %q, want completed", got.State)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if got.CompletedAt == nil {
		t.Error("completed job should have a completion time")
	}
}

func TestExecuteRetryableFailureSchedulesRetry(t *testing.T) {
	h := newHarness(t, backoff.Exponential(time.Minute, time.Hour))
	if err := h.registry.Register("flaky", func(ctx context.Context, j *job.Job) error {
		return errors.New("smtp refused")
	}, job.DefaultOptions()); err != nil {
		t.Fatalf("register: %v", err)
	}

	j := h.enqueue(t, "flaky", 3)
	before := time.Now()
	h.executor.Execute(context.Background(), h.claim(t, j.ID))

	got, err := h.store.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != job.StateRetrying {
		t.Errorf("state = %q, want retrying", got.State)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if got.LastError != "smtp refused" {
		t.Errorf("last error = %q", got.LastError)
	}
	// First retry of an exponential 1m strategy lands ~1m out.
	if got.RunAt.Before(before.Add(50 * time.Second)) {
		t.Errorf("run at %v, want about a minute out", got.RunAt)
	}
	if !got.WorkerID.IsNil() {
		t.Error("retrying job should drop its worker claim")
	}
}

func TestExecuteExhaustionDeadLetters(t *testing.T) {
	h := newHarness(t, backoff.Constant(time.Millisecond))
	execs := 0
	if err := h.registry.Register("doomed", func(ctx context.Context, j *job.Job) error {
		execs++
		return fmt.Errorf("failure %d", execs)
	}, job.DefaultOptions()); err != nil {
		t.Fatalf("register: %v", err)
	}

	j := h.enqueue(t, "doomed", 3)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		h.executor.Execute(ctx, h.claim(t, j.ID))
	}

	if execs != 3 {
		t.Errorf("executions = %d, want exactly 3", execs)
	}

	got, err := h.store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != job.StateFailed {
		t.Errorf("state = %q, want failed", got.State)
	}

	entries, err := h.dlq.List(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dlq entries = %d, want 1", len(entries))
	}
	if entries[0].Attempts != 3 {
		t.Errorf("entry attempts = %d, want 3", entries[0].Attempts)
	}
	if entries[0].Error != "failure 3" {
		t.Errorf("entry error = %q, want the final failure", entries[0].Error)
	}
}

func TestExecuteTerminalErrorSkipsRetries(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.registry.Register("fatal", func(ctx context.Context, j *job.Job) error {
		return job.Terminal(errors.New("payload rejected"))
	}, job.DefaultOptions()); err != nil {
		t.Fatalf("register: %v", err)
	}

	j := h.enqueue(t, "fatal", 5)
	ctx := context.Background()
	h.executor.Execute(ctx, h.claim(t, j.ID))

	got, err := h.store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != job.StateFailed {
		t.Errorf("state = %q, want failed after one terminal attempt", got.State)
	}
	entries, err := h.dlq.List(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(entries) != 1 || entries[0].Attempts != 1 {
		t.Errorf("dlq = %+v, want one entry with one attempt", entries)
	}
}

func TestExecuteUnknownHandlerDeadLetters(t *testing.T) {
	h := newHarness(t, nil)
	j := h.enqueue(t, "nobody-home", 3)
	ctx := context.Background()

	h.executor.Execute(ctx, h.claim(t, j.ID))

	got, err := h.store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != job.StateFailed {
		t.Errorf("state = %q, want failed", got.State)
	}
}

func TestExecutePrunesRetention(t *testing.T) {
	h := newHarness(t, nil)
	h.queues.Ensure("bounded", queue.WithRetention(2, 0))
	if err := h.registry.Register("ok", func(ctx context.Context, j *job.Job) error {
		return nil
	}, job.DefaultOptions()); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		j := &job.Job{
			ID:          id.NewJobID(),
			Name:        "ok",
			Queue:       "bounded",
			MaxAttempts: 3,
			RunAt:       time.Now(),
		}
		if err := h.store.EnqueueJob(ctx, j); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		claimed, err := h.store.DequeueJobs(ctx, id.NewWorkerID(), []string{"bounded"}, 1)
		if err != nil || len(claimed) != 1 {
			t.Fatalf("dequeue: %v (%d)", err, len(claimed))
		}
		h.executor.Execute(ctx, claimed[0])
	}

	n, err := h.store.CountJobs(ctx, job.CountOpts{Queue: "bounded", State: job.StateCompleted})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("retained completed jobs = %d, want 2", n)
	}
}

func TestExecuteEmitsLifecycleEvents(t *testing.T) {
	h := newHarness(t, backoff.Constant(time.Minute))
	rec := &eventRecorder{}
	h.exts.Register(rec)

	if err := h.registry.Register("flaky", func(ctx context.Context, j *job.Job) error {
		return errors.New("boom")
	}, job.DefaultOptions()); err != nil {
		t.Fatalf("register: %v", err)
	}

	j := h.enqueue(t, "flaky", 2)
	ctx := context.Background()
	h.executor.Execute(ctx, h.claim(t, j.ID))
	h.executor.Execute(ctx, h.claim(t, j.ID))

	if rec.started != 2 || rec.failed != 2 {
		t.Errorf("started/failed = %d/%d, want 2/2", rec.started, rec.failed)
	}
	if rec.retrying != 1 {
		t.Errorf("retrying = %d, want 1", rec.retrying)
	}
	if rec.dlq != 1 {
		t.Errorf("dlq = %d, want 1", rec.dlq)
	}
}

type eventRecorder struct {
	started  int
	failed   int
	retrying int
	dlq      int
}

func (r *eventRecorder) OnJobStarted(context.Context, *job.Job)                 { r.started++ }
func (r *eventRecorder) OnJobFailed(context.Context, *job.Job, error)           { r.failed++ }
func (r *eventRecorder) OnJobRetrying(context.Context, *job.Job, time.Duration) { r.retrying++ }
func (r *eventRecorder) OnJobDLQ(context.Context, *job.Job, *dlq.Entry)         { r.dlq++ }
