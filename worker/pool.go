package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relayworks/relay"
	"github.com/relayworks/relay/ext"
	"github.com/relayworks/relay/id"
	"github.com/relayworks/relay/job"
	"github.com/relayworks/relay/queue"
	"github.com/relayworks/relay/ratelimit"
)

// Pool claims jobs from the store and executes them on a bounded set
// of goroutines. One Pool per process; multiple processes sharing a
// store cooperate through the store's atomic claim.
type Pool struct {
	id       id.WorkerID
	store    job.Store
	executor *Executor
	limiter  *ratelimit.Limiter
	gate     *queue.Gate
	queues   *queue.Registry
	exts     *ext.Registry
	cfg      relay.Config
	logger   *slog.Logger

	// slots is a counting semaphore; len(slots) is in-flight jobs.
	slots  chan struct{}
	wg     sync.WaitGroup
	loopWG sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
	stopCh     chan struct{}
	started    atomic.Bool

	activeMu sync.Mutex
	active   map[string]activeJob
}

type activeJob struct {
	id     id.JobID
	cancel context.CancelFunc
}

// NewPool creates a worker pool.
func NewPool(
	store job.Store,
	executor *Executor,
	limiter *ratelimit.Limiter,
	gate *queue.Gate,
	queues *queue.Registry,
	exts *ext.Registry,
	cfg relay.Config,
	logger *slog.Logger,
) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Pool{
		id:       id.NewWorkerID(),
		store:    store,
		executor: executor,
		limiter:  limiter,
		gate:     gate,
		queues:   queues,
		exts:     exts,
		cfg:      cfg,
		logger:   logger,
		slots:    make(chan struct{}, cfg.Concurrency),
		active:   make(map[string]activeJob),
	}
}

// ID returns the pool's worker identity, stamped on every claim.
func (p *Pool) ID() id.WorkerID { return p.id }

// ActiveCount returns the number of jobs currently executing.
func (p *Pool) ActiveCount() int { return len(p.slots) }

// Start launches the claim loop, plus the heartbeat and reaper loops
// unless their config intervals disable them.
func (p *Pool) Start(context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return nil
	}
	p.baseCtx, p.baseCancel = context.WithCancel(context.Background())
	p.stopCh = make(chan struct{})

	p.loopWG.Add(1)
	go p.dequeueLoop()
	if p.cfg.HeartbeatInterval > 0 {
		p.loopWG.Add(1)
		go p.heartbeatLoop()
	}
	if p.cfg.StaleJobThreshold > 0 {
		p.loopWG.Add(1)
		go p.reaperLoop()
	}

	p.logger.Info("worker pool started",
		slog.String("worker_id", p.id.String()),
		slog.Int("concurrency", p.cfg.Concurrency),
		slog.Any("queues", p.cfg.Queues))
	return nil
}

// Stop drains the pool: claiming halts immediately, then in-flight
// jobs get until ctx's deadline to finish before their contexts are
// cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.started.CompareAndSwap(true, false) {
		return nil
	}
	close(p.stopCh)
	p.loopWG.Wait()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("shutdown deadline reached, cancelling active jobs",
			slog.Int("active", p.ActiveCount()))
		p.cancelActiveJobs()
		<-done
	}

	p.baseCancel()
	p.logger.Info("worker pool stopped", slog.String("worker_id", p.id.String()))
	return nil
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for _, a := range p.active {
		a.cancel()
	}
}

func (p *Pool) dequeueLoop() {
	defer p.loopWG.Done()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.claimBatch()
		}
	}
}

func (p *Pool) claimBatch() {
	capacity := cap(p.slots) - len(p.slots)
	if capacity <= 0 {
		return
	}

	// An explicit queue list pins the pool; otherwise it follows
	// whatever queues have been declared.
	queues := p.cfg.Queues
	if len(queues) == 0 && p.queues != nil {
		queues = p.queues.Names()
	}

	jobs, err := p.store.DequeueJobs(p.baseCtx, p.id, queues, capacity)
	if err != nil {
		p.logger.Error("dequeue failed", slog.String("error", err.Error()))
		return
	}
	for _, j := range jobs {
		p.dispatch(j)
	}
}

// dispatch decides whether a claimed job may run now. A rate-limited
// job goes back to pending, rescheduled for the window reset, without
// consuming an attempt.
func (p *Pool) dispatch(j *job.Job) {
	var policy ratelimit.Policy
	if q, ok := p.queues.Get(j.Queue); ok {
		policy = q.Options().RateLimit
	}

	res := p.limiter.Check(p.baseCtx, j.Scope(), policy)
	if !res.Allowed {
		p.logger.Debug("job rate limited",
			slog.String("job_id", j.ID.String()),
			slog.String("scope", j.Scope()),
			slog.Time("reset_at", res.ResetAt))
		p.requeue(j, res.ResetAt)
		return
	}

	if p.gate != nil && !p.gate.TryAcquire(j.Queue) {
		p.requeue(j, time.Now().Add(p.cfg.PollInterval))
		return
	}

	select {
	case p.slots <- struct{}{}:
	default:
		// claimBatch never claims past capacity; this is unreachable
		// unless dispatch is called concurrently.
		if p.gate != nil {
			p.gate.Release(j.Queue)
		}
		p.requeue(j, time.Now().Add(p.cfg.PollInterval))
		return
	}

	p.wg.Add(1)
	go p.run(j)
}

// requeue releases a claim without spending an attempt.
func (p *Pool) requeue(j *job.Job, runAt time.Time) {
	j.State = job.StatePending
	j.RunAt = runAt
	j.WorkerID = id.Nil
	j.StartedAt = nil
	j.HeartbeatAt = nil
	if err := p.store.UpdateJob(p.baseCtx, j); err != nil {
		p.logger.Error("requeue failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()))
	}
}

func (p *Pool) run(j *job.Job) {
	jobCtx, cancel := context.WithCancel(p.baseCtx)
	key := j.ID.String()

	p.activeMu.Lock()
	p.active[key] = activeJob{id: j.ID, cancel: cancel}
	p.activeMu.Unlock()

	defer func() {
		p.activeMu.Lock()
		delete(p.active, key)
		p.activeMu.Unlock()
		cancel()
		if p.gate != nil {
			p.gate.Release(j.Queue)
		}
		<-p.slots
		p.wg.Done()
	}()

	p.executor.Execute(jobCtx, j)
}

func (p *Pool) heartbeatLoop() {
	defer p.loopWG.Done()
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.heartbeatActive()
		}
	}
}

func (p *Pool) heartbeatActive() {
	p.activeMu.Lock()
	ids := make([]id.JobID, 0, len(p.active))
	for _, a := range p.active {
		ids = append(ids, a.id)
	}
	p.activeMu.Unlock()

	now := time.Now()
	for _, jobID := range ids {
		if err := p.store.HeartbeatJob(p.baseCtx, jobID, now); err != nil {
			p.logger.Warn("heartbeat failed",
				slog.String("job_id", jobID.String()),
				slog.String("error", err.Error()))
		}
	}
}

func (p *Pool) reaperLoop() {
	defer p.loopWG.Done()
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapStale()
		}
	}
}

// reapStale returns jobs abandoned by dead workers to the pending
// state so any live pool can pick them up.
func (p *Pool) reapStale() {
	reaped, err := p.store.ReapStaleJobs(p.baseCtx, p.cfg.StaleJobThreshold)
	if err != nil {
		p.logger.Error("reap failed", slog.String("error", err.Error()))
		return
	}
	for _, j := range reaped {
		p.logger.Warn("stalled job recovered",
			slog.String("job_id", j.ID.String()),
			slog.String("queue", j.Queue))
		p.exts.EmitJobStalled(p.baseCtx, j)
	}
}
