// Package engine assembles a Relay coordinator, a store, and the
// subsystem registries into a working job-processing engine, and
// exposes the producer and operator surfaces.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/relayworks/relay"
	"github.com/relayworks/relay/backoff"
	"github.com/relayworks/relay/dlq"
	"github.com/relayworks/relay/ext"
	"github.com/relayworks/relay/id"
	"github.com/relayworks/relay/job"
	"github.com/relayworks/relay/middleware"
	"github.com/relayworks/relay/queue"
	"github.com/relayworks/relay/ratelimit"
	"github.com/relayworks/relay/scope"
	"github.com/relayworks/relay/store"
	"github.com/relayworks/relay/stream"
	"github.com/relayworks/relay/worker"
)

// Engine is a fully wired job-processing engine.
type Engine struct {
	relay    *relay.Relay
	store    store.Store
	registry *job.Registry
	queues   *queue.Registry
	exts     *ext.Registry
	dlq      *dlq.Service
	broker   *stream.Broker
	limiter  *ratelimit.Limiter
	gate     *queue.Gate
	pool     *worker.Pool
	logger   *slog.Logger
}

type builder struct {
	strategy       backoff.Strategy
	middlewares    []middleware.Middleware
	extensions     []any
	replayAttempts int
}

// Option configures the engine build.
type Option func(*builder)

// WithBackoff sets the retry delay strategy. Default is exponential
// starting at 1s.
func WithBackoff(s backoff.Strategy) Option {
	return func(b *builder) { b.strategy = s }
}

// WithMiddleware appends handler middleware inside the built-in stack.
func WithMiddleware(ms ...middleware.Middleware) Option {
	return func(b *builder) { b.middlewares = append(b.middlewares, ms...) }
}

// WithExtensions registers lifecycle extensions at build time.
func WithExtensions(exts ...any) Option {
	return func(b *builder) { b.extensions = append(b.extensions, exts...) }
}

// WithReplayAttempts sets the attempt budget for DLQ replays.
func WithReplayAttempts(n int) Option {
	return func(b *builder) { b.replayAttempts = n }
}

// Build wires an engine around the relay. The relay must carry a store
// implementing the full store.Store surface.
func Build(r *relay.Relay, opts ...Option) (*Engine, error) {
	st, ok := r.Store().(store.Store)
	if !ok {
		if r.Store() == nil {
			return nil, relay.ErrNoStore
		}
		return nil, fmt.Errorf("engine: store %T does not implement store.Store", r.Store())
	}

	b := &builder{replayAttempts: 1}
	for _, opt := range opts {
		opt(b)
	}

	logger := r.Logger()
	cfg := r.Config()

	e := &Engine{
		relay:    r,
		store:    st,
		registry: job.NewRegistry(),
		queues:   queue.NewRegistry(st, st, logger),
		exts:     ext.NewRegistry(logger),
		broker:   stream.NewBroker(),
		limiter:  ratelimit.NewLimiter(st, logger),
		gate:     queue.NewGate(),
		logger:   logger,
	}
	e.dlq = dlq.NewService(st, st, logger, dlq.WithReplayAttempts(b.replayAttempts))

	e.exts.Register(e.broker)
	for _, extension := range b.extensions {
		e.exts.Register(extension)
	}

	// Outermost first: recovery guards everything, tracing and metrics
	// observe the full attempt, scope and timeout sit closest to the
	// handler.
	stack := []middleware.Middleware{
		middleware.Recover(),
		middleware.Tracing(),
		middleware.Metrics(),
		middleware.Logging(logger),
		middleware.Scope(),
		middleware.Timeout(),
	}
	stack = append(stack, b.middlewares...)

	executor := worker.NewExecutor(e.registry, st, e.dlq, e.exts, e.queues, b.strategy, stack, logger)
	e.pool = worker.NewPool(st, executor, e.limiter, e.gate, e.queues, e.exts, cfg, logger)

	if err := st.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("engine: migrate store: %w", err)
	}

	sweeper := ratelimit.NewSweeper(st, cfg.SweepInterval, logger)
	sweeper.Start()

	r.SetPool(e.pool)
	r.SetExtensions(e.exts)
	r.SetSweeper(sweeper)
	return e, nil
}

// Queue declares a queue and applies its options to the local gate.
func (e *Engine) Queue(name string, opts ...queue.Option) *queue.Queue {
	q := e.queues.Ensure(name, opts...)
	e.gate.Configure(name, q.Options())
	return q
}

// Queues returns the queue registry.
func (e *Engine) Queues() *queue.Registry { return e.queues }

// DLQ returns the dead letter service.
func (e *Engine) DLQ() *dlq.Service { return e.dlq }

// Broker returns the lifecycle event broker.
func (e *Engine) Broker() *stream.Broker { return e.broker }

// Extensions returns the extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.exts }

// Relay returns the underlying coordinator.
func (e *Engine) Relay() *relay.Relay { return e.relay }

// Start begins processing.
func (e *Engine) Start(ctx context.Context) error { return e.relay.Start(ctx) }

// Stop drains and shuts down.
func (e *Engine) Stop(ctx context.Context) error { return e.relay.Stop(ctx) }

// Register binds a typed definition's handler and declares its queue.
func Register[T any](e *Engine, def *job.Definition[T]) error {
	opts := def.Options()
	if err := e.registry.Register(def.Name(), def.Handler(), opts); err != nil {
		return err
	}
	e.Queue(opts.Queue)
	return nil
}

// Enqueue persists a typed job for asynchronous execution. The tenant
// scope on ctx is captured into the job so the handler runs under the
// same tenant.
func Enqueue[T any](ctx context.Context, e *Engine, def *job.Definition[T], payload T, opts ...job.Option) (*job.Job, error) {
	data, err := def.Marshal(payload)
	if err != nil {
		return nil, err
	}
	effective := def.Options()
	for _, opt := range opts {
		opt(&effective)
	}
	return e.enqueue(ctx, def.Name(), data, effective)
}

// EnqueueRaw persists a job with a pre-encoded payload, for producers
// that don't hold a typed definition.
func (e *Engine) EnqueueRaw(ctx context.Context, name string, payload []byte, opts ...job.Option) (*job.Job, error) {
	effective := job.DefaultOptions()
	if registered, ok := e.registry.Options(name); ok {
		effective = registered
	}
	for _, opt := range opts {
		opt(&effective)
	}
	return e.enqueue(ctx, name, payload, effective)
}

func (e *Engine) enqueue(ctx context.Context, name string, payload []byte, opts job.Options) (*job.Job, error) {
	if e.relay.State() == relay.StateDraining {
		return nil, relay.ErrDraining
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	tenant := scope.Capture(ctx)
	now := time.Now()
	j := &job.Job{
		ID:          id.NewJobID(),
		Name:        name,
		Queue:       opts.Queue,
		Payload:     payload,
		State:       job.StatePending,
		Priority:    opts.Priority,
		MaxAttempts: opts.MaxAttempts,
		RateScope:   opts.RateScope,
		ScopeAppID:  tenant.AppID,
		ScopeOrgID:  tenant.OrgID,
		RunAt:       now.Add(opts.Delay),
		Timeout:     opts.Timeout,
	}
	j.CreatedAt = now
	j.UpdatedAt = now

	if err := e.store.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}
	e.exts.EmitJobEnqueued(ctx, j)
	return j, nil
}

// PublishNow enqueues a job to run immediately: zero delay and a
// priority ahead of all queued work.
func (e *Engine) PublishNow(ctx context.Context, name string, payload []byte, opts ...job.Option) (*job.Job, error) {
	effective := job.DefaultOptions()
	if registered, ok := e.registry.Options(name); ok {
		effective = registered
	}
	for _, opt := range opts {
		opt(&effective)
	}
	effective.Delay = 0
	effective.Priority = job.PriorityUrgent
	return e.enqueue(ctx, name, payload, effective)
}

// Promote reschedules a delayed job to run immediately. Only waiting
// jobs can be promoted.
func (e *Engine) Promote(ctx context.Context, jobID id.JobID) error {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.State != job.StatePending && j.State != job.StateRetrying {
		return relay.ErrInvalidState
	}
	j.RunAt = time.Now()
	return e.store.UpdateJob(ctx, j)
}

// CancelJob cancels a waiting job. Returns false when the job already
// started or finished.
func (e *Engine) CancelJob(ctx context.Context, jobID id.JobID) (bool, error) {
	return e.store.CancelJob(ctx, jobID)
}

// GetJob returns the current state of a job.
func (e *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return e.store.GetJob(ctx, jobID)
}

// QueueMetrics returns a snapshot of one queue's counts.
func (e *Engine) QueueMetrics(ctx context.Context, name string) (*queue.Metrics, error) {
	q, ok := e.queues.Get(name)
	if !ok {
		return nil, relay.ErrQueueNotFound
	}
	return q.Metrics(ctx)
}
