package relay

import (
	"context"
	"log/slog"
	"sync"
)

// State is the lifecycle state of a Relay coordinator.
type State string

const (
	// StateIdle means Start has not been called yet.
	StateIdle State = "idle"
	// StateRunning means the worker pool is claiming and executing jobs.
	StateRunning State = "running"
	// StateDraining means new claims have stopped and in-flight
	// executions are being waited on.
	StateDraining State = "draining"
	// StateStopped means all workers finished and connections closed.
	StateStopped State = "stopped"
)

// Option configures a Relay.
type Option func(*Relay) error

// Storer is the minimal store interface held by the Relay coordinator.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// poolRunner is an internal interface for worker pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// sweeperRunner is an internal interface for the rate-limit key sweeper.
type sweeperRunner interface {
	Stop()
}

// Relay is the central coordinator for the publishing job subsystem.
//
// Create one with New() and functional options, then use the
// engine.Build function to wire queues, processors, and the worker pool
// together. The Relay holds subsystem references via internal interfaces
// to avoid import cycles.
//
// Shutdown follows Running → Draining → Stopped: claims stop first,
// in-flight executions finish, event listeners close, and store
// connections close last. Waiting jobs stay durably queued for the next
// process start.
type Relay struct {
	config Config
	logger *slog.Logger
	store  Storer

	extensions extensionEmitter
	pool       poolRunner
	sweeper    sweeperRunner

	mu    sync.Mutex
	state State
}

// New creates a new Relay with the given options.
func New(opts ...Option) (*Relay, error) {
	r := &Relay{
		config: DefaultConfig(),
		logger: slog.Default(),
		state:  StateIdle,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Logger returns the relay's logger.
func (r *Relay) Logger() *slog.Logger { return r.logger }

// Store returns the relay's store.
func (r *Relay) Store() Storer { return r.store }

// Config returns a copy of the relay's configuration.
func (r *Relay) Config() Config { return r.config }

// State returns the current lifecycle state.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Healthy reports store connectivity. Adapter errors are transient
// infrastructure failures; hosting processes should surface this from
// their health check rather than silently dropping jobs.
func (r *Relay) Healthy(ctx context.Context) error {
	if r.store == nil {
		return ErrNoStore
	}
	return r.store.Ping(ctx)
}

// SetPool sets the worker pool (called by the engine package).
func (r *Relay) SetPool(p poolRunner) { r.pool = p }

// SetExtensions sets the extension emitter (called by the engine package).
func (r *Relay) SetExtensions(e extensionEmitter) { r.extensions = e }

// SetSweeper sets the rate-limit sweeper (called by the engine package).
func (r *Relay) SetSweeper(s sweeperRunner) { r.sweeper = s }

// Start begins job processing.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pool == nil {
		return ErrNoPool
	}
	if r.state == StateRunning {
		return nil
	}
	if r.state == StateDraining || r.state == StateStopped {
		return ErrInvalidState
	}
	if err := r.pool.Start(ctx); err != nil {
		return err
	}
	r.state = StateRunning
	return nil
}

// Stop drains the relay and releases resources in dependency order:
// worker claims stop, in-flight executions finish, extensions (and with
// them event listeners) shut down, the rate-limit sweeper stops, and the
// store closes last. If ctx carries a deadline the pool cancels
// still-active jobs when time runs out.
func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StateStopped {
		r.mu.Unlock()
		return nil
	}
	wasRunning := r.state == StateRunning
	r.state = StateDraining
	r.mu.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && r.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.ShutdownTimeout)
		defer cancel()
	}

	if r.pool != nil && wasRunning {
		if err := r.pool.Stop(ctx); err != nil {
			r.logger.Error("pool stop error", slog.String("error", err.Error()))
		}
	}
	if r.extensions != nil {
		r.extensions.EmitShutdown(ctx)
	}
	if r.sweeper != nil {
		r.sweeper.Stop()
	}

	r.mu.Lock()
	r.state = StateStopped
	r.mu.Unlock()

	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

// WithConcurrency sets the maximum number of concurrent job executors.
func WithConcurrency(n int) Option {
	return func(r *Relay) error {
		r.config.Concurrency = n
		return nil
	}
}

// WithQueues sets the queues this relay will poll.
func WithQueues(queues []string) Option {
	return func(r *Relay) error {
		r.config.Queues = queues
		return nil
	}
}

// WithLogger sets the structured logger for the relay.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) error {
		r.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the relay.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(r *Relay) error {
		r.store = s
		return nil
	}
}

// WithConfig replaces the whole configuration in one call.
func WithConfig(c Config) Option {
	return func(r *Relay) error {
		r.config = c
		return nil
	}
}
