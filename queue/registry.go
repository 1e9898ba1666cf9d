package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/relayworks/relay/job"
)

// Registry holds every declared queue. Ensure is idempotent: declaring
// an existing queue returns the existing handle with its original
// options, so redeployed producers and workers converge on one
// configuration.
type Registry struct {
	mu     sync.RWMutex
	queues map[string]Options
	store  Store
	jobs   job.Store
	logger *slog.Logger
}

// NewRegistry creates a queue registry over the given stores.
func NewRegistry(store Store, jobs job.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		queues: make(map[string]Options),
		store:  store,
		jobs:   jobs,
		logger: logger,
	}
}

// Ensure declares a queue and returns its handle. The first
// declaration fixes the options; later calls return the existing
// handle and their options are ignored.
func (r *Registry) Ensure(name string, opts ...Option) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.queues[name]; !exists {
		o := DefaultQueueOptions()
		for _, opt := range opts {
			opt(&o)
		}
		r.queues[name] = o
		r.logger.Debug("queue declared", slog.String("queue", name))
	}
	return &Queue{name: name, reg: r}
}

// Get returns the handle for a declared queue.
func (r *Registry) Get(name string) (*Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.queues[name]; !ok {
		return nil, false
	}
	return &Queue{name: name, reg: r}, true
}

// Names returns all declared queue names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	return names
}

func (r *Registry) options(name string) Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.queues[name]
}

func (r *Registry) setPaused(ctx context.Context, name string, paused bool) error {
	if err := r.store.SetQueuePaused(ctx, name, paused); err != nil {
		return err
	}
	if paused {
		r.logger.Info("queue paused", slog.String("queue", name))
	} else {
		r.logger.Info("queue resumed", slog.String("queue", name))
	}
	return nil
}

func (r *Registry) paused(ctx context.Context, name string) (bool, error) {
	return r.store.QueuePaused(ctx, name)
}

func (r *Registry) metrics(ctx context.Context, name string) (*Metrics, error) {
	m := &Metrics{}

	pending, err := r.jobs.CountJobs(ctx, job.CountOpts{Queue: name, State: job.StatePending})
	if err != nil {
		return nil, err
	}
	pendingDelayed, err := r.jobs.CountJobs(ctx, job.CountOpts{Queue: name, State: job.StatePending, OnlyDelayed: true})
	if err != nil {
		return nil, err
	}
	retrying, err := r.jobs.CountJobs(ctx, job.CountOpts{Queue: name, State: job.StateRetrying})
	if err != nil {
		return nil, err
	}
	m.Waiting = pending - pendingDelayed
	m.Delayed = pendingDelayed + retrying

	if m.Active, err = r.jobs.CountJobs(ctx, job.CountOpts{Queue: name, State: job.StateRunning}); err != nil {
		return nil, err
	}
	if m.Completed, err = r.jobs.CountJobs(ctx, job.CountOpts{Queue: name, State: job.StateCompleted}); err != nil {
		return nil, err
	}
	if m.Failed, err = r.jobs.CountJobs(ctx, job.CountOpts{Queue: name, State: job.StateFailed}); err != nil {
		return nil, err
	}
	if m.Paused, err = r.store.QueuePaused(ctx, name); err != nil {
		return nil, err
	}
	return m, nil
}
