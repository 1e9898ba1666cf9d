package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically deletes expired window counters. Backends with
// native TTL expiry (Redis) don't need it but tolerate it; the memory
// store relies on it for long-lived processes.
type Sweeper struct {
	store    CounterStore
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewSweeper creates a Sweeper that runs every interval.
func NewSweeper(store CounterStore, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    store,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	go s.loop()
}

// Stop halts the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	select {
	case <-s.stopCh:
		return
	default:
		close(s.stopCh)
	}
	<-s.doneCh
}

func (s *Sweeper) loop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// Sweep removes counters whose TTL has lapsed. Exposed for tests and
// for callers that want an immediate pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	keys, err := s.store.ScanCounters(ctx, keyPrefix)
	if err != nil {
		s.logger.Warn("rate limit sweep scan failed", slog.String("error", err.Error()))
		return
	}

	var removed int
	for _, key := range keys {
		ttl, err := s.store.CounterTTL(ctx, key)
		if err != nil {
			continue
		}
		if ttl <= 0 {
			if err := s.store.DeleteCounter(ctx, key); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		s.logger.Debug("swept expired rate limit counters", slog.Int("removed", removed))
	}
}
