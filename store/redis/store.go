// Package redis provides the Redis-backed store. Jobs are JSON
// documents indexed by sorted sets: a per-queue schedule keyed by
// run-at time, a running set keyed by heartbeat time, and per-state
// membership sets. Claims are made atomic with ZREM: only the caller
// that removes a job id from the schedule owns it.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Config configures the Redis store.
type Config struct {
	// Addr is the host:port of the Redis server.
	Addr string
	// Password is optional.
	Password string
	// DB selects the logical database.
	DB int
	// Prefix namespaces all keys. Default "relay".
	Prefix string
}

// Store is a Redis-backed implementation of the relay store
// interfaces.
type Store struct {
	client redis.UniversalClient
	keys   keys
}

// New connects to Redis and returns a Store.
func New(cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(client, cfg.Prefix), nil
}

// NewWithClient wraps an existing client, e.g. a cluster or sentinel
// client managed by the host application.
func NewWithClient(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "relay"
	}
	return &Store{client: client, keys: keys{prefix: prefix}}
}

// Migrate implements relay.Storer. Redis needs no schema.
func (s *Store) Migrate(context.Context) error { return nil }

// Ping implements relay.Storer.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close implements relay.Storer.
func (s *Store) Close() error {
	return s.client.Close()
}

// ──────────────────────────────────────────────────
// queue.Store
// ──────────────────────────────────────────────────

// SetQueuePaused implements queue.Store.
func (s *Store) SetQueuePaused(ctx context.Context, name string, paused bool) error {
	var err error
	if paused {
		err = s.client.SAdd(ctx, s.keys.paused(), name).Err()
	} else {
		err = s.client.SRem(ctx, s.keys.paused(), name).Err()
	}
	if err != nil {
		return fmt.Errorf("redis: set queue %q paused=%t: %w", name, paused, err)
	}
	return nil
}

// QueuePaused implements queue.Store.
func (s *Store) QueuePaused(ctx context.Context, name string) (bool, error) {
	paused, err := s.client.SIsMember(ctx, s.keys.paused(), name).Result()
	if err != nil {
		return false, fmt.Errorf("redis: queue %q paused: %w", name, err)
	}
	return paused, nil
}
