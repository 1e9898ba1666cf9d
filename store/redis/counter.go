package redis

import (
	"context"
	"fmt"
	"time"
)

// Rate limit counters map directly onto Redis primitives: INCR for the
// atomic count, PEXPIRE for the window TTL, PTTL and SCAN for the
// sweeper. Redis expires the counters natively; the sweeper is a
// belt-and-suspenders pass.

// IncrCounter implements ratelimit.CounterStore.
func (s *Store) IncrCounter(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, s.keys.counter(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: incr %q: %w", key, err)
	}
	return n, nil
}

// ExpireCounter implements ratelimit.CounterStore.
func (s *Store) ExpireCounter(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.PExpire(ctx, s.keys.counter(key), ttl).Err(); err != nil {
		return fmt.Errorf("redis: expire %q: %w", key, err)
	}
	return nil
}

// ScanCounters implements ratelimit.CounterStore.
func (s *Store) ScanCounters(ctx context.Context, prefix string) ([]string, error) {
	pattern := s.keys.counter(prefix) + "*"
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 200).Iterator()
	trim := len(s.keys.prefix) + 1
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[trim:])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: scan counters: %w", err)
	}
	return keys, nil
}

// CounterTTL implements ratelimit.CounterStore.
func (s *Store) CounterTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, s.keys.counter(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: ttl %q: %w", key, err)
	}
	return ttl, nil
}

// DeleteCounter implements ratelimit.CounterStore.
func (s *Store) DeleteCounter(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keys.counter(key)).Err(); err != nil {
		return fmt.Errorf("redis: del %q: %w", key, err)
	}
	return nil
}
