package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/relayworks/relay"
	"github.com/relayworks/relay/dlq"
	"github.com/relayworks/relay/id"
)

func (s *Store) loadEntry(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	data, err := s.client.Get(ctx, s.keys.dlqEntry(entryID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, relay.ErrDLQNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load dlq entry %s: %w", entryID, err)
	}
	var e dlq.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("redis: decode dlq entry %s: %w", entryID, err)
	}
	return &e, nil
}

// SaveDLQEntry implements dlq.Store.
func (s *Store) SaveDLQEntry(ctx context.Context, e *dlq.Entry) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis: encode dlq entry %s: %w", e.ID, err)
	}
	score := float64(e.FailedAt.UnixMilli())

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keys.dlqEntry(e.ID), doc, 0)
	pipe.ZAdd(ctx, s.keys.dlqIndex(), redis.Z{Score: score, Member: e.ID.String()})
	pipe.ZAdd(ctx, s.keys.dlqQueue(e.Queue), redis.Z{Score: score, Member: e.ID.String()})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save dlq entry %s: %w", e.ID, err)
	}
	return nil
}

// GetDLQEntry implements dlq.Store.
func (s *Store) GetDLQEntry(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	return s.loadEntry(ctx, entryID)
}

// UpdateDLQEntry implements dlq.Store.
func (s *Store) UpdateDLQEntry(ctx context.Context, e *dlq.Entry) error {
	if _, err := s.loadEntry(ctx, e.ID); err != nil {
		return err
	}
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis: encode dlq entry %s: %w", e.ID, err)
	}
	if err := s.client.Set(ctx, s.keys.dlqEntry(e.ID), doc, 0).Err(); err != nil {
		return fmt.Errorf("redis: update dlq entry %s: %w", e.ID, err)
	}
	return nil
}

// DeleteDLQEntry implements dlq.Store.
func (s *Store) DeleteDLQEntry(ctx context.Context, entryID id.DLQID) error {
	e, err := s.loadEntry(ctx, entryID)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.keys.dlqEntry(entryID))
	pipe.ZRem(ctx, s.keys.dlqIndex(), entryID.String())
	pipe.ZRem(ctx, s.keys.dlqQueue(e.Queue), entryID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: delete dlq entry %s: %w", entryID, err)
	}
	return nil
}

// ListDLQEntries implements dlq.Store. Most recently failed first.
func (s *Store) ListDLQEntries(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	index := s.keys.dlqIndex()
	if opts.Queue != "" {
		index = s.keys.dlqQueue(opts.Queue)
	}
	stop := int64(-1)
	if opts.Limit > 0 {
		stop = int64(opts.Offset + opts.Limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, index, int64(opts.Offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(ids))
	for _, raw := range ids {
		entryID, err := id.ParseDLQID(raw)
		if err != nil {
			continue
		}
		e, err := s.loadEntry(ctx, entryID)
		if errors.Is(err, relay.ErrDLQNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CountDLQEntries implements dlq.Store.
func (s *Store) CountDLQEntries(ctx context.Context, queue string) (int64, error) {
	index := s.keys.dlqIndex()
	if queue != "" {
		index = s.keys.dlqQueue(queue)
	}
	n, err := s.client.ZCard(ctx, index).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: count dlq: %w", err)
	}
	return n, nil
}

// PurgeDLQEntries implements dlq.Store.
func (s *Store) PurgeDLQEntries(ctx context.Context, queue string) (int64, error) {
	index := s.keys.dlqIndex()
	if queue != "" {
		index = s.keys.dlqQueue(queue)
	}
	ids, err := s.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: purge dlq: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	var removed int64
	for _, raw := range ids {
		entryID, err := id.ParseDLQID(raw)
		if err != nil {
			continue
		}
		e, err := s.loadEntry(ctx, entryID)
		if err != nil {
			continue
		}
		pipe.Del(ctx, s.keys.dlqEntry(entryID))
		pipe.ZRem(ctx, s.keys.dlqIndex(), raw)
		pipe.ZRem(ctx, s.keys.dlqQueue(e.Queue), raw)
		removed++
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis: purge dlq: %w", err)
	}
	return removed, nil
}
