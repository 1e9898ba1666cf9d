package job

import (
	"context"
	"encoding/json"
	"fmt"
)

// HandlerFunc processes a job with a raw payload. Returning nil marks
// the job completed. Returning an error wrapped with Terminal()
// dead-letters the job immediately; any other error schedules a retry
// while the attempt budget lasts.
type HandlerFunc func(ctx context.Context, j *Job) error

// Definition binds a job name to a typed handler plus default options.
// Create one with Define and register it with a Registry.
type Definition[T any] struct {
	name    string
	handler func(ctx context.Context, payload T) error
	opts    Options
}

// Define creates a typed job definition. The payload type T is
// marshalled to JSON at enqueue time and unmarshalled before the
// handler runs.
func Define[T any](name string, handler func(ctx context.Context, payload T) error, opts ...Option) *Definition[T] {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Definition[T]{
		name:    name,
		handler: handler,
		opts:    o,
	}
}

// Name returns the job name the definition is registered under.
func (d *Definition[T]) Name() string { return d.name }

// Options returns the definition's default options.
func (d *Definition[T]) Options() Options { return d.opts }

// Handler adapts the typed handler to a HandlerFunc by decoding the
// payload.
func (d *Definition[T]) Handler() HandlerFunc {
	return func(ctx context.Context, j *Job) error {
		var payload T
		if len(j.Payload) > 0 {
			if err := json.Unmarshal(j.Payload, &payload); err != nil {
				// A payload that cannot decode will never decode.
				return Terminal(fmt.Errorf("decode payload for %q: %w", d.name, err))
			}
		}
		return d.handler(ctx, payload)
	}
}

// Marshal encodes a typed payload for enqueue.
func (d *Definition[T]) Marshal(payload T) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload for %q: %w", d.name, err)
	}
	return data, nil
}
