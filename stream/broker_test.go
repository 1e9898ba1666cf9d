package stream_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relayworks/relay/ext"
	"github.com/relayworks/relay/id"
	"github.com/relayworks/relay/job"
	"github.com/relayworks/relay/stream"
)

func drain(t *testing.T, sub *stream.Subscriber, n int) []stream.Event {
	t.Helper()
	events := make([]stream.Event, 0, n)
	timeout := time.After(time.Second)
	for len(events) < n {
		select {
		case e, ok := <-sub.C():
			if !ok {
				t.Fatalf("channel closed after %d events, want %d", len(events), n)
			}
			events = append(events, e)
		case <-timeout:
			t.Fatalf("timed out after %d events, want %d", len(events), n)
		}
	}
	return events
}

func TestFirehoseReceivesEverything(t *testing.T) {
	b := NewTestBroker(t)
	sub := b.Subscribe(stream.TopicFirehose)

	j1 := &job.Job{ID: id.NewJobID(), Queue: "email"}
	j2 := &job.Job{ID: id.NewJobID(), Queue: "webhooks"}

	ctx := context.Background()
	b.OnJobEnqueued(ctx, j1)
	b.OnJobEnqueued(ctx, j2)
	b.OnJobStarted(ctx, j1)

	events := drain(t, sub, 3)
	if events[0].Type != stream.EventJobEnqueued || events[0].Queue != "email" {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[2].Type != stream.EventJobStarted || events[2].JobID != j1.ID {
		t.Errorf("event 2 = %+v", events[2])
	}
	for _, e := range events {
		if e.ID.IsNil() || e.At.IsZero() {
			t.Errorf("event missing id or timestamp: %+v", e)
		}
	}
}

func TestQueueTopicFilters(t *testing.T) {
	b := NewTestBroker(t)
	sub := b.Subscribe(stream.TopicQueue("email"))

	ctx := context.Background()
	b.OnJobEnqueued(ctx, &job.Job{ID: id.NewJobID(), Queue: "webhooks"})
	b.OnJobEnqueued(ctx, &job.Job{ID: id.NewJobID(), Queue: "email"})

	events := drain(t, sub, 1)
	if events[0].Queue != "email" {
		t.Errorf("queue = %q, want email", events[0].Queue)
	}
	select {
	case e := <-sub.C():
		t.Errorf("unexpected extra event: %+v", e)
	default:
	}
}

func TestJobTopicFilters(t *testing.T) {
	b := NewTestBroker(t)
	target := &job.Job{ID: id.NewJobID(), Queue: "email"}
	other := &job.Job{ID: id.NewJobID(), Queue: "email"}
	sub := b.Subscribe(stream.TopicJob(target.ID))

	ctx := context.Background()
	b.OnJobStarted(ctx, other)
	b.OnJobCompleted(ctx, target, time.Second)

	events := drain(t, sub, 1)
	if events[0].JobID != target.ID || events[0].Type != stream.EventJobCompleted {
		t.Errorf("event = %+v", events[0])
	}
}

func TestFailureEventsCarryError(t *testing.T) {
	b := NewTestBroker(t)
	sub := b.Subscribe()

	j := &job.Job{ID: id.NewJobID(), Queue: "email", Attempts: 2, LastError: "smtp refused"}
	ctx := context.Background()
	b.OnJobFailed(ctx, j, errors.New("smtp refused"))
	b.OnJobRetrying(ctx, j, 4*time.Second)

	events := drain(t, sub, 2)
	if events[0].Error != "smtp refused" || events[0].Attempts != 2 {
		t.Errorf("failed event = %+v", events[0])
	}
	if events[1].Type != stream.EventJobRetrying || events[1].Delay != 4*time.Second {
		t.Errorf("retrying event = %+v", events[1])
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := stream.NewBroker(stream.WithBuffer(2))
	t.Cleanup(b.Close)
	sub := b.Subscribe()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		b.OnJobEnqueued(ctx, &job.Job{ID: id.NewJobID(), Queue: "email"})
	}

	if got := sub.Dropped(); got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}
	drain(t, sub, 2)
}

func TestShutdownClosesSubscribers(t *testing.T) {
	b := stream.NewBroker()
	sub := b.Subscribe()

	b.OnShutdown(context.Background())

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("expected closed channel, got event")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed on shutdown")
	}
}

func TestBrokerPlugsIntoExtensionRegistry(t *testing.T) {
	b := NewTestBroker(t)
	sub := b.Subscribe()

	reg := ext.NewRegistry(nil)
	reg.Register(b)

	j := &job.Job{ID: id.NewJobID(), Queue: "email"}
	reg.EmitJobEnqueued(context.Background(), j)

	events := drain(t, sub, 1)
	if events[0].Type != stream.EventJobEnqueued {
		t.Errorf("event = %+v", events[0])
	}
}

// NewTestBroker creates a broker closed at test cleanup.
func NewTestBroker(t *testing.T) *stream.Broker {
	t.Helper()
	b := stream.NewBroker()
	t.Cleanup(b.Close)
	return b
}
