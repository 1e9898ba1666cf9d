package stream

import (
	"context"
	"sync"
	"time"

	"github.com/relayworks/relay/dlq"
	"github.com/relayworks/relay/id"
	"github.com/relayworks/relay/job"
)

// Broker fans lifecycle events out to subscribers. It implements the
// extension hook interfaces, so registering a Broker with the extension
// registry turns every job transition into a stream event.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	buffer int
	closed bool
	now    func() time.Time
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBuffer sets the per-subscriber channel buffer. Default 64.
func WithBuffer(n int) BrokerOption {
	return func(b *Broker) { b.buffer = n }
}

// NewBroker creates an event broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		subs:   make(map[*Subscriber]struct{}),
		buffer: 64,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a consumer for the given topics. With no topics
// it defaults to the firehose.
func (b *Broker) Subscribe(topics ...Topic) *Subscriber {
	if len(topics) == 0 {
		topics = []Topic{TopicFirehose}
	}
	sub := newSubscriber(b.buffer, topics)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers an event to every matching subscriber. Delivery
// never blocks; slow consumers lose events instead.
func (b *Broker) Publish(e Event) {
	if e.ID.IsNil() {
		e.ID = id.NewEventID()
	}
	if e.At.IsZero() {
		e.At = b.now()
	}
	topics := topicsFor(e)

	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	var stale []*Subscriber
	for _, sub := range subs {
		if !sub.wants(topics) {
			continue
		}
		if !sub.deliver(e) {
			stale = append(stale, sub)
		}
	}
	if len(stale) > 0 {
		b.mu.Lock()
		for _, sub := range stale {
			if _, ok := b.subs[sub]; ok {
				delete(b.subs, sub)
				close(sub.ch)
			}
		}
		b.mu.Unlock()
	}
}

// Close shuts the broker down and closes every subscriber channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

func (b *Broker) publishJob(t EventType, j *job.Job, errMsg string, delay time.Duration) {
	b.Publish(Event{
		Type:     t,
		JobID:    j.ID,
		Name:     j.Name,
		Queue:    j.Queue,
		Attempts: j.Attempts,
		Error:    errMsg,
		Delay:    delay,
	})
}

// OnJobEnqueued implements ext.JobEnqueuedHook.
func (b *Broker) OnJobEnqueued(_ context.Context, j *job.Job) {
	b.publishJob(EventJobEnqueued, j, "", 0)
}

// OnJobStarted implements ext.JobStartedHook.
func (b *Broker) OnJobStarted(_ context.Context, j *job.Job) {
	b.publishJob(EventJobStarted, j, "", 0)
}

// OnJobCompleted implements ext.JobCompletedHook.
func (b *Broker) OnJobCompleted(_ context.Context, j *job.Job, _ time.Duration) {
	b.publishJob(EventJobCompleted, j, "", 0)
}

// OnJobFailed implements ext.JobFailedHook.
func (b *Broker) OnJobFailed(_ context.Context, j *job.Job, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	b.publishJob(EventJobFailed, j, msg, 0)
}

// OnJobRetrying implements ext.JobRetryingHook.
func (b *Broker) OnJobRetrying(_ context.Context, j *job.Job, delay time.Duration) {
	b.publishJob(EventJobRetrying, j, j.LastError, delay)
}

// OnJobDLQ implements ext.JobDLQHook.
func (b *Broker) OnJobDLQ(_ context.Context, j *job.Job, entry *dlq.Entry) {
	msg := ""
	if entry != nil {
		msg = entry.Error
	}
	b.publishJob(EventJobDLQ, j, msg, 0)
}

// OnJobStalled implements ext.JobStalledHook.
func (b *Broker) OnJobStalled(_ context.Context, j *job.Job) {
	b.publishJob(EventJobStalled, j, "", 0)
}

// OnShutdown implements ext.ShutdownHook.
func (b *Broker) OnShutdown(context.Context) {
	b.Close()
}
