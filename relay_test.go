package relay_test

import (
	"context"
	"errors"
	"testing"

	"github.com/relayworks/relay"
	"github.com/relayworks/relay/store/memory"
)

type fakePool struct {
	started bool
	stopped bool
}

func (p *fakePool) Start(context.Context) error { p.started = true; return nil }
func (p *fakePool) Stop(context.Context) error  { p.stopped = true; return nil }

func newRelay(t *testing.T) (*relay.Relay, *fakePool) {
	t.Helper()
	r, err := relay.New(relay.WithStore(memory.New()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p := &fakePool{}
	r.SetPool(p)
	return r, p
}

func TestLifecycleRunningDrainingStopped(t *testing.T) {
	r, p := newRelay(t)
	ctx := context.Background()

	if r.State() != relay.StateIdle {
		t.Fatalf("initial state = %q, want idle", r.State())
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if r.State() != relay.StateRunning || !p.started {
		t.Fatalf("state = %q started=%v", r.State(), p.started)
	}

	if err := r.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if r.State() != relay.StateStopped || !p.stopped {
		t.Fatalf("state = %q stopped=%v", r.State(), p.stopped)
	}
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	r, _ := newRelay(t)
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(ctx); err != nil {
		t.Errorf("second start: %v, want nil", err)
	}
}

func TestStartAfterStopRejected(t *testing.T) {
	r, _ := newRelay(t)
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := r.Start(ctx); !errors.Is(err, relay.ErrInvalidState) {
		t.Errorf("start after stop: %v, want ErrInvalidState", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r, _ := newRelay(t)
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Errorf("second stop: %v, want nil", err)
	}
}

func TestStopClosesStoreLast(t *testing.T) {
	st := memory.New()
	r, err := relay.New(relay.WithStore(st))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	r.SetPool(&fakePool{})
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := st.Ping(ctx); !errors.Is(err, relay.ErrStoreClosed) {
		t.Errorf("store should be closed after stop, ping = %v", err)
	}
}

func TestHealthyReportsStore(t *testing.T) {
	r, _ := newRelay(t)
	if err := r.Healthy(context.Background()); err != nil {
		t.Errorf("healthy with live store: %v", err)
	}

	empty, err := relay.New()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := empty.Healthy(context.Background()); !errors.Is(err, relay.ErrNoStore) {
		t.Errorf("healthy without store: %v, want ErrNoStore", err)
	}
}

func TestStartWithoutPoolFails(t *testing.T) {
	r, err := relay.New(relay.WithStore(memory.New()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := r.Start(context.Background()); !errors.Is(err, relay.ErrNoPool) {
		t.Errorf("start without a wired pool: %v, want ErrNoPool", err)
	}
}
