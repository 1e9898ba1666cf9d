package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relayworks/relay/ratelimit"
	"github.com/relayworks/relay/store/memory"
)

func TestLimiterAllowsUpToLimit(t *testing.T) {
	st := memory.New()
	l := ratelimit.NewLimiter(st, nil)

	base := time.UnixMilli(1_000_000)
	l.SetClock(func() time.Time { return base })

	policy := ratelimit.Policy{Limit: 5, Window: time.Second}
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		res := l.Check(ctx, "email", policy)
		if !res.Allowed {
			t.Fatalf("check %d: denied, want allowed", i+1)
		}
		if res.Remaining != 4-i {
			t.Errorf("check %d: remaining = %d, want %d", i+1, res.Remaining, 4-i)
		}
	}

	res := l.Check(ctx, "email", policy)
	if res.Allowed {
		t.Fatal("6th check in window should be denied")
	}
	if res.Remaining != 0 {
		t.Errorf("denied remaining = %d, want 0", res.Remaining)
	}
	wantReset := time.UnixMilli(1_001_000)
	if !res.ResetAt.Equal(wantReset) {
		t.Errorf("reset at %v, want %v", res.ResetAt, wantReset)
	}
}

func TestLimiterResetsNextWindow(t *testing.T) {
	st := memory.New()
	l := ratelimit.NewLimiter(st, nil)

	now := time.UnixMilli(1_000_000)
	l.SetClock(func() time.Time { return now })

	policy := ratelimit.Policy{Limit: 1, Window: time.Second}
	ctx := context.Background()

	if res := l.Check(ctx, "s", policy); !res.Allowed {
		t.Fatal("first check should be allowed")
	}
	if res := l.Check(ctx, "s", policy); res.Allowed {
		t.Fatal("second check in same window should be denied")
	}

	now = now.Add(time.Second)
	if res := l.Check(ctx, "s", policy); !res.Allowed {
		t.Fatal("check in next window should be allowed")
	}
}

func TestLimiterScopesAreIndependent(t *testing.T) {
	st := memory.New()
	l := ratelimit.NewLimiter(st, nil)
	l.SetClock(func() time.Time { return time.UnixMilli(1_000_000) })

	policy := ratelimit.Policy{Limit: 1, Window: time.Second}
	ctx := context.Background()

	if res := l.Check(ctx, "a", policy); !res.Allowed {
		t.Fatal("scope a should be allowed")
	}
	if res := l.Check(ctx, "a", policy); res.Allowed {
		t.Fatal("scope a should be exhausted")
	}
	if res := l.Check(ctx, "b", policy); !res.Allowed {
		t.Fatal("scope b should be unaffected by scope a")
	}
}

func TestLimiterUnlimitedPolicy(t *testing.T) {
	st := memory.New()
	l := ratelimit.NewLimiter(st, nil)

	for i := 0; i < 100; i++ {
		if res := l.Check(context.Background(), "x", ratelimit.Policy{}); !res.Allowed {
			t.Fatal("unlimited policy must always allow")
		}
	}
}

func TestLimiterArmsWindowTTL(t *testing.T) {
	st := memory.New()
	l := ratelimit.NewLimiter(st, nil)
	l.SetClock(func() time.Time { return time.UnixMilli(1_000_000) })

	window := 10 * time.Second
	ctx := context.Background()
	if res := l.Check(ctx, "email", ratelimit.Policy{Limit: 5, Window: window}); !res.Allowed {
		t.Fatal("first check should be allowed")
	}

	keys, err := st.ScanCounters(ctx, "ratelimit:")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("keys = %v, want one counter", keys)
	}
	ttl, err := st.CounterTTL(ctx, keys[0])
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > window {
		t.Errorf("ttl = %v, want within one window (%v)", ttl, window)
	}
}

type failingCounters struct{}

func (failingCounters) IncrCounter(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}
func (failingCounters) ExpireCounter(context.Context, string, time.Duration) error { return nil }
func (failingCounters) ScanCounters(context.Context, string) ([]string, error)     { return nil, nil }
func (failingCounters) CounterTTL(context.Context, string) (time.Duration, error)  { return 0, nil }
func (failingCounters) DeleteCounter(context.Context, string) error                { return nil }

func TestLimiterFailsOpen(t *testing.T) {
	l := ratelimit.NewLimiter(failingCounters{}, nil)
	res := l.Check(context.Background(), "x", ratelimit.Policy{Limit: 1, Window: time.Second})
	if !res.Allowed {
		t.Fatal("store failure must not block execution")
	}
}

func TestSweeperRemovesExpiredCounters(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	if _, err := st.IncrCounter(ctx, "ratelimit:old:1"); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if err := st.ExpireCounter(ctx, "ratelimit:old:1", 10*time.Millisecond); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if _, err := st.IncrCounter(ctx, "ratelimit:fresh:2"); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if err := st.ExpireCounter(ctx, "ratelimit:fresh:2", time.Hour); err != nil {
		t.Fatalf("expire: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	sw := ratelimit.NewSweeper(st, time.Minute, nil)
	sw.Sweep(ctx)

	keys, err := st.ScanCounters(ctx, "ratelimit:")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 1 || keys[0] != "ratelimit:fresh:2" {
		t.Errorf("remaining keys = %v, want [ratelimit:fresh:2]", keys)
	}
}
