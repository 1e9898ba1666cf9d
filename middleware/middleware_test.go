package middleware_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/relayworks/relay/job"
	"github.com/relayworks/relay/middleware"
	"github.com/relayworks/relay/scope"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) middleware.Middleware {
		return func(next job.HandlerFunc) job.HandlerFunc {
			return func(ctx context.Context, j *job.Job) error {
				order = append(order, name)
				return next(ctx, j)
			}
		}
	}

	h := middleware.Chain(func(ctx context.Context, j *job.Job) error {
		order = append(order, "handler")
		return nil
	}, mk("outer"), mk("inner"))

	if err := h(context.Background(), &job.Job{}); err != nil {
		t.Fatalf("chain: %v", err)
	}
	want := []string{"outer", "inner", "handler"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	h := middleware.Chain(func(ctx context.Context, j *job.Job) error {
		panic("handler exploded")
	}, middleware.Recover())

	err := h(context.Background(), &job.Job{Name: "bad"})
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	if !strings.Contains(err.Error(), "handler exploded") {
		t.Errorf("error = %v, want panic message preserved", err)
	}
	if job.IsTerminal(err) {
		t.Error("panic should be retryable, not terminal")
	}
}

func TestTimeoutCancelsLongAttempt(t *testing.T) {
	h := middleware.Chain(func(ctx context.Context, j *job.Job) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}, middleware.Timeout())

	j := &job.Job{Name: "slow", Timeout: 20 * time.Millisecond}
	start := time.Now()
	err := h(context.Background(), j)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Error("timeout did not cut the attempt short")
	}
}

func TestTimeoutZeroMeansNoLimit(t *testing.T) {
	h := middleware.Chain(func(ctx context.Context, j *job.Job) error {
		if _, ok := ctx.Deadline(); ok {
			return errors.New("unexpected deadline")
		}
		return nil
	}, middleware.Timeout())

	if err := h(context.Background(), &job.Job{}); err != nil {
		t.Fatalf("no-timeout job: %v", err)
	}
}

func TestScopeRestoresTenant(t *testing.T) {
	var gotApp, gotOrg string
	h := middleware.Chain(func(ctx context.Context, j *job.Job) error {
		gotApp, _ = scope.AppID(ctx)
		gotOrg, _ = scope.OrgID(ctx)
		return nil
	}, middleware.Scope())

	j := &job.Job{ScopeAppID: "app1", ScopeOrgID: "org1"}
	if err := h(context.Background(), j); err != nil {
		t.Fatalf("scope: %v", err)
	}
	if gotApp != "app1" || gotOrg != "org1" {
		t.Errorf("restored scope = %q/%q, want app1/org1", gotApp, gotOrg)
	}
}

func TestMetricsAndTracingPassThrough(t *testing.T) {
	// No providers configured; instruments are no-ops but the error
	// must still propagate unchanged.
	sentinel := errors.New("boom")
	h := middleware.Chain(func(ctx context.Context, j *job.Job) error {
		return sentinel
	}, middleware.Tracing(), middleware.Metrics())

	if err := h(context.Background(), &job.Job{Name: "x", Queue: "q"}); !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want sentinel", err)
	}
}
