package backoff_test

import (
	"testing"
	"time"

	"github.com/relayworks/relay/backoff"
)

func TestConstant(t *testing.T) {
	s := backoff.Constant(2 * time.Second)
	for _, attempt := range []int{1, 2, 10} {
		if got := s.Delay(attempt); got != 2*time.Second {
			t.Errorf("attempt %d: got %v, want 2s", attempt, got)
		}
	}
}

func TestLinear(t *testing.T) {
	s := backoff.Linear(time.Second, 5*time.Second)
	cases := map[int]time.Duration{
		1:  time.Second,
		3:  3 * time.Second,
		10: 5 * time.Second,
	}
	for attempt, want := range cases {
		if got := s.Delay(attempt); got != want {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, want)
		}
	}
}

func TestExponentialDoubling(t *testing.T) {
	s := backoff.Exponential(time.Second, time.Hour)
	cases := map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 8 * time.Second,
	}
	for attempt, want := range cases {
		if got := s.Delay(attempt); got != want {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, want)
		}
	}
}

func TestExponentialCap(t *testing.T) {
	s := backoff.Exponential(time.Second, 10*time.Second)
	if got := s.Delay(30); got != 10*time.Second {
		t.Errorf("capped delay = %v, want 10s", got)
	}
	// Attempt counts past any sane budget must not overflow.
	if got := s.Delay(100); got != 10*time.Second {
		t.Errorf("huge attempt delay = %v, want 10s", got)
	}
}

func TestExponentialWithJitterBounds(t *testing.T) {
	s := backoff.ExponentialWithJitter(time.Second, time.Hour)
	for i := 0; i < 50; i++ {
		d := s.Delay(3)
		if d < 4*time.Second || d > 5*time.Second {
			t.Fatalf("jittered delay %v outside [4s, 5s]", d)
		}
	}
}

func TestZeroAttemptTreatedAsFirst(t *testing.T) {
	s := backoff.Exponential(time.Second, time.Hour)
	if got := s.Delay(0); got != time.Second {
		t.Errorf("attempt 0: got %v, want 1s", got)
	}
}
