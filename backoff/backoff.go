// Package backoff provides retry delay strategies for failed jobs.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before retry attempt number attempt.
// The first retry passes attempt=1.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Func adapts a plain function to a Strategy.
type Func func(attempt int) time.Duration

// Delay implements Strategy.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// Constant returns the same delay for every attempt.
func Constant(d time.Duration) Strategy {
	return Func(func(int) time.Duration { return d })
}

// Linear grows the delay by base per attempt, capped at max.
func Linear(base, max time.Duration) Strategy {
	return Func(func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := base * time.Duration(attempt)
		if d > max {
			return max
		}
		return d
	})
}

// Exponential doubles the delay each attempt starting from base,
// capped at max: base, 2*base, 4*base, ...
func Exponential(base, max time.Duration) Strategy {
	return Func(func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		// Guard the shift so large attempt counts don't overflow.
		exp := attempt - 1
		if exp > 62 {
			return max
		}
		d := time.Duration(float64(base) * math.Pow(2, float64(exp)))
		if d > max || d < 0 {
			return max
		}
		return d
	})
}

// ExponentialWithJitter is Exponential with up to 25% random jitter
// added, which spreads retry storms after a shared outage.
func ExponentialWithJitter(base, max time.Duration) Strategy {
	exp := Exponential(base, max)
	return Func(func(attempt int) time.Duration {
		d := exp.Delay(attempt)
		jitter := time.Duration(rand.Int64N(int64(d)/4 + 1))
		if d+jitter > max {
			return max
		}
		return d + jitter
	})
}

// Default is the strategy used when none is configured: exponential
// starting at 1s, capped at 5 minutes.
func Default() Strategy {
	return Exponential(time.Second, 5*time.Minute)
}
