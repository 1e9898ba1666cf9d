package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Gate enforces in-process per-queue limits: a concurrency cap and an
// optional token-bucket smoother that spaces executions out inside a
// rate window instead of bursting at the window edge. The distributed
// fixed-window limiter remains the authoritative cap; the gate only
// shapes local behavior.
type Gate struct {
	mu       sync.Mutex
	limits   map[string]int
	active   map[string]int
	smoother map[string]*rate.Limiter
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{
		limits:   make(map[string]int),
		active:   make(map[string]int),
		smoother: make(map[string]*rate.Limiter),
	}
}

// Configure applies a queue's options to the gate. A rate policy of
// n per window becomes a token bucket refilling at n/window with burst
// capped at n, so a full window's budget can't fire in one instant.
func (g *Gate) Configure(name string, opts Options) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if opts.Concurrency > 0 {
		g.limits[name] = opts.Concurrency
	}
	if !opts.RateLimit.Unlimited() {
		perSecond := float64(opts.RateLimit.Limit) / opts.RateLimit.Window.Seconds()
		burst := int(opts.RateLimit.Limit)
		if burst < 1 {
			burst = 1
		}
		g.smoother[name] = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// TryAcquire reserves one execution slot for the queue. Returns false
// when the queue is at its local concurrency cap or the smoother has
// no token available.
func (g *Gate) TryAcquire(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if limit, ok := g.limits[name]; ok && g.active[name] >= limit {
		return false
	}
	if sm, ok := g.smoother[name]; ok && !sm.Allow() {
		return false
	}
	g.active[name]++
	return true
}

// Release returns a previously acquired slot.
func (g *Gate) Release(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[name] > 0 {
		g.active[name]--
	}
}

// Active returns the current in-process execution count for a queue.
func (g *Gate) Active(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[name]
}
