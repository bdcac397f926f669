package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// gate spaces calls to one upstream provider. Its mutex is the single critical
// section for that provider; waiters queue on it.
type gate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

type Limiter struct {
	mu sync.Mutex
	m  map[string]*bucket

	gatesMu sync.RWMutex
	gates   map[string]*gate
}

func New() *Limiter {
	return &Limiter{m: make(map[string]*bucket), gates: make(map[string]*gate)}
}

// Interval converts a calls-per-minute budget into the minimum spacing between calls.
func Interval(callsPerMinute float64) time.Duration {
	if callsPerMinute <= 0 {
		return 0
	}
	return time.Duration(float64(time.Minute) / callsPerMinute)
}

// Configure sets the budget for provider. Reconfiguring keeps the last call time.
func (l *Limiter) Configure(provider string, callsPerMinute float64) {
	l.gatesMu.Lock()
	defer l.gatesMu.Unlock()
	if g, ok := l.gates[provider]; ok {
		g.mu.Lock()
		g.interval = Interval(callsPerMinute)
		g.mu.Unlock()
		return
	}
	l.gates[provider] = &gate{interval: Interval(callsPerMinute)}
}

// Acquire blocks until at least the provider's interval has passed since its previous
// call, then records now as the last call. Providers that were never configured pass
// straight through. The only error is ctx cancellation while waiting.
func (l *Limiter) Acquire(ctx context.Context, provider string) error {
	l.gatesMu.RLock()
	g, ok := l.gates[provider]
	l.gatesMu.RUnlock()
	if !ok {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.last.IsZero() {
		if wait := g.interval - time.Since(g.last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	g.last = time.Now()
	return nil
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}
