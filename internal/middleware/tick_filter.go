package middleware

import (
	"fmt"
	"sync"
	"time"

	"CryptoSignal/internal/domain/models"
	domrepo "CryptoSignal/internal/domain/repository"
)

// TickFilter sits between the ticker stream and the price book. It drops
// malformed or stale ticks and throttles each symbol to maxRPS updates a second.
type TickFilter struct {
	metrics  domrepo.Metrics
	maxRPS   int
	maxAge   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

type FilterOption func(*TickFilter)

// WithMaxRPS sets the max accepted ticks per second per symbol. Zero disables throttling.
func WithMaxRPS(n int) FilterOption {
	return func(f *TickFilter) {
		if n >= 0 {
			f.maxRPS = n
		}
	}
}

// WithMaxAge rejects ticks whose event time is older than d.
func WithMaxAge(d time.Duration) FilterOption {
	return func(f *TickFilter) { f.maxAge = d }
}

func WithFilterClock(now func() time.Time) FilterOption {
	return func(f *TickFilter) { f.now = now }
}

func NewTickFilter(metrics domrepo.Metrics, opts ...FilterOption) *TickFilter {
	f := &TickFilter{
		metrics:  metrics,
		maxRPS:   5,
		maxAge:   time.Minute,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Accept reports whether t should reach the book.
func (f *TickFilter) Accept(t models.Tick) bool {
	if err := validateTick(t); err != nil {
		f.metrics.RecordError("tick_invalid")
		return false
	}
	now := f.now()
	if f.maxAge > 0 && !t.Time.IsZero() && now.Sub(t.Time) > f.maxAge {
		f.metrics.RecordError("tick_stale")
		return false
	}
	if !f.allow(t.Symbol, now) {
		f.metrics.RecordError("tick_throttle")
		return false
	}
	return true
}

func validateTick(t models.Tick) error {
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.Price <= 0 {
		return fmt.Errorf("non-positive price")
	}
	if t.Volume24h < 0 {
		return fmt.Errorf("negative volume")
	}
	return nil
}

func (f *TickFilter) allow(symbol string, now time.Time) bool {
	if f.maxRPS <= 0 {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	last, ok := f.lastSeen[symbol]
	if ok && now.Sub(last) < time.Second/time.Duration(f.maxRPS) {
		return false
	}
	f.lastSeen[symbol] = now
	return true
}
