package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	pkgcache "CryptoSignal/pkg/cache"
	applogger "CryptoSignal/pkg/logger"
)

// Kind is the dataset a cache entry holds.
type Kind string

const (
	KindPrice    Kind = "price"
	KindOHLCV    Kind = "ohlcv"
	KindAnalysis Kind = "analysis"
)

type Key struct {
	Symbol string
	Kind   Kind
}

func (k Key) String() string {
	return pkgcache.GenerateKeyWithParams("md", string(k.Kind), k.Symbol)
}

// Entry is a stored payload. It is valid iff now - StoredAt < TTL.
type Entry struct {
	Key      Key
	Payload  any
	StoredAt time.Time
	TTL      time.Duration
}

func (e Entry) ValidAt(now time.Time) bool {
	return now.Sub(e.StoredAt) < e.TTL
}

// Remote is an optional second level shared between replicas.
type Remote interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

// slot serialises access to one key. Readers never see a half-replaced entry
// because writers swap the whole pointer under the write lock.
type slot struct {
	mu    sync.RWMutex
	entry *Entry
}

// TTLCache is the market data cache. Entries are never evicted; staleness is
// checked on every read and stale entries stay until overwritten.
type TTLCache struct {
	mu    sync.Mutex // guards the slots map only
	slots map[Key]*slot

	now    func() time.Time
	remote Remote
	log    *applogger.Logger
}

type Option func(*TTLCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *TTLCache) { c.now = now }
}

// WithRemote mirrors writes to r and consults it on local misses.
func WithRemote(r Remote) Option {
	return func(c *TTLCache) { c.remote = r }
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *TTLCache) { c.log = l }
}

func NewTTLCache(opts ...Option) *TTLCache {
	c := &TTLCache{
		slots: make(map[Key]*slot),
		now:   time.Now,
		log:   applogger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TTLCache) slot(key Key) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		s = &slot{}
		c.slots[key] = s
	}
	return s
}

// Get returns the payload only if present and fresh.
func (c *TTLCache) Get(key Key) (any, bool) {
	e, ok := c.Peek(key)
	if !ok || !e.ValidAt(c.now()) {
		return nil, false
	}
	return e.Payload, true
}

// Peek returns the entry for key even when stale.
func (c *TTLCache) Peek(key Key) (Entry, bool) {
	s := c.slot(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.entry == nil {
		return Entry{}, false
	}
	return *s.entry, true
}

// Put replaces any existing entry for key.
func (c *TTLCache) Put(key Key, payload any, ttl time.Duration) {
	c.put(Entry{Key: key, Payload: payload, StoredAt: c.now(), TTL: ttl})
}

func (c *TTLCache) put(e Entry) {
	s := c.slot(e.Key)
	s.mu.Lock()
	s.entry = &e
	s.mu.Unlock()
}

// Len is the number of distinct keys ever stored.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.slots {
		s.mu.RLock()
		if s.entry != nil {
			n++
		}
		s.mu.RUnlock()
	}
	return n
}

type envelope[T any] struct {
	StoredAt time.Time     `json:"stored_at"`
	TTL      time.Duration `json:"ttl"`
	Payload  T             `json:"payload"`
}

// Lookup returns a fresh typed payload from the local cache, falling back to the
// remote level. A remote hit is copied locally with its original store time so
// freshness is not extended.
func Lookup[T any](ctx context.Context, c *TTLCache, key Key) (T, bool) {
	var zero T
	if v, ok := c.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, true
		}
		return zero, false
	}
	if c.remote == nil {
		return zero, false
	}

	var env envelope[T]
	if err := c.remote.Get(ctx, key.String(), &env); err != nil {
		if !errors.Is(err, pkgcache.ErrCacheMiss) {
			c.log.Warn("remote cache get failed", applogger.String("key", key.String()), applogger.Error(err))
		}
		return zero, false
	}
	e := Entry{Key: key, Payload: env.Payload, StoredAt: env.StoredAt, TTL: env.TTL}
	if !e.ValidAt(c.now()) {
		return zero, false
	}
	c.put(e)
	return env.Payload, true
}

// Store puts v locally and mirrors it to the remote level.
func Store[T any](ctx context.Context, c *TTLCache, key Key, v T, ttl time.Duration) {
	now := c.now()
	c.put(Entry{Key: key, Payload: v, StoredAt: now, TTL: ttl})
	if c.remote == nil {
		return
	}
	env := envelope[T]{StoredAt: now, TTL: ttl, Payload: v}
	if err := c.remote.Set(ctx, key.String(), env, ttl); err != nil {
		c.log.Warn("remote cache set failed", applogger.String("key", key.String()), applogger.Error(err))
	}
}
