// Package cache provides the in-process TTL cache backing the dashboard
// query layer. Values are computed on miss and shared until they expire;
// a failed compute is never cached.
package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrNilCompute is returned when GetOrCompute is called without a
// compute function.
var ErrNilCompute = errors.New("cache: nil compute func")

const defaultSweepInterval = time.Minute

type entry struct {
	value     any
	expiresAt time.Time
}

// Stats reports cumulative cache effectiveness counters.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Cache is a concurrency-safe TTL cache keyed by string.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	hits    uint64
	misses  uint64

	clock      func() time.Time
	sweepEvery time.Duration
	done       chan struct{}
	closeOnce  sync.Once
	sweepWG    sync.WaitGroup
}

// Option configures the cache.
type Option func(*Cache)

// WithClock overrides the clock.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithSweepInterval sets how often expired entries are reclaimed. Zero
// disables the janitor; expired entries are then dropped lazily on read.
func WithSweepInterval(every time.Duration) Option {
	return func(c *Cache) {
		c.sweepEvery = every
	}
}

// New constructs a cache and starts its janitor.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]entry),
		clock:      func() time.Time { return time.Now().UTC() },
		sweepEvery: defaultSweepInterval,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sweepEvery > 0 {
		c.sweepWG.Add(1)
		go c.sweepLoop()
	}
	return c
}

// Get returns the cached value when present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	now := c.clock()
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if now.After(e.expiresAt) {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && now.After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores a value under key for ttl. Non-positive ttl is a no-op.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	expiresAt := c.clock().Add(ttl)
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: expiresAt}
	c.mu.Unlock()
}

// GetOrCompute returns the cached value for key, computing and storing
// it on a miss. The compute runs outside the cache lock, so concurrent
// misses for the same key may each compute; the last writer wins. A
// compute error is returned to the caller and nothing is cached.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (any, error)) (any, error) {
	if compute == nil {
		return nil, ErrNilCompute
	}
	if value, ok := c.Get(key); ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return value, nil
	}
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()

	value, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(key, value, ttl)
	return value, nil
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidatePrefix removes every key with the given prefix. Dashboard
// keys embed the tenant id, so a tenant's whole view can be dropped at
// once after a bulk backfill.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}

// Close stops the janitor.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.sweepWG.Wait()
}

func (c *Cache) sweepLoop() {
	defer c.sweepWG.Done()
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepExpired()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) sweepExpired() {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}
