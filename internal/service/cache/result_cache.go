package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces the value for a key on a cache miss.
type ComputeFunc func(ctx context.Context) (interface{}, error)

type resultEntry struct {
	key string
	v   interface{}
	exp time.Time
	el  *list.Element
}

// ResultCache memoizes analysis outputs keyed by their full parameter set.
// Bounded capacity with LRU eviction; entries expire after a TTL and are
// recomputed on next access. Concurrent requests for the same key share a
// single in-flight computation.
type ResultCache struct {
	mu       sync.Mutex
	entries  map[string]*resultEntry
	order    *list.List // front = most recently used
	capacity int
	ttl      time.Duration
	group    singleflight.Group
	now      func() time.Time
}

// Option configures the ResultCache.
type Option func(*ResultCache)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) { c.now = now }
}

// NewResultCache creates a cache with the given capacity and entry TTL.
// A ttl of zero disables expiry.
func NewResultCache(capacity int, ttl time.Duration, opts ...Option) *ResultCache {
	if capacity <= 0 {
		capacity = 128
	}
	c := &ResultCache{
		entries:  make(map[string]*resultEntry, capacity),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the cached value for key, or runs fn exactly once
// across all concurrent callers and caches the result. Errors are not
// cached; the next caller retries.
func (c *ResultCache) GetOrCompute(ctx context.Context, key string, fn ComputeFunc) (interface{}, bool, error) {
	if v, ok := c.lookup(key); ok {
		return v, true, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// another waiter may have filled it while we queued
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, v)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v, false, nil
}

// Invalidate drops a single key.
func (c *ResultCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.order.Remove(e.el)
		delete(c.entries, key)
	}
}

// Len returns the number of live entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResultCache) lookup(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && c.now().After(e.exp) {
		c.order.Remove(e.el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(e.el)
	return e.v, true
}

func (c *ResultCache) store(key string, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if c.ttl > 0 {
		exp = c.now().Add(c.ttl)
	}
	if e, ok := c.entries[key]; ok {
		e.v = v
		e.exp = exp
		c.order.MoveToFront(e.el)
		return
	}
	for len(c.entries) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		old := oldest.Value.(*resultEntry)
		c.order.Remove(oldest)
		delete(c.entries, old.key)
	}
	e := &resultEntry{key: key, v: v, exp: exp}
	e.el = c.order.PushFront(e)
	c.entries[key] = e
}

// Key builds a cache key from its parts; parts order is significant.
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}
