package cache

import (
	"sync"
	"time"
)

type byteEntry struct {
	b   []byte
	exp time.Time
}

// TTLCache is an in-memory BytesCache for API response caching when
// redis is not configured.
type TTLCache struct {
	mu sync.RWMutex
	m  map[string]byteEntry
}

func NewTTLCache() *TTLCache {
	return &TTLCache{m: make(map[string]byteEntry)}
}

func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.b, true, nil
}

func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.m[key] = byteEntry{b: value, exp: exp}
	c.mu.Unlock()
	return nil
}
