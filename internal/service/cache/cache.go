package cache

import "time"

// BytesCache is a minimal cache API storing raw bytes with TTL, used for
// serialized API responses. Backed by memory (TTLCache) or redis.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
