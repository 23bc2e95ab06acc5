// Package cache provides the small response cache used by the stats
// endpoints: an in-process TTL cache by default, Redis when a REDIS_URL
// is configured so instances share entries.
package cache

import (
	"context"
	"time"
)

// Error is a sentinel error type for cache operations.
type Error string

func (e Error) Error() string {
	return string(e)
}

// ErrCacheMiss indicates the key was not found or has expired.
const ErrCacheMiss Error = "cache miss"

// Cache stores opaque byte values under string keys. Implementations
// must be safe for concurrent use; a broken cache backend degrades to
// misses, it never fails requests.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
