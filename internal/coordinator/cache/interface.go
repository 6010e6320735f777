package cache

import (
	"context"
	"time"
)

// Loader produces a value on a cache miss
type Loader[V any] func(ctx context.Context) (V, error)

// Interface defines the contract for TTL caching.
// Implementations must be safe for concurrent use.
type Interface[V any] interface {
	Store(key string, value V) error
	Get(key string) (V, error)
	GetOrLoad(ctx context.Context, key string, load Loader[V]) (V, error)
	Delete(key string)
	Size() int
	Clear()
	Close()
}

// Entry is a cached value with expiration metadata
type Entry[V any] struct {
	Value     V
	CachedAt  time.Time
	ExpiresAt time.Time
}
