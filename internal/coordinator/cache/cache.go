package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrEmptyKey is returned when a key is empty
	ErrEmptyKey = errors.New("cache key cannot be empty")
	// ErrMiss is returned for absent or expired keys
	ErrMiss = errors.New("cache miss")
)

// TTLCache caches values for a fixed time-to-live. Concurrent misses on the
// same key share one load. A TTL of zero disables storage: every GetOrLoad
// loads, though concurrent callers are still collapsed.
type TTLCache[V any] struct {
	entries map[string]*Entry[V]
	mu      sync.RWMutex
	ttl     time.Duration
	group   singleflight.Group
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

var _ Interface[int] = (*TTLCache[int])(nil)

// New creates a cache with the given TTL. When both ttl and cleanupInterval
// are positive a background goroutine sweeps expired entries until Close.
func New[V any](ttl, cleanupInterval time.Duration) *TTLCache[V] {
	c := &TTLCache[V]{
		entries: make(map[string]*Entry[V]),
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if ttl > 0 && cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

// TTL returns the configured time-to-live
func (c *TTLCache[V]) TTL() time.Duration {
	return c.ttl
}

// Store caches value under key
func (c *TTLCache[V]) Store(key string, value V) error {
	if key == "" {
		return ErrEmptyKey
	}
	if c.ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = &Entry[V]{
		Value:     value,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	return nil
}

// Get returns the cached value, or ErrMiss if absent or expired
func (c *TTLCache[V]) Get(key string) (V, error) {
	var zero V
	if key == "" {
		return zero, ErrEmptyKey
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || c.now().After(entry.ExpiresAt) {
		return zero, fmt.Errorf("%w: %s", ErrMiss, key)
	}
	return entry.Value, nil
}

// GetOrLoad returns the cached value or calls load once for all concurrent
// callers of the same key. Load errors are not cached.
func (c *TTLCache[V]) GetOrLoad(ctx context.Context, key string, load Loader[V]) (V, error) {
	if v, err := c.Get(key); err == nil {
		return v, nil
	} else if errors.Is(err, ErrEmptyKey) {
		return v, err
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		_ = c.Store(key, v)
		return v, nil
	})
	v, _ := res.(V)
	return v, err
}

// Delete removes a cached value
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Size returns the current number of cached entries, expired ones included
func (c *TTLCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all cached values
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry[V])
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (c *TTLCache[V]) Close() {
	c.once.Do(func() { close(c.done) })
}

// cleanupLoop periodically removes expired entries
func (c *TTLCache[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.done:
			return
		}
	}
}

// cleanup removes expired entries
func (c *TTLCache[V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}
