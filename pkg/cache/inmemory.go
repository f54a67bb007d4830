package cache

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryResourceCache is a generic, thread-safe, in-memory implementation of
// ResourceCache. State lives and dies with the process, which matches the
// cache's role of holding per-session fetch results.
type InMemoryResourceCache[K comparable, V any] struct {
	release ReleaseFunc[V]

	mu   sync.RWMutex
	data map[K]V
}

// NewInMemoryResourceCache creates a new in-memory resource cache.
// The release hook is optional; when set it is invoked for every value that
// leaves the cache.
func NewInMemoryResourceCache[K comparable, V any](release ReleaseFunc[V]) *InMemoryResourceCache[K, V] {
	return &InMemoryResourceCache[K, V]{
		release: release,
		data:    make(map[K]V),
	}
}

// Get retrieves an item from the cache.
func (c *InMemoryResourceCache[K, V]) Get(_ context.Context, key K) (V, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.data[key]
	if !ok {
		var zero V
		return zero, fmt.Errorf("key '%v': %w", key, ErrNotFound)
	}
	return value, nil
}

// Put adds an item to the cache, overwriting any existing entry. The previous
// value, if any, is released.
func (c *InMemoryResourceCache[K, V]) Put(_ context.Context, key K, value V) error {
	c.mu.Lock()
	previous, existed := c.data[key]
	c.data[key] = value
	c.mu.Unlock()

	if existed && c.release != nil {
		c.release(previous)
	}
	return nil
}

// Delete removes a single entry and releases its value.
func (c *InMemoryResourceCache[K, V]) Delete(_ context.Context, key K) error {
	c.mu.Lock()
	value, existed := c.data[key]
	delete(c.data, key)
	c.mu.Unlock()

	if existed && c.release != nil {
		c.release(value)
	}
	return nil
}

// Clear releases every cached value and empties the cache.
func (c *InMemoryResourceCache[K, V]) Clear(_ context.Context) error {
	c.mu.Lock()
	old := c.data
	c.data = make(map[K]V)
	c.mu.Unlock()

	if c.release != nil {
		for _, value := range old {
			c.release(value)
		}
	}
	return nil
}

// Len reports the number of cached entries.
func (c *InMemoryResourceCache[K, V]) Len(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data), nil
}

// Close is a no-op for the in-memory cache but satisfies the ResourceCache interface.
func (c *InMemoryResourceCache[K, V]) Close() error {
	return nil
}
