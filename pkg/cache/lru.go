package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// lruItem is the internal structure stored in the linked list.
type lruItem[K comparable, V any] struct {
	key   K
	value V
}

// LRUResourceCache is a generic, thread-safe, in-memory ResourceCache with a
// fixed size and a Least Recently Used eviction policy. Evicted values are
// released through the configured release hook, which makes it suitable for
// caching revocable handles whose number must stay bounded.
type LRUResourceCache[K comparable, V any] struct {
	maxSize int
	release ReleaseFunc[V]

	mu    sync.Mutex
	ll    *list.List          // Tracks the order of items (recency).
	index map[K]*list.Element // Fast key lookups.
}

// NewLRUResourceCache creates a new size-limited, in-memory LRU resource cache.
// - maxSize: The maximum number of items to store in the cache. Must be > 0.
// - release: An optional hook invoked for every value that leaves the cache.
func NewLRUResourceCache[K comparable, V any](maxSize int, release ReleaseFunc[V]) (*LRUResourceCache[K, V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	return &LRUResourceCache[K, V]{
		maxSize: maxSize,
		release: release,
		ll:      list.New(),
		index:   make(map[K]*list.Element),
	}, nil
}

// Get retrieves an item. A hit moves the item to the front of the recency list.
func (c *LRUResourceCache[K, V]) Get(_ context.Context, key K) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[key]; ok {
		c.ll.MoveToFront(elem)
		return elem.Value.(*lruItem[K, V]).value, nil
	}
	var zero V
	return zero, fmt.Errorf("key '%v': %w", key, ErrNotFound)
}

// Put stores a value at the front of the recency list, overwriting any
// existing entry for the key and evicting the least recently used item if the
// cache is over capacity.
func (c *LRUResourceCache[K, V]) Put(_ context.Context, key K, value V) error {
	var released []V

	c.mu.Lock()
	if elem, ok := c.index[key]; ok {
		item := elem.Value.(*lruItem[K, V])
		released = append(released, item.value)
		item.value = value
		c.ll.MoveToFront(elem)
	} else {
		elem := c.ll.PushFront(&lruItem[K, V]{key: key, value: value})
		c.index[key] = elem
		if c.ll.Len() > c.maxSize {
			if evicted, ok := c.evict(); ok {
				released = append(released, evicted)
			}
		}
	}
	c.mu.Unlock()

	if c.release != nil {
		for _, v := range released {
			c.release(v)
		}
	}
	return nil
}

// Delete removes a single entry and releases its value.
func (c *LRUResourceCache[K, V]) Delete(_ context.Context, key K) error {
	c.mu.Lock()
	elem, ok := c.index[key]
	var value V
	if ok {
		value = c.ll.Remove(elem).(*lruItem[K, V]).value
		delete(c.index, key)
	}
	c.mu.Unlock()

	if ok && c.release != nil {
		c.release(value)
	}
	return nil
}

// Clear releases every cached value and empties the cache.
func (c *LRUResourceCache[K, V]) Clear(_ context.Context) error {
	c.mu.Lock()
	var released []V
	for elem := c.ll.Front(); elem != nil; elem = elem.Next() {
		released = append(released, elem.Value.(*lruItem[K, V]).value)
	}
	c.ll.Init()
	c.index = make(map[K]*list.Element)
	c.mu.Unlock()

	if c.release != nil {
		for _, v := range released {
			c.release(v)
		}
	}
	return nil
}

// Len reports the number of cached entries.
func (c *LRUResourceCache[K, V]) Len(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len(), nil
}

// evict removes the least recently used item from the cache and returns its
// value. This method is unexported and must be called within a locked mutex.
func (c *LRUResourceCache[K, V]) evict() (V, bool) {
	elem := c.ll.Back()
	if elem == nil {
		var zero V
		return zero, false
	}
	item := c.ll.Remove(elem).(*lruItem[K, V])
	delete(c.index, item.key)
	return item.value, true
}

// Close is a no-op for the in-memory cache but satisfies the ResourceCache interface.
func (c *LRUResourceCache[K, V]) Close() error {
	return nil
}
