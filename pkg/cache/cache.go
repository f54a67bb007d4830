// Package cache provides pluggable result caches for resource fetches.
package cache

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get when a key has no cached value. Callers
// should test for it with errors.Is, as implementations wrap it with key
// context.
var ErrNotFound = errors.New("key not found in cache")

// ReleaseFunc releases an externally held resource associated with a cached
// value, for example revoking a temporary object URL or closing a handle.
// It is invoked whenever an entry leaves the cache: Delete, Clear or eviction.
type ReleaseFunc[V any] func(value V)

// ResourceCache stores fetch results keyed by resource identity. One entry
// exists per key; Put overwrites. Implementations must be safe for
// concurrent use.
type ResourceCache[K comparable, V any] interface {
	// Get retrieves a cached value. A miss is reported via ErrNotFound.
	Get(ctx context.Context, key K) (V, error)
	// Put stores a value, overwriting any existing entry for the key.
	Put(ctx context.Context, key K, value V) error
	// Delete removes a single entry, releasing its resource if a release
	// hook is configured. Deleting an absent key is not an error.
	Delete(ctx context.Context, key K) error
	// Clear releases every cached resource and empties the cache.
	Clear(ctx context.Context) error
	// Len reports the number of cached entries.
	Len(ctx context.Context) (int, error)
	// Closer is included for implementations that manage network connections.
	io.Closer
}
