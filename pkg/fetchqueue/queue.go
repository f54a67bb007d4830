// Package fetchqueue runs fetch-like operations with bounded parallelism,
// deduplicating concurrent requests for the same key and caching results.
package fetchqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/illmade-knight/go-resilience/pkg/cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Executor produces the value for a single fetch. The queue treats any error
// opaquely as "task failed".
type Executor[V any] func(ctx context.Context) (V, error)

// Validator probes whether a cached value is still usable before it is
// returned from cache. Returning false evicts the entry and triggers a
// re-fetch. It exists for values that are handles to externally revocable
// resources, where mere presence in the cache does not prove validity.
type Validator[K comparable, V any] func(ctx context.Context, key K, value V) bool

// Config holds configuration for a Queue.
type Config struct {
	// MaxConcurrent is the ceiling on concurrently running tasks.
	MaxConcurrent int
	// DelayBetweenTasks paces admissions once more than one task is active,
	// to avoid bursting the remote endpoint. Zero disables pacing.
	DelayBetweenTasks time.Duration
}

type task[K comparable, V any] struct {
	key      K
	priority int
	executor Executor[V]
	future   *Future[V]
	ctx      context.Context
}

// Queue is an admission-controlled, deduplicating, caching task runner.
// At most Config.MaxConcurrent tasks run concurrently; a given key executes
// at most once while its result is pending or cached; admission follows
// priority, then arrival order.
type Queue[K comparable, V any] struct {
	cfg      Config
	store    cache.ResourceCache[K, V]
	validate Validator[K, V]
	logger   zerolog.Logger
	pacer    *rate.Limiter

	mu      sync.Mutex
	backlog []*task[K, V]
	pending map[K]*Future[V]
	active  int
}

// New creates a new Queue. The store must not be nil; validate may be nil if
// cached values never go stale.
func New[K comparable, V any](
	cfg Config,
	store cache.ResourceCache[K, V],
	validate Validator[K, V],
	logger zerolog.Logger,
) (*Queue[K, V], error) {
	if store == nil {
		return nil, fmt.Errorf("resource cache cannot be nil")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3 // Default to a conservative ceiling.
	}

	q := &Queue[K, V]{
		cfg:      cfg,
		store:    store,
		validate: validate,
		logger:   logger.With().Str("component", "FetchQueue").Logger(),
		pending:  make(map[K]*Future[V]),
	}
	if cfg.DelayBetweenTasks > 0 {
		q.pacer = rate.NewLimiter(rate.Every(cfg.DelayBetweenTasks), 1)
		// Drain the initial token so the first paced admission also waits.
		q.pacer.Allow()
	}
	return q, nil
}

// Enqueue requests the resource identified by key. Higher priority runs
// sooner; ties run in arrival order. The returned Future resolves with the
// cached value, the shared in-flight result, or the outcome of a fresh
// execution. The context covers the whole task: cache probe, pacing wait and
// executor run.
func (q *Queue[K, V]) Enqueue(ctx context.Context, key K, executor Executor[V], priority int) *Future[V] {
	if value, ok := q.cachedValue(ctx, key); ok {
		return resolvedFuture(value)
	}

	q.mu.Lock()
	if f, exists := q.pending[key]; exists {
		q.mu.Unlock()
		q.logger.Debug().Interface("key", key).Msg("Joining in-flight fetch for key.")
		return f
	}

	f := newFuture[V]()
	q.pending[key] = f
	q.backlog = append(q.backlog, &task[K, V]{
		key:      key,
		priority: priority,
		executor: executor,
		future:   f,
		ctx:      ctx,
	})
	// Stable sort keeps FIFO fairness for equal priorities.
	sort.SliceStable(q.backlog, func(i, j int) bool {
		return q.backlog[i].priority > q.backlog[j].priority
	})
	q.mu.Unlock()

	q.admit()
	return f
}

// ClearCache releases every cached resource handle and empties the cache.
// In-flight tasks are not cancelled; their results repopulate the cache on
// completion.
func (q *Queue[K, V]) ClearCache(ctx context.Context) error {
	return q.store.Clear(ctx)
}

// BacklogLen reports the number of tasks waiting for admission.
func (q *Queue[K, V]) BacklogLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// ActiveCount reports the number of currently running tasks.
func (q *Queue[K, V]) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// CacheLen reports the number of cached results.
func (q *Queue[K, V]) CacheLen(ctx context.Context) (int, error) {
	return q.store.Len(ctx)
}

// Close closes the underlying resource cache. It does not wait for in-flight
// tasks.
func (q *Queue[K, V]) Close() error {
	return q.store.Close()
}

// cachedValue probes the cache and validates the entry. A stale entry is
// evicted and reported as a miss; a cache backend failure is logged and
// likewise treated as a miss rather than surfaced to the caller.
func (q *Queue[K, V]) cachedValue(ctx context.Context, key K) (V, bool) {
	var zero V
	value, err := q.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			q.logger.Warn().Err(err).Interface("key", key).Msg("Cache read failed, treating as miss.")
		}
		return zero, false
	}
	if q.validate != nil && !q.validate(ctx, key, value) {
		q.logger.Debug().Interface("key", key).Msg("Cached value is stale, evicting and re-fetching.")
		if delErr := q.store.Delete(ctx, key); delErr != nil {
			q.logger.Warn().Err(delErr).Interface("key", key).Msg("Failed to evict stale cache entry.")
		}
		return zero, false
	}
	q.logger.Debug().Interface("key", key).Msg("Cache hit.")
	return value, true
}

// admit starts backlog tasks until the concurrency ceiling is reached. It is
// invoked after every enqueue and after every completion, so admission is
// edge-triggered rather than polled.
func (q *Queue[K, V]) admit() {
	for {
		q.mu.Lock()
		if q.active >= q.cfg.MaxConcurrent || len(q.backlog) == 0 {
			q.mu.Unlock()
			return
		}
		next := q.backlog[0]
		q.backlog = q.backlog[1:]
		q.active++
		paced := q.active > 1 && q.pacer != nil
		q.mu.Unlock()

		go q.run(next, paced)
	}
}

// run executes a single admitted task and resolves its future.
func (q *Queue[K, V]) run(t *task[K, V], paced bool) {
	var value V
	var err error

	if paced {
		if waitErr := q.pacer.Wait(t.ctx); waitErr != nil {
			err = fmt.Errorf("pacing wait: %w", waitErr)
		}
	}
	if err == nil {
		value, err = t.executor(t.ctx)
	}

	// The result must be cached before the pending record is removed, so any
	// concurrent Enqueue observes the key as either pending or cached and
	// never admits a duplicate execution.
	if err == nil {
		if putErr := q.store.Put(t.ctx, t.key, value); putErr != nil {
			q.logger.Warn().Err(putErr).Interface("key", t.key).Msg("Failed to cache fetch result.")
		}
	}

	q.mu.Lock()
	q.active--
	delete(q.pending, t.key)
	q.mu.Unlock()

	if err != nil {
		q.logger.Warn().Err(err).Interface("key", t.key).Msg("Fetch task failed.")
		t.future.reject(err)
	} else {
		t.future.resolve(value)
	}

	q.admit()
}
