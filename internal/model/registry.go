package model

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/book-expert/logger"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/hawkaii/fastspeech/internal/core"
)

// Materializer makes a key's model pair available on local storage.
type Materializer interface {
	EnsureLocal(ctx context.Context, key core.ModelKey) (modelDir, vocoderDir string, err error)
}

// entry is one cached model pair. The handle outlives table membership:
// eviction removes reachability through the registry, never the handle a
// running request already holds.
type entry struct {
	handle *core.ModelHandle
	// lastUsed is a unix-nano timestamp, updated atomically because reads
	// refresh it concurrently.
	lastUsed atomic.Int64
}

func (e *entry) touch() {
	e.lastUsed.Store(time.Now().UnixNano())
}

func (e *entry) lastUsedTime() time.Time {
	return time.Unix(0, e.lastUsed.Load())
}

// table is the concurrent-safe handle table behind the registry. Both
// implementations refresh recency on get.
type table interface {
	get(key core.ModelKey) (*entry, bool)
	add(key core.ModelKey, ent *entry)
	remove(key core.ModelKey) bool
	purge()
	len() int
}

// Registry is the model cache. Lookups are non-blocking; a miss funnels all
// concurrent callers for the same key through one materialize-and-load
// execution, after which every caller shares the same immutable handle.
// Failures are returned to all waiters and never cached, so the next request
// retries from scratch.
type Registry struct {
	store  Materializer
	loader core.ModelLoader
	flight singleflight.Group
	table  table
	log    *logger.Logger
}

// NewRegistry creates a registry. maxModels zero keeps the table unbounded;
// a positive value bounds it with least-recently-used eviction.
func NewRegistry(
	store Materializer,
	loader core.ModelLoader,
	maxModels int,
	log *logger.Logger,
) (*Registry, error) {
	registry := &Registry{
		store:  store,
		loader: loader,
		flight: singleflight.Group{},
		table:  nil,
		log:    log,
	}

	if maxModels > 0 {
		cache, err := lru.NewWithEvict(maxModels,
			func(key core.ModelKey, ent *entry) {
				log.Info("Evicted model %s (%d bytes, last used %s)",
					key, ent.handle.SizeBytes,
					ent.lastUsedTime().Format(time.RFC3339))
			})
		if err != nil {
			return nil, fmt.Errorf("failed to create LRU table: %w", err)
		}

		registry.table = &lruTable{cache: cache}
	} else {
		registry.table = newMapTable()
	}

	return registry, nil
}

// Get returns the cached handle for a key without triggering materialization.
func (r *Registry) Get(key core.ModelKey) (*core.ModelHandle, bool) {
	ent, ok := r.table.get(key)
	if !ok {
		return nil, false
	}

	return ent.handle, true
}

// Acquire returns the handle for a key, materializing and loading it on a
// miss. For any one key at most one fetch-and-load sequence runs system-wide;
// concurrent callers wait for it and share its outcome. A waiter whose own
// context ends stops waiting without disturbing the in-flight execution, and
// if the executing call is cancelled mid-load every waiter receives the
// failure and the key is immediately retryable.
func (r *Registry) Acquire(ctx context.Context, key core.ModelKey) (*core.ModelHandle, error) {
	if handle, ok := r.Get(key); ok {
		return handle, nil
	}

	resultCh := r.flight.DoChan(key.String(), func() (any, error) {
		return r.materialize(ctx, key)
	})

	select {
	case result := <-resultCh:
		if result.Err != nil {
			return nil, result.Err
		}

		handle, ok := result.Val.(*core.ModelHandle)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected single-flight result", core.ErrModelLoad)
		}

		return handle, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquiring model %s: %w", key, ctx.Err())
	}
}

func (r *Registry) materialize(ctx context.Context, key core.ModelKey) (*core.ModelHandle, error) {
	// A racing caller may have published the handle between our miss and
	// winning the flight.
	if handle, ok := r.Get(key); ok {
		return handle, nil
	}

	start := time.Now()

	modelDir, vocoderDir, err := r.store.EnsureLocal(ctx, key)
	if err != nil {
		return nil, err
	}

	handle, err := r.loader.Load(ctx, key, modelDir, vocoderDir)
	if err != nil {
		return nil, err
	}

	ent := &entry{handle: handle}
	ent.touch()
	r.table.add(key, ent)
	r.log.Info("Materialized model %s in %s (%d bytes)",
		key, time.Since(start).Round(time.Millisecond), handle.SizeBytes)

	return handle, nil
}

// Evict removes a key from the table. Handles already held by in-flight
// requests remain valid until those requests complete.
func (r *Registry) Evict(key core.ModelKey) bool {
	return r.table.remove(key)
}

// Purge drops every cached handle. Called at shutdown after the last request
// completes; handles still held elsewhere stay valid until released.
func (r *Registry) Purge() {
	r.table.purge()
}

// Len reports the number of loaded model pairs.
func (r *Registry) Len() int {
	return r.table.len()
}

// Preload materializes each key eagerly, reporting per-key outcomes. Called
// before the service accepts traffic so cold-start latency is paid once.
func (r *Registry) Preload(ctx context.Context, keys []core.ModelKey) map[core.ModelKey]error {
	results := make(map[core.ModelKey]error, len(keys))

	for _, key := range keys {
		_, err := r.Acquire(ctx, key)
		results[key] = err

		if err != nil {
			r.log.Error("Failed to preload %s: %v", key, err)
		}
	}

	return results
}

// mapTable is the unbounded table.
type mapTable struct {
	mu      sync.Mutex
	entries map[core.ModelKey]*entry
}

func newMapTable() *mapTable {
	return &mapTable{
		mu:      sync.Mutex{},
		entries: make(map[core.ModelKey]*entry),
	}
}

func (t *mapTable) get(key core.ModelKey) (*entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ent, ok := t.entries[key]
	if ok {
		ent.touch()
	}

	return ent, ok
}

func (t *mapTable) add(key core.ModelKey, ent *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[key] = ent
}

func (t *mapTable) remove(key core.ModelKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.entries[key]
	delete(t.entries, key)

	return ok
}

func (t *mapTable) purge() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make(map[core.ModelKey]*entry)
}

func (t *mapTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// lruTable bounds the table with least-recently-used eviction.
type lruTable struct {
	cache *lru.Cache[core.ModelKey, *entry]
}

func (t *lruTable) get(key core.ModelKey) (*entry, bool) {
	ent, ok := t.cache.Get(key)
	if ok {
		ent.touch()
	}

	return ent, ok
}

func (t *lruTable) add(key core.ModelKey, ent *entry) {
	t.cache.Add(key, ent)
}

func (t *lruTable) remove(key core.ModelKey) bool {
	return t.cache.Remove(key)
}

func (t *lruTable) purge() {
	t.cache.Purge()
}

func (t *lruTable) len() int {
	return t.cache.Len()
}
