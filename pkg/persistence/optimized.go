package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/o-tero/fetchkit/pkg/memcache"
)

const (
	defaultWriteDelay       = 100 * time.Millisecond
	defaultMaxPendingWrites = 50
)

func recordSizeEstimator(data interface{}) int {
	rec, ok := data.(Record)
	if !ok {
		return 0
	}
	return rec.Size
}

// OptimizedConfig configures an OptimizedBackend.
type OptimizedConfig struct {
	// FrontCacheSize bounds the LRU front-cache (0 disables the bound).
	FrontCacheSize int
	// WriteDelay is how long a pending write/delete waits before an
	// automatic flush. 0 defaults to 100ms.
	WriteDelay time.Duration
	// MaxPendingWrites forces an immediate flush once this many
	// operations are pending. 0 defaults to 50.
	MaxPendingWrites int
	// PreloadKeys are read from the backend and seeded into the front
	// cache at construction time (up to len(PreloadKeys) entries).
	PreloadKeys []string
}

// OptimizedBackend is the C7 wrapper: an LRU front-cache plus write
// batching in front of any Backend. Reads consult the front-cache, then
// pending writes, then the pending-delete set, then fall through to the
// wrapped backend. Writes and deletes are buffered and flushed together
// after WriteDelay or once MaxPendingWrites is reached.
type OptimizedBackend struct {
	inner Backend

	front *memcache.Cache[Record]

	writeDelay       time.Duration
	maxPendingWrites int

	mu            sync.Mutex
	pendingSet    map[string]Record
	pendingDelete map[string]struct{}
	flushTimer    *time.Timer
	disposed      bool
}

// NewOptimizedBackend wraps inner per cfg, optionally preloading the
// front-cache from inner.
func NewOptimizedBackend(ctx context.Context, inner Backend, cfg OptimizedConfig) (*OptimizedBackend, error) {
	writeDelay := cfg.WriteDelay
	if writeDelay <= 0 {
		writeDelay = defaultWriteDelay
	}
	maxPending := cfg.MaxPendingWrites
	if maxPending <= 0 {
		maxPending = defaultMaxPendingWrites
	}

	front := memcache.New[Record](memcache.Config{
		MaxEntries:    cfg.FrontCacheSize,
		Policy:        memcache.PolicyLRU,
		SizeEstimator: recordSizeEstimator,
	})

	b := &OptimizedBackend{
		inner:            inner,
		front:            front,
		writeDelay:       writeDelay,
		maxPendingWrites: maxPending,
		pendingSet:       make(map[string]Record),
		pendingDelete:    make(map[string]struct{}),
	}

	for _, key := range cfg.PreloadKeys {
		if rec, ok, err := inner.Get(ctx, key); err == nil && ok {
			front.Set(key, rec, 0, 0)
		}
	}

	return b, nil
}

func (b *OptimizedBackend) Set(ctx context.Context, key string, rec Record) error {
	b.mu.Lock()
	delete(b.pendingDelete, key)
	b.pendingSet[key] = rec
	pending := len(b.pendingSet) + len(b.pendingDelete)
	b.mu.Unlock()

	b.front.Set(key, rec, 0, 0)

	if pending >= b.maxPendingWrites {
		return b.Flush(ctx)
	}
	b.scheduleFlush()
	return nil
}

func (b *OptimizedBackend) Get(ctx context.Context, key string) (Record, bool, error) {
	if rec, ok := b.front.Get(key); ok {
		return rec, true, nil
	}

	b.mu.Lock()
	if rec, ok := b.pendingSet[key]; ok {
		b.mu.Unlock()
		return rec, true, nil
	}
	if _, ok := b.pendingDelete[key]; ok {
		b.mu.Unlock()
		return Record{}, false, nil
	}
	b.mu.Unlock()

	rec, ok, err := b.inner.Get(ctx, key)
	if err == nil && ok {
		b.front.Set(key, rec, 0, 0)
	}
	return rec, ok, err
}

func (b *OptimizedBackend) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := b.Get(ctx, key)
	return ok, err
}

func (b *OptimizedBackend) Delete(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	_, hadPendingSet := b.pendingSet[key]
	delete(b.pendingSet, key)
	b.pendingDelete[key] = struct{}{}
	pending := len(b.pendingSet) + len(b.pendingDelete)
	b.mu.Unlock()

	b.front.Delete(key)

	existed := hadPendingSet || b.front.Has(key)
	if !existed {
		if _, ok, _ := b.inner.Get(ctx, key); ok {
			existed = true
		}
	}

	if pending >= b.maxPendingWrites {
		return existed, b.Flush(ctx)
	}
	b.scheduleFlush()
	return existed, nil
}

func (b *OptimizedBackend) Clear(ctx context.Context) error {
	b.mu.Lock()
	b.pendingSet = make(map[string]Record)
	b.pendingDelete = make(map[string]struct{})
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	b.mu.Unlock()

	b.front.Clear()
	return b.inner.Clear(ctx)
}

func (b *OptimizedBackend) Keys(ctx context.Context) ([]string, error) {
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}
	return b.inner.Keys(ctx)
}

// GetSize forces a flush before reporting, so pending writes are reflected
// in the wrapped backend's size accounting.
func (b *OptimizedBackend) GetSize(ctx context.Context) (int, error) {
	if err := b.Flush(ctx); err != nil {
		return 0, err
	}
	return b.inner.GetSize(ctx)
}

// Flush drains every pending write and delete against the wrapped backend
// concurrently.
func (b *OptimizedBackend) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	sets := b.pendingSet
	deletes := b.pendingDelete
	b.pendingSet = make(map[string]Record)
	b.pendingDelete = make(map[string]struct{})
	b.mu.Unlock()

	if len(sets) == 0 && len(deletes) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(sets)+len(deletes))

	for key, rec := range sets {
		wg.Add(1)
		go func(key string, rec Record) {
			defer wg.Done()
			if err := b.inner.Set(ctx, key, rec); err != nil {
				errs <- err
			}
		}(key, rec)
	}
	for key := range deletes {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			if _, err := b.inner.Delete(ctx, key); err != nil {
				errs <- err
			}
		}(key)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *OptimizedBackend) scheduleFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed || b.flushTimer != nil {
		return
	}
	b.flushTimer = time.AfterFunc(b.writeDelay, func() {
		_ = b.Flush(context.Background())
	})
}

func (b *OptimizedBackend) Close() error {
	_ = b.Flush(context.Background())
	b.mu.Lock()
	b.disposed = true
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	b.mu.Unlock()
	b.front.Dispose()
	return b.inner.Close()
}

var _ Backend = (*OptimizedBackend)(nil)
