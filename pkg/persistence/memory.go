package persistence

import (
	"context"
	"sync"

	"github.com/o-tero/fetchkit/pkg/clock"
	"github.com/o-tero/fetchkit/pkg/fkerrors"
)

// MemoryBackend is the in-memory fallback variant (spec.md §4.4): no
// prefix, no disk, enforces the same maxSize quota as the namespaced
// string-store backends.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[string]Record
	maxSize int
	clock   clock.Clock
}

// NewMemoryBackend constructs a MemoryBackend. maxSize of 0 disables the
// quota.
func NewMemoryBackend(maxSize int, c clock.Clock) *MemoryBackend {
	if c == nil {
		c = clock.System
	}
	return &MemoryBackend{records: make(map[string]Record), maxSize: maxSize, clock: c}
}

func (b *MemoryBackend) Set(ctx context.Context, key string, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setLocked(key, rec, false)
}

func (b *MemoryBackend) setLocked(key string, rec Record, retried bool) error {
	if b.maxSize > 0 && b.totalSizeLocked()-b.existingSizeLocked(key)+rec.Size > b.maxSize {
		if retried {
			return fkerrors.ErrQuotaExceeded
		}
		b.cleanupExpiredLocked()
		if b.maxSize > 0 && b.totalSizeLocked()-b.existingSizeLocked(key)+rec.Size > b.maxSize {
			return fkerrors.ErrQuotaExceeded
		}
	}
	b.records[key] = rec
	return nil
}

func (b *MemoryBackend) existingSizeLocked(key string) int {
	if r, ok := b.records[key]; ok {
		return r.Size
	}
	return 0
}

func (b *MemoryBackend) totalSizeLocked() int {
	total := 0
	for _, r := range b.records {
		total += r.Size
	}
	return total
}

func (b *MemoryBackend) cleanupExpiredLocked() {
	now := b.clock.Now()
	for k, r := range b.records {
		if r.IsExpired(now) {
			delete(b.records, k)
		}
	}
}

func (b *MemoryBackend) Get(ctx context.Context, key string) (Record, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.records[key]
	if !ok {
		return Record{}, false, nil
	}
	if r.IsExpired(b.clock.Now()) {
		delete(b.records, key)
		return Record{}, false, nil
	}
	return r, true, nil
}

func (b *MemoryBackend) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := b.Get(ctx, key)
	return ok, err
}

func (b *MemoryBackend) Delete(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.records[key]
	delete(b.records, key)
	return ok, nil
}

func (b *MemoryBackend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = make(map[string]Record)
	return nil
}

func (b *MemoryBackend) Keys(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.records))
	for k := range b.records {
		keys = append(keys, k)
	}
	return keys, nil
}

func (b *MemoryBackend) GetSize(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalSizeLocked(), nil
}

func (b *MemoryBackend) Close() error { return nil }

var _ Backend = (*MemoryBackend)(nil)
