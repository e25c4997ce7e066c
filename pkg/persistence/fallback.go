package persistence

import (
	"context"
	"sync"

	"github.com/o-tero/fetchkit/pkg/fkerrors"
)

// FallbackChain is the C6 fallback-chain backend: an ordered list of
// backends with one active member. Writes try the active backend first
// and, on failure, advance to the next and retry; a successful write also
// fire-and-forgets to every other backend so they stay warm. Reads try
// the active backend, then scan forward; a successful read from a later
// backend promotes it to active and back-fills the backends scanned over.
// delete/clear fan out to every backend; keys is the set union.
type FallbackChain struct {
	mu          sync.Mutex
	backends    []Backend
	activeIndex int
}

// NewFallbackChain builds a FallbackChain over backends in priority order.
// At least one backend is required.
func NewFallbackChain(backends ...Backend) (*FallbackChain, error) {
	if len(backends) == 0 {
		return nil, fkerrors.ErrEmptyFallbackChain
	}
	return &FallbackChain{backends: backends}, nil
}

// ActiveIndex reports which backend is currently active.
func (c *FallbackChain) ActiveIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeIndex
}

func (c *FallbackChain) Set(ctx context.Context, key string, rec Record) error {
	c.mu.Lock()
	start := c.activeIndex
	n := len(c.backends)
	c.mu.Unlock()

	var lastErr error
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if err := c.backends[idx].Set(ctx, key, rec); err != nil {
			lastErr = err
			continue
		}
		c.mu.Lock()
		c.activeIndex = idx
		others := make([]Backend, 0, n-1)
		for j, b := range c.backends {
			if j != idx {
				others = append(others, b)
			}
		}
		c.mu.Unlock()
		for _, b := range others {
			go func(b Backend) { _ = b.Set(context.Background(), key, rec) }(b)
		}
		return nil
	}
	return lastErr
}

func (c *FallbackChain) Get(ctx context.Context, key string) (Record, bool, error) {
	c.mu.Lock()
	active := c.activeIndex
	n := len(c.backends)
	c.mu.Unlock()

	rec, ok, err := c.backends[active].Get(ctx, key)
	if err == nil && ok {
		return rec, true, nil
	}

	for i := active + 1; i < n; i++ {
		rec, ok, err := c.backends[i].Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		c.mu.Lock()
		scanned := make([]Backend, 0, i-active)
		for j := active; j < i; j++ {
			scanned = append(scanned, c.backends[j])
		}
		c.activeIndex = i
		c.mu.Unlock()
		for _, b := range scanned {
			go func(b Backend) { _ = b.Set(context.Background(), key, rec) }(b)
		}
		return rec, true, nil
	}
	return Record{}, false, nil
}

func (c *FallbackChain) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

func (c *FallbackChain) Delete(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	backends := append([]Backend(nil), c.backends...)
	c.mu.Unlock()

	existed := false
	var firstErr error
	for _, b := range backends {
		ok, err := b.Delete(ctx, key)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ok {
			existed = true
		}
	}
	return existed, firstErr
}

func (c *FallbackChain) Clear(ctx context.Context) error {
	c.mu.Lock()
	backends := append([]Backend(nil), c.backends...)
	c.mu.Unlock()

	var firstErr error
	for _, b := range backends {
		if err := b.Clear(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *FallbackChain) Keys(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	backends := append([]Backend(nil), c.backends...)
	c.mu.Unlock()

	seen := make(map[string]struct{})
	for _, b := range backends {
		keys, err := b.Keys(ctx)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out, nil
}

// GetSize reports the active backend's size, the chain's authoritative
// store of record.
func (c *FallbackChain) GetSize(ctx context.Context) (int, error) {
	c.mu.Lock()
	active := c.backends[c.activeIndex]
	c.mu.Unlock()
	return active.GetSize(ctx)
}

func (c *FallbackChain) Close() error {
	c.mu.Lock()
	backends := append([]Backend(nil), c.backends...)
	c.mu.Unlock()

	var firstErr error
	for _, b := range backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Backend = (*FallbackChain)(nil)
