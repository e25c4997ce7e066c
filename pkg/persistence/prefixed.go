package persistence

import (
	"context"
	"strings"
)

// DefaultKeyPrefix is the default literal fetchkit prefixes persisted keys
// with (spec.md §6, "Persisted layout").
const DefaultKeyPrefix = "fk_cache:"

// prefixed decorates a Backend with a key prefix, the way spec.md §4.4
// describes the durable-local and ephemeral variants wrapping a namespaced
// string store: "wrap the environment's namespaced string stores with a
// key prefix". Keys() strips the prefix back off before returning, so
// callers never see the internal representation. Set, Get, Has and Delete
// are namespaced; Clear, Keys and GetSize act on the whole wrapped
// backend (Clear empties it, GetSize reports its total, and Keys also
// returns keys stored under other prefixes, unstripped).
type prefixed struct {
	inner  Backend
	prefix string
}

// WithPrefix wraps inner so every key it stores is namespaced under
// prefix. Used by NewEphemeralBackend and by CreatePersistence's memory
// type (BadgerBackend and BoltBackend prefix keys themselves); any Backend
// can be wrapped, including MemoryBackend for tests.
func WithPrefix(inner Backend, prefix string) Backend {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &prefixed{inner: inner, prefix: prefix}
}

func (p *prefixed) key(key string) string { return p.prefix + key }

func (p *prefixed) Set(ctx context.Context, key string, rec Record) error {
	return p.inner.Set(ctx, p.key(key), rec)
}

func (p *prefixed) Get(ctx context.Context, key string) (Record, bool, error) {
	return p.inner.Get(ctx, p.key(key))
}

func (p *prefixed) Has(ctx context.Context, key string) (bool, error) {
	return p.inner.Has(ctx, p.key(key))
}

func (p *prefixed) Delete(ctx context.Context, key string) (bool, error) {
	return p.inner.Delete(ctx, p.key(key))
}

func (p *prefixed) Clear(ctx context.Context) error {
	return p.inner.Clear(ctx)
}

func (p *prefixed) Keys(ctx context.Context) ([]string, error) {
	keys, err := p.inner.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, p.prefix))
	}
	return out, nil
}

func (p *prefixed) GetSize(ctx context.Context) (int, error) {
	return p.inner.GetSize(ctx)
}

func (p *prefixed) Close() error { return p.inner.Close() }

var _ Backend = (*prefixed)(nil)

// NewEphemeralBackend returns the ephemeral variant: an in-memory,
// process-lifetime store with a key prefix and the same quota enforcement
// as the durable variants. There is no browser sessionStorage in a Go
// process, so "ephemeral" here means "never touches disk", matching
// spec.md's distinction from the durable-local backend.
func NewEphemeralBackend(maxSize int, prefix string) Backend {
	return WithPrefix(NewMemoryBackend(maxSize, nil), prefix)
}
