// Package persistence is fetchkit's persistence layer (spec C5/C6/C7):
// multiple storage backends behind one contract, a fallback chain with
// promotion, a two-way synchronizer, bulk migration, and an optimized
// front-caching wrapper.
//
// There is no persistence concern in the teacher (O-tero-... is an
// in-memory/Postgres-audit service with no local KV store), so this
// package is grounded on the wider retrieval pack per SPEC_FULL.md §4.9:
// tomtom215-cartographus's go.mod is the source for both
// github.com/dgraph-io/badger/v4 (durable local backend) and
// go.etcd.io/bbolt (indexed durable backend).
package persistence

import (
	"context"
	"time"
)

// Record is what a Backend stores per key: the serialized entry payload
// plus the bookkeeping spec.md §4.4 asks persistence backends to carry at
// the row level (size for quota accounting, expiresAt for range cleanup).
// Backends are generic-free; pkg/persistence.Store[T] is the layer that
// marshals/unmarshals an Entry[T] to/from Record.Value.
type Record struct {
	Value     []byte
	Size      int
	ExpiresAt time.Time
}

// IsExpired reports whether the record is past its expiry as of now. The
// usable window is now < ExpiresAt, matching models.Entry's boundary
// policy. A zero ExpiresAt means the record never expires.
func (r Record) IsExpired(now time.Time) bool {
	if r.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(r.ExpiresAt)
}

// Backend is the persistence contract (spec C5). All operations are
// asynchronous from the caller's perspective in the original spec; here
// that is modeled with a context.Context so callers can bound or cancel
// slow storage operations.
type Backend interface {
	Set(ctx context.Context, key string, rec Record) error
	Get(ctx context.Context, key string) (Record, bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
	GetSize(ctx context.Context) (int, error)
	// Close releases any underlying resources (file handles, open DBs).
	Close() error
}
