package query

import (
	"context"
	"sync"

	"github.com/o-tero/fetchkit/cachemanager"
	"github.com/o-tero/fetchkit/pkg/clock"
	"github.com/o-tero/fetchkit/pkg/eventbus"
)

// FetchFactory builds the fetch function for a given fingerprint. The
// query manager doesn't know how to turn a fingerprint back into an HTTP
// request — that's the caller's adapter — so it asks for one per
// fingerprint on first use.
type FetchFactory[T any] func(fingerprint string) cachemanager.FetchFunc[T]

// Manager indexes Query instances by fingerprint and supports bulk
// operations over them (spec C10).
type Manager[T any] struct {
	cacheManager *cachemanager.Manager[T]
	bus          *eventbus.Bus
	clock        clock.Clock
	fetchFactory FetchFactory[T]
	defaults     Options[T]

	mu      sync.Mutex
	queries map[string]*Query[T]
}

// NewManager constructs a query Manager. cacheManager and bus may be nil
// (a Manager with no cacheManager fetches directly with no SWR layer; one
// with no bus never observes background revalidations from elsewhere).
func NewManager[T any](cacheManager *cachemanager.Manager[T], bus *eventbus.Bus, cl clock.Clock, fetchFactory FetchFactory[T], defaults Options[T]) *Manager[T] {
	if cl == nil {
		cl = clock.System
	}
	return &Manager[T]{
		cacheManager: cacheManager,
		bus:          bus,
		clock:        cl,
		fetchFactory: fetchFactory,
		defaults:     defaults,
		queries:      make(map[string]*Query[T]),
	}
}

// GetQuery returns the existing Query for fingerprint, constructing one
// (and triggering its initial fetch) if none exists yet.
func (m *Manager[T]) GetQuery(fingerprint string) *Query[T] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queries[fingerprint]; ok {
		return q
	}
	q := New[T](fingerprint, m.fetchFactory(fingerprint), m.cacheManager, m.bus, m.clock, m.defaults)
	m.queries[fingerprint] = q
	return q
}

// matching returns a snapshot of fingerprint->Query pairs selected by
// predicate, taken under the manager lock but iterated outside it.
func (m *Manager[T]) matching(predicate func(fingerprint string) bool) map[string]*Query[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*Query[T])
	for fp, q := range m.queries {
		if predicate == nil || predicate(fp) {
			out[fp] = q
		}
	}
	return out
}

// InvalidateQueries invalidates the underlying cache entry and marks every
// matching Query stale.
func (m *Manager[T]) InvalidateQueries(predicate func(fingerprint string) bool) {
	for fp, q := range m.matching(predicate) {
		if m.cacheManager != nil {
			m.cacheManager.Invalidate(fp)
		}
		q.MarkStale(context.Background())
	}
}

// InvalidateAllQueries invalidates every registered Query.
func (m *Manager[T]) InvalidateAllQueries() {
	m.InvalidateQueries(nil)
}

// RefetchQueries triggers a background refetch on every matching Query.
func (m *Manager[T]) RefetchQueries(predicate func(fingerprint string) bool) {
	for _, q := range m.matching(predicate) {
		go q.Refetch(context.Background())
	}
}

// RemoveQueries disposes and drops every matching Query from the
// registry.
func (m *Manager[T]) RemoveQueries(predicate func(fingerprint string) bool) {
	toRemove := m.matching(predicate)

	m.mu.Lock()
	for fp := range toRemove {
		delete(m.queries, fp)
	}
	m.mu.Unlock()

	for _, q := range toRemove {
		q.Dispose()
	}
}

// Count reports how many queries are currently registered.
func (m *Manager[T]) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}
