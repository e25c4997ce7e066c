package cachemanager

import (
	"time"

	"github.com/o-tero/fetchkit/pkg/models"
)

// GetStats returns the underlying cache's point-in-time counters.
func (m *Manager[T]) GetStats() models.CacheStats {
	return m.cache.GetStats()
}

// SetData writes data into the cache directly, bypassing fetch/validator/
// retry entirely — the backing operation for query.Query's optimistic
// SetData.
func (m *Manager[T]) SetData(key string, data T, staleTime, cacheTime time.Duration) {
	m.cache.Set(key, data, staleTime, cacheTime)
	m.clearFallback(key)
}

// Peek inspects the entry at fingerprint (or its CacheKey override)
// without affecting freshness, eviction ordering, or hit/miss counters.
// Used by callers that want to show "last revalidated at" / "is stale"
// status without triggering a read.
func (m *Manager[T]) Peek(fingerprint string) (models.Entry[T], bool) {
	return m.cache.Peek(fingerprint)
}

// IsWarming reports whether fingerprint has an active periodic warm
// registration.
func (m *Manager[T]) IsWarming(fingerprint string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.warms[fingerprint]
	return ok
}

// InFlightCount reports how many distinct fingerprints currently have an
// outstanding foreground fetch (a cache miss being resolved).
func (m *Manager[T]) InFlightCount() int {
	return m.fetchers.InFlightCount()
}
