package cachemanager

import (
	"github.com/o-tero/fetchkit/pkg/eventbus"
	"github.com/o-tero/fetchkit/pkg/patternmatch"
)

// InvalidateHook runs after a successful invalidation, receiving the keys
// that were removed. Grounded on invalidation/service.go's post-invalidate
// pubsub publish, generalized from "always publish one event" to an
// arbitrary list of callbacks so cachemanager doesn't have to know about
// pkg/audit or any other listener directly.
type InvalidateHook func(keys []string, triggeredBy string)

// matcher is process-wide: regex compilation is keyed purely by pattern
// text, so there is no reason to pay for it again per Manager instance.
var matcher = patternmatch.New()

// Invalidate removes a single key.
func (m *Manager[T]) Invalidate(key string) bool {
	existed := m.cache.Delete(key)
	if existed {
		m.clearFallback(key)
		m.publishInvalidation([]string{key}, "", "manual")
	}
	return existed
}

// InvalidateMatching removes every key for which match returns true.
func (m *Manager[T]) InvalidateMatching(match func(key string) bool) []string {
	var removed []string
	for _, k := range m.cache.Keys() {
		if match(k) {
			if m.cache.Delete(k) {
				m.clearFallback(k)
				removed = append(removed, k)
			}
		}
	}
	if len(removed) > 0 {
		m.publishInvalidation(removed, "", "matching")
	}
	return removed
}

// InvalidateByPattern removes every key that pattern selects (exact,
// wildcard, or regex — see pkg/patternmatch).
func (m *Manager[T]) InvalidateByPattern(pattern string) ([]string, error) {
	if err := matcher.ValidatePattern(pattern); err != nil {
		return nil, err
	}
	keys := matcher.Match(pattern, m.cache.Keys())
	for _, k := range keys {
		m.cache.Delete(k)
		m.clearFallback(k)
	}
	if len(keys) > 0 {
		m.publishInvalidation(keys, pattern, "pattern")
	}
	return keys, nil
}

// InvalidateAfterMutation invalidates the keys (or pattern) a mutation
// declares as affected, per spec.md §4.5's mutation-derived invalidation:
// a write handler doesn't need to know every cache key a record appears
// under, only the resource pattern.
func (m *Manager[T]) InvalidateAfterMutation(affectedKeys []string, affectedPattern string) ([]string, error) {
	var removed []string
	for _, k := range affectedKeys {
		if m.cache.Delete(k) {
			m.clearFallback(k)
			removed = append(removed, k)
		}
	}
	if len(removed) > 0 {
		m.publishInvalidation(removed, "", "mutation")
	}
	if affectedPattern != "" {
		matched, err := m.InvalidateByPattern(affectedPattern)
		if err != nil {
			return removed, err
		}
		removed = append(removed, matched...)
	}
	return removed, nil
}

// InvalidateGroup removes every key registered under groupName via
// AddToGroup. Groups let callers tag a set of cache keys (e.g. every
// request belonging to one user session) for bulk invalidation without
// those keys sharing a common pattern.
func (m *Manager[T]) InvalidateGroup(groupName string) []string {
	m.mu.Lock()
	keys := m.groups[groupName]
	delete(m.groups, groupName)
	m.mu.Unlock()

	var removed []string
	for _, k := range keys {
		if m.cache.Delete(k) {
			m.clearFallback(k)
			removed = append(removed, k)
		}
	}
	if len(removed) > 0 {
		m.publishInvalidation(removed, "", "group:"+groupName)
	}
	return removed
}

// AddToGroup tags key as a member of groupName, for later bulk removal via
// InvalidateGroup.
func (m *Manager[T]) AddToGroup(groupName, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[groupName] = append(m.groups[groupName], key)
}

// OnInvalidate registers hook to run after every invalidation this Manager
// performs (single key, matching, pattern, mutation, or group).
func (m *Manager[T]) OnInvalidate(hook InvalidateHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateHooks = append(m.invalidateHooks, hook)
}

func (m *Manager[T]) publishInvalidation(keys []string, pattern, triggeredBy string) {
	start := m.clock.Now()

	m.mu.Lock()
	hooks := append([]InvalidateHook(nil), m.invalidateHooks...)
	m.mu.Unlock()

	for _, h := range hooks {
		func() {
			defer func() { recover() }()
			h(keys, triggeredBy)
		}()
	}

	if m.bus == nil {
		return
	}
	for _, k := range keys {
		m.bus.Emit(eventbus.CacheInvalidate, &eventbus.CacheEvent{
			Version:     eventbus.EventVersion1,
			Fingerprint: k,
			Reason:      triggeredBy,
			At:          start,
		})
	}
	m.bus.Emit(eventbus.CacheInvalidate, &eventbus.InvalidationAuditEvent{
		Version:     eventbus.EventVersion1,
		Pattern:     pattern,
		Keys:        keys,
		TriggeredBy: triggeredBy,
		RequestID:   eventbus.NewRequestID(),
		Latency:     m.clock.Now().Sub(start),
		At:          start,
	})
}
