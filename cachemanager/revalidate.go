package cachemanager

import (
	"context"
	"time"

	"github.com/o-tero/fetchkit/pkg/eventbus"
	"github.com/o-tero/fetchkit/pkg/models"
)

// triggerBackgroundRevalidate kicks off an asynchronous refresh of key,
// honoring throttle (skip if one ran too recently) and debounce (coalesce
// a burst of stale reads into one refresh fired after the quiet period).
// Concurrent stale reads for the same key beyond that both trigger this,
// but m.revalidating (a second Deduper, separate from the foreground one
// so an in-flight background refresh and a concurrent foreground miss
// don't block each other) collapses them to one actual fetch.
func (m *Manager[T]) triggerBackgroundRevalidate(key, fingerprint string, fetch FetchFunc[T], opts Options[T]) {
	now := m.clock.Now()

	m.mu.Lock()
	if opts.ThrottleTime > 0 {
		if last, ok := m.lastRevalidate[key]; ok && now.Sub(last) < opts.ThrottleTime {
			m.mu.Unlock()
			m.emitRevalidate(eventbus.CacheRevalidateThrottled, fingerprint, 0, nil)
			return
		}
	}

	if opts.DebounceTime > 0 {
		if t, ok := m.debounceTimers[key]; ok {
			t.Stop()
		}
		m.debounceTimers[key] = time.AfterFunc(opts.DebounceTime, func() {
			m.mu.Lock()
			delete(m.debounceTimers, key)
			m.mu.Unlock()
			m.runRevalidate(key, fingerprint, fetch, opts)
		})
		m.mu.Unlock()
		m.emitRevalidate(eventbus.CacheRevalidateDebounced, fingerprint, 0, nil)
		return
	}
	m.mu.Unlock()

	go m.runRevalidate(key, fingerprint, fetch, opts)
}

// runRevalidate performs the actual background refresh of key. It never
// returns an error to its caller: failures are recorded on the entry
// (LastError) and announced via the event bus, per spec.md §4.5's "failed
// background revalidation does not evict the existing entry" rule.
func (m *Manager[T]) runRevalidate(key, fingerprint string, fetch FetchFunc[T], opts Options[T]) {
	m.mu.Lock()
	m.lastRevalidate[key] = m.clock.Now()
	m.mu.Unlock()

	_, _ = m.revalidating.Dedupe(key, func() (T, error) {
		m.cache.Update(key, func(e *models.Entry[T]) {
			e.IsRevalidating = true
		})
		m.emitRevalidate(eventbus.CacheRevalidateStart, fingerprint, 0, nil)

		data, err := m.fetchWithRetry(context.Background(), fingerprint, fetch, opts)

		if err != nil {
			m.cache.Update(key, func(e *models.Entry[T]) {
				e.IsRevalidating = false
				e.LastError = err.Error()
			})
			m.emitRevalidate(eventbus.CacheRevalidateError, fingerprint, 0, err)
			var zero T
			return zero, err
		}

		if opts.Validator != nil && !opts.Validator(data) {
			m.cache.Update(key, func(e *models.Entry[T]) {
				e.IsRevalidating = false
				e.LastError = "revalidated value rejected by validator"
			})
			m.emitRevalidate(eventbus.CacheRevalidateError, fingerprint, 0, nil)
			var zero T
			return zero, nil
		}

		m.cache.Set(key, data, opts.StaleTime, opts.CacheTime)
		now := m.clock.Now()
		m.cache.Update(key, func(e *models.Entry[T]) {
			e.IsRevalidating = false
			e.RevalidationCount++
			e.LastRevalidatedAt = now
			e.LastError = ""
		})
		m.emitRevalidate(eventbus.CacheRevalidateSuccess, fingerprint, 0, nil)
		return data, nil
	})
}

func (m *Manager[T]) emitRevalidate(name eventbus.Name, fingerprint string, attempt int, err error) {
	if m.bus == nil {
		return
	}
	ev := &eventbus.RevalidateEvent{
		Version:     eventbus.EventVersion1,
		Fingerprint: fingerprint,
		Attempt:     attempt,
		At:          m.clock.Now(),
	}
	if err != nil {
		ev.ErrMessage = err.Error()
	}
	m.bus.Emit(name, ev)
}
