package cachemanager

import (
	"context"
	"sync"
	"time"

	"github.com/o-tero/fetchkit/pkg/clock"
	"github.com/o-tero/fetchkit/pkg/dedupe"
	"github.com/o-tero/fetchkit/pkg/eventbus"
	"github.com/o-tero/fetchkit/pkg/fkerrors"
	"github.com/o-tero/fetchkit/pkg/memcache"
)

// FetchFunc produces the value for a fingerprint, same role as the
// teacher's OriginFetcher.Fetch but generic over the cached value type.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Config wires a Manager to its backing cache, clock, and event bus.
// Cache is required; Clock defaults to clock.System; Bus may be nil (no
// events emitted).
type Config[T any] struct {
	Cache    *memcache.Cache[T]
	Clock    clock.Clock
	Bus      *eventbus.Bus
	Defaults Options[T]
}

type fallbackEntry[T any] struct {
	data T
	at   time.Time
}

type warmRegistration[T any] struct {
	fingerprint string
	fetch       FetchFunc[T]
	opts        Options[T]
	interval    time.Duration
	stop        chan struct{}
}

// Manager is fetchkit's stale-while-revalidate engine for one cached value
// type T (spec C8). One Manager[T] instance per distinct T, mirroring
// memcache.Cache[T]'s per-type design — Go has no idiomatic way to hold
// heterogeneous generic caches in a single container the way the original
// system's per-call generics do.
//
// Grounded on cache-manager/service.go's Service: the same separation of a
// foreground coalescer (here pkg/dedupe, singleflight-backed) from a
// background sweep, but generalized from the teacher's fixed L1→L2→origin
// chain to spec.md §4.5's freshness-window/revalidate/validator algorithm.
type Manager[T any] struct {
	cache        *memcache.Cache[T]
	fetchers     *dedupe.Deduper[T]
	revalidating *dedupe.Deduper[T]
	clock        clock.Clock
	bus          *eventbus.Bus
	defaults     Options[T]

	mu              sync.Mutex
	staleFallback   map[string]fallbackEntry[T]
	lastRevalidate  map[string]time.Time
	debounceTimers  map[string]*time.Timer
	warms           map[string]*warmRegistration[T]
	groups          map[string][]string
	invalidateHooks []InvalidateHook
}

// New constructs a Manager from cfg.
func New[T any](cfg Config[T]) *Manager[T] {
	if cfg.Cache == nil {
		panic("cachemanager: Config.Cache is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	return &Manager[T]{
		cache:          cfg.Cache,
		fetchers:       dedupe.New[T](),
		revalidating:   dedupe.New[T](),
		clock:          cfg.Clock,
		bus:            cfg.Bus,
		defaults:       cfg.Defaults,
		staleFallback:  make(map[string]fallbackEntry[T]),
		lastRevalidate: make(map[string]time.Time),
		debounceTimers: make(map[string]*time.Timer),
		warms:          make(map[string]*warmRegistration[T]),
		groups:         make(map[string][]string),
	}
}

// mergeDefaults fills zero-valued Options fields from m.defaults. Booleans
// with no "unset" sentinel (Revalidate aside, which uses a pointer) keep
// per-call zero values rather than merging, matching spec.md §4.5's model
// of per-call options as overrides rather than a deep merge.
func (m *Manager[T]) mergeDefaults(o Options[T]) Options[T] {
	if o.StaleTime == 0 {
		o.StaleTime = m.defaults.StaleTime
	}
	if o.CacheTime == 0 {
		o.CacheTime = m.defaults.CacheTime
	}
	if o.Revalidate == nil {
		o.Revalidate = m.defaults.Revalidate
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = m.defaults.MaxRetries
	}
	if o.RetryDelay == nil {
		o.RetryDelay = m.defaults.RetryDelay
	}
	if o.Timeout == 0 {
		o.Timeout = m.defaults.Timeout
	}
	if o.Validator == nil {
		o.Validator = m.defaults.Validator
	}
	if o.ShouldFetch == nil {
		o.ShouldFetch = m.defaults.ShouldFetch
	}
	if o.ThrottleTime == 0 {
		o.ThrottleTime = m.defaults.ThrottleTime
	}
	if o.DebounceTime == 0 {
		o.DebounceTime = m.defaults.DebounceTime
	}
	return o
}

// SWR is the core read operation (spec.md §4.5): return fresh data
// immediately, serve stale data while kicking off a background
// revalidation, or fetch synchronously on a miss. fingerprint identifies
// both the logical request and, absent a CacheKey override, the cache
// slot.
func (m *Manager[T]) SWR(ctx context.Context, fingerprint string, fetch FetchFunc[T], opts Options[T]) (T, error) {
	key := fingerprint
	if opts.CacheKey != "" {
		key = opts.CacheKey
	}
	opts = m.mergeDefaults(opts)
	now := m.clock.Now()

	if entry, ok := m.cache.Peek(key); ok {
		switch {
		case entry.IsExpired(now):
			m.cache.Delete(key)

		case opts.Validator != nil && !opts.Validator(entry.Data):
			// The cached value no longer satisfies the caller's validator.
			// It is not discarded outright: spec.md §4.5 step 4's stale
			// fallback on a failed refetch is this entry, so it is kept
			// around (not in the live cache) until a successful fetch,
			// SetData, an invalidation of the key, or Clear discards it.
			m.rememberFallback(key, entry.Data, now)
			m.cache.Delete(key)

		case entry.IsFresh(now):
			return entry.Data, nil

		default: // stale
			if opts.shouldRevalidate() && opts.effectiveShouldFetch() {
				m.triggerBackgroundRevalidate(key, fingerprint, fetch, opts)
			}
			return entry.Data, nil
		}
	}

	// Absent, expired, or validator-rejected: treat uniformly as a miss.
	if !opts.effectiveShouldFetch() {
		if fb, ok := m.takeFallback(key); ok {
			return fb, nil
		}
		var zero T
		return zero, fkerrors.ErrConditionUnmet.WithFingerprint(fingerprint)
	}

	data, err := m.foregroundFetch(ctx, key, fingerprint, fetch, opts)
	if err != nil {
		if fb, ok := m.takeFallback(key); ok {
			return fb, nil
		}
		var zero T
		return zero, err
	}
	m.clearFallback(key)
	return data, nil
}

// foregroundFetch coalesces concurrent misses for key through m.fetchers
// and applies retry/timeout/validator per opts, caching the result on
// success.
func (m *Manager[T]) foregroundFetch(ctx context.Context, key, fingerprint string, fetch FetchFunc[T], opts Options[T]) (T, error) {
	return m.fetchers.Dedupe(key, func() (T, error) {
		data, err := m.fetchWithRetry(ctx, fingerprint, fetch, opts)
		if err != nil {
			m.emit(eventbus.RequestError, fingerprint, err)
			var zero T
			return zero, err
		}
		if opts.Validator != nil && !opts.Validator(data) {
			m.emit(eventbus.RequestError, fingerprint, fkerrors.ErrValidationFailed)
			var zero T
			return zero, fkerrors.ErrValidationFailed.WithFingerprint(fingerprint)
		}
		m.cache.Set(key, data, opts.StaleTime, opts.CacheTime)
		m.emit(eventbus.RequestSuccess, fingerprint, nil)
		return data, nil
	})
}

// fetchWithRetry calls fetch, retrying on error up to opts.MaxRetries times
// with opts.RetryDelay between attempts. Each attempt is bounded by
// opts.Timeout.
func (m *Manager[T]) fetchWithRetry(ctx context.Context, fingerprint string, fetch FetchFunc[T], opts Options[T]) (T, error) {
	maxRetries := opts.effectiveMaxRetries()
	retryDelay := opts.effectiveRetryDelay()
	timeout := opts.effectiveTimeout()

	m.emit(eventbus.RequestStart, fingerprint, nil)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		data, err := fetch(attemptCtx)
		cancel()
		if err == nil {
			return data, nil
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(retryDelay(attempt+1, err)):
		}
	}
	var zero T
	return zero, lastErr
}

func (m *Manager[T]) rememberFallback(key string, data T, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleFallback[key] = fallbackEntry[T]{data: data, at: now}
}

func (m *Manager[T]) takeFallback(key string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fb, ok := m.staleFallback[key]
	if !ok {
		var zero T
		return zero, false
	}
	return fb.data, true
}

func (m *Manager[T]) clearFallback(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.staleFallback, key)
}

func (m *Manager[T]) emit(name eventbus.Name, fingerprint string, err error) {
	if m.bus == nil {
		return
	}
	ev := &eventbus.RequestEvent{
		Version:     eventbus.EventVersion1,
		Fingerprint: fingerprint,
		RequestID:   eventbus.NewRequestID(),
		Err:         err,
		At:          m.clock.Now(),
	}
	if err != nil {
		ev.ErrMessage = err.Error()
	}
	m.bus.Emit(name, ev)
}

// stopAllWarms cancels every registered warm ticker and pending debounce
// timer, returning the manager to a state with no background activity.
func (m *Manager[T]) stopAllWarms() {
	m.mu.Lock()
	warms := m.warms
	m.warms = make(map[string]*warmRegistration[T])
	timers := m.debounceTimers
	m.debounceTimers = make(map[string]*time.Timer)
	m.mu.Unlock()

	for _, w := range warms {
		close(w.stop)
	}
	for _, t := range timers {
		t.Stop()
	}
}

// Clear cancels and discards every warming record, then empties the
// cache (spec.md §4.5's clear()).
func (m *Manager[T]) Clear() {
	m.stopAllWarms()
	m.mu.Lock()
	m.staleFallback = make(map[string]fallbackEntry[T])
	m.mu.Unlock()
	m.cache.Clear()
}

// Dispose stops every registered warm task and the underlying cache's
// cleanup goroutine. Safe to call more than once.
func (m *Manager[T]) Dispose() {
	m.stopAllWarms()
	m.cache.Dispose()
}
