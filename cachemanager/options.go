// Package cachemanager is fetchkit's SWR engine (spec C8): the hardest
// component. It sits on top of pkg/memcache for storage and pkg/dedupe for
// fetch coalescing, and adds freshness tracking, background revalidation
// with throttle/debounce/retry, invalidation (direct, pattern,
// mutation-derived, grouped), and cache warming. There is no revalidation
// priority queue: Options.Priority is not read, and each background
// revalidation starts as soon as its throttle/debounce check lets it.
//
// Grounded on cache-manager/service.go's overall shape (Config struct,
// metrics, a background cleanup goroutine) generalized from its fixed
// L1/L2/origin model to spec.md's SWR semantics, plus warming/service.go
// (rate limiting, singleflight-guarded task execution) and
// invalidation/service.go+patterns.go (pattern matching, audit logging).
package cachemanager

import (
	"time"
)

// RetryDelay computes the delay before retrying a failed revalidation
// attempt. attempt is 1-indexed (the first retry is attempt 1).
type RetryDelay func(attempt int, err error) time.Duration

// DefaultRetryDelay implements spec.md §4.5's default: exponential backoff
// capped at 30s, min(2^n * 100ms, 30s).
func DefaultRetryDelay(attempt int, err error) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

// Options merges global manager defaults and per-call overrides for a SWR
// read (spec.md §4.5). A zero Options uses Manager's configured defaults
// for every field that supports one.
type Options[T any] struct {
	// StaleTime is how long a freshly inserted entry stays fresh.
	StaleTime time.Duration
	// CacheTime is how long a freshly inserted entry stays usable at all
	// (zero means it never expires).
	CacheTime time.Duration

	// Revalidate gates whether a stale read schedules a background
	// revalidation. nil means true (the spec.md default).
	Revalidate *bool

	// CacheKey, when non-empty, overrides the fingerprint passed to SWR —
	// lets a caller alias multiple logical requests onto one cache slot.
	CacheKey string

	MaxRetries int
	RetryDelay RetryDelay
	Timeout    time.Duration

	Validator   func(T) bool
	ShouldFetch func() bool

	ThrottleTime  time.Duration
	DebounceTime  time.Duration
	Priority      int
	WarmCache     bool
	WarmInterval  time.Duration
}

// shouldRevalidate reports the effective Revalidate flag.
func (o Options[T]) shouldRevalidate() bool {
	return o.Revalidate == nil || *o.Revalidate
}

// effectiveShouldFetch reports whether a fetch/revalidation is permitted,
// defaulting to true when no ShouldFetch gate was supplied.
func (o Options[T]) effectiveShouldFetch() bool {
	return o.ShouldFetch == nil || o.ShouldFetch()
}

// effectiveTimeout defaults to 30s, matching spec.md §4.5's background
// revalidation default.
func (o Options[T]) effectiveTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 30 * time.Second
}

// effectiveMaxRetries defaults to 3.
func (o Options[T]) effectiveMaxRetries() int {
	if o.MaxRetries > 0 {
		return o.MaxRetries
	}
	return 3
}

// effectiveRetryDelay defaults to DefaultRetryDelay.
func (o Options[T]) effectiveRetryDelay() RetryDelay {
	if o.RetryDelay != nil {
		return o.RetryDelay
	}
	return DefaultRetryDelay
}

// BoolPtr is a small convenience so callers can set Options.Revalidate
// without a local variable: cachemanager.Options[T]{Revalidate: cachemanager.BoolPtr(false)}.
func BoolPtr(b bool) *bool { return &b }
