// Package clock provides the single logical clock fetchkit's caching
// components read `now` from. Every timestamp in the system — entry
// freshness, expiry, throttle/debounce windows, revalidation bookkeeping —
// is derived from one Clock so that tests can exercise exact boundary
// conditions (e.g. now == staleAt) without sleeping real wall-clock time.
package clock

import "time"

// Clock returns the current time. Implementations must be safe for
// concurrent use.
type Clock interface {
	Now() time.Time
}

// Real wraps time.Now. It is the default Clock for every component that
// doesn't have one injected.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// System is the shared Real clock instance; components default to it.
var System Clock = Real{}
