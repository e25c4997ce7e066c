// Package dedupe is fetchkit's request deduper (spec C4): concurrent
// Dedupe calls for the same fingerprint coalesce into exactly one producer
// invocation, with every caller receiving the shared result once it
// settles.
//
// Grounded on cache-manager/singleflight.go's RequestCoalescer (the Do/
// Forget/InFlight bookkeeping shape), but the coalescing itself is done by
// golang.org/x/sync/singleflight rather than the teacher's hand-rolled
// map+WaitGroup, per SPEC_FULL.md §4.9 — warming/service.go already pulls
// in that dependency for the same purpose, so Deduper gives it a second,
// more central, home.
package dedupe

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Deduper coalesces concurrent producer calls sharing a fingerprint.
// singleflight.Group already guarantees "invoke once, fan out the result";
// the refCount map on top exists only to answer the inspection queries
// spec.md §4.3 asks for (isInFlight, getInFlightCount, getInFlightKeys),
// which singleflight.Group does not expose.
type Deduper[T any] struct {
	group singleflight.Group

	mu       sync.Mutex
	refCount map[string]int
}

// New constructs an empty Deduper for value type T.
func New[T any]() *Deduper[T] {
	return &Deduper[T]{refCount: make(map[string]int)}
}

// Dedupe runs producer for fingerprint, or waits for an already in-flight
// call for the same fingerprint and returns its result. The in-flight
// record is cleared on settlement whether producer succeeds or fails.
func (d *Deduper[T]) Dedupe(fingerprint string, producer func() (T, error)) (T, error) {
	d.enter(fingerprint)
	defer d.leave(fingerprint)

	v, err, _ := d.group.Do(fingerprint, func() (interface{}, error) {
		return producer()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (d *Deduper[T]) enter(fingerprint string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refCount[fingerprint]++
}

func (d *Deduper[T]) leave(fingerprint string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refCount[fingerprint]--
	if d.refCount[fingerprint] <= 0 {
		delete(d.refCount, fingerprint)
	}
}

// IsInFlight reports whether a producer call for fingerprint is currently
// outstanding.
func (d *Deduper[T]) IsInFlight(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.refCount[fingerprint]
	return ok
}

// InFlightCount returns the number of distinct fingerprints with an
// outstanding producer call.
func (d *Deduper[T]) InFlightCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.refCount)
}

// InFlightKeys returns the fingerprints currently in flight. Order is
// unspecified.
func (d *Deduper[T]) InFlightKeys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.refCount))
	for k := range d.refCount {
		keys = append(keys, k)
	}
	return keys
}

// ClearInFlightRequests drops in-flight tracking for every fingerprint. It
// does not cancel or abort underlying producer calls still running; they
// complete normally and deliver their result to whichever callers are still
// waiting on the singleflight group.
func (d *Deduper[T]) ClearInFlightRequests() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refCount = make(map[string]int)
}
