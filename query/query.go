// Package query is fetchkit's subscribable live view over a single cached
// request (spec C9/C10): a Query binds one fingerprint to an observable
// state machine (idle/loading/success/error, with a separate stale flag),
// and Manager indexes many Query instances by fingerprint for bulk
// invalidate/refetch/remove operations.
//
// There is no query-object concept in the teacher (a server-side cache
// has no notion of a UI-facing subscription) or in the rest of the
// retrieval pack, so this package is new code, built in the teacher's
// idiom: a mutex-guarded struct, unsubscribe funcs returned from every
// listener registration (mirroring pkg/eventbus.Bus.On's id-based removal,
// simplified to a closure since a Query's listeners don't need external
// removal by id), explicit state structs rather than channels for state
// exposure.
package query

import (
	"context"
	"sync"
	"time"

	"github.com/o-tero/fetchkit/cachemanager"
	"github.com/o-tero/fetchkit/pkg/clock"
	"github.com/o-tero/fetchkit/pkg/eventbus"
)

// State is a point-in-time snapshot of a Query's observable status
// (spec.md §4.6's Query state: data?, error?, isLoading, isSuccess,
// isError, isStale, lastFetchedAt?).
type State[T any] struct {
	Data          T
	HasData       bool
	Err           error
	IsLoading     bool
	IsSuccess     bool
	IsError       bool
	IsStale       bool
	LastFetchedAt time.Time
}

// Unsubscribe removes a previously registered listener. Safe to call more
// than once.
type Unsubscribe func()

// Options configures a Query. CacheManager is forwarded to every
// SWR call the Query makes.
type Options[T any] struct {
	// RefetchOnStale gates whether MarkStale triggers an immediate
	// refetch. nil means true (spec.md §4.6's default).
	RefetchOnStale *bool
	CacheManager   cachemanager.Options[T]
}

func (o Options[T]) refetchOnStale() bool {
	return o.RefetchOnStale == nil || *o.RefetchOnStale
}

// Query binds one fingerprint to a live, subscribable state (spec C9). It
// performs an initial fetch on construction; construct via New or
// Manager.GetQuery rather than directly.
type Query[T any] struct {
	fingerprint string
	fetch       cachemanager.FetchFunc[T]
	manager     *cachemanager.Manager[T]
	bus         *eventbus.Bus
	clock       clock.Clock
	opts        Options[T]

	mu        sync.Mutex
	state      State[T]
	nextID     uint64
	listeners  map[uint64]func(State[T])
	onSuccess  map[uint64]func(T)
	onError    map[uint64]func(error)
	disposed   bool
	busSubs    []eventbus.SubscriptionID
	focusStop  chan struct{}
}

// New constructs a Query for fingerprint and immediately fires off its
// initial fetch in the background (the constructor itself never blocks).
// manager is optional: when nil, fetch is called directly with no
// caching/dedup/SWR layer beneath it. bus is optional: when nil, the
// Query never observes background revalidations triggered by other
// readers of the same fingerprint.
func New[T any](fingerprint string, fetch cachemanager.FetchFunc[T], manager *cachemanager.Manager[T], bus *eventbus.Bus, cl clock.Clock, opts Options[T]) *Query[T] {
	if cl == nil {
		cl = clock.System
	}
	q := &Query[T]{
		fingerprint: fingerprint,
		fetch:       fetch,
		manager:     manager,
		bus:         bus,
		clock:       cl,
		opts:        opts,
		listeners:   make(map[uint64]func(State[T])),
		onSuccess:   make(map[uint64]func(T)),
		onError:     make(map[uint64]func(error)),
	}
	if bus != nil {
		q.hookBus()
	}
	go q.Refetch(context.Background())
	return q
}

// hookBus subscribes to the background-revalidation events C8 emits for
// this Query's fingerprint, so the Query's observed state stays in sync
// even when the revalidation was triggered by a different caller sharing
// the same cache slot (spec.md §4.6: "C9 wraps a single fingerprint and
// subscribes to C8's events through C11").
func (q *Query[T]) hookBus() {
	start := q.bus.On(eventbus.CacheRevalidateStart, func(payload interface{}) {
		ev, ok := payload.(*eventbus.RevalidateEvent)
		if !ok || ev.Fingerprint != q.fingerprint {
			return
		}
		q.mutate(func(s *State[T]) { s.IsLoading = true })
	})
	success := q.bus.On(eventbus.CacheRevalidateSuccess, func(payload interface{}) {
		ev, ok := payload.(*eventbus.RevalidateEvent)
		if !ok || ev.Fingerprint != q.fingerprint || q.manager == nil {
			return
		}
		if entry, ok := q.manager.Peek(q.fingerprint); ok {
			q.applySuccess(entry.Data)
		}
	})
	errEvt := q.bus.On(eventbus.CacheRevalidateError, func(payload interface{}) {
		ev, ok := payload.(*eventbus.RevalidateEvent)
		if !ok || ev.Fingerprint != q.fingerprint {
			return
		}
		q.mutate(func(s *State[T]) { s.IsLoading = false })
	})
	q.busSubs = append(q.busSubs, start, success, errEvt)
}

// Refetch runs fetch (through manager's SWR when manager is non-nil) and
// transitions the Query's state on settlement.
func (q *Query[T]) Refetch(ctx context.Context) (T, error) {
	q.mutate(func(s *State[T]) {
		s.IsLoading = true
		s.IsSuccess = false
		s.IsError = false
	})

	var data T
	var err error
	if q.manager != nil {
		data, err = q.manager.SWR(ctx, q.fingerprint, q.fetch, q.opts.CacheManager)
	} else {
		data, err = q.fetch(ctx)
	}

	if err != nil {
		q.applyError(err)
		return data, err
	}
	q.applySuccess(data)
	return data, nil
}

// SetData applies an optimistic update: the Query's state (and, when a
// manager is attached, the underlying cache entry) is updated to data
// immediately, without a fetch.
func (q *Query[T]) SetData(data T) {
	if q.manager != nil {
		q.manager.SetData(q.fingerprint, data, q.opts.CacheManager.StaleTime, q.opts.CacheManager.CacheTime)
	}
	q.applySuccess(data)
}

// MarkStale flags the Query as stale. Unless Options.RefetchOnStale is
// explicitly false, it also triggers a background refetch.
func (q *Query[T]) MarkStale(ctx context.Context) {
	q.mutate(func(s *State[T]) { s.IsStale = true })
	if q.opts.refetchOnStale() {
		go q.Refetch(ctx)
	}
}

// Subscribe registers fn to run on every state transition, and returns a
// func to remove it.
func (q *Query[T]) Subscribe(fn func(State[T])) Unsubscribe {
	q.mu.Lock()
	id := q.nextID
	q.nextID++
	q.listeners[id] = fn
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		delete(q.listeners, id)
		q.mu.Unlock()
	}
}

// OnSuccess registers fn to run after every successful settlement.
func (q *Query[T]) OnSuccess(fn func(T)) Unsubscribe {
	q.mu.Lock()
	id := q.nextID
	q.nextID++
	q.onSuccess[id] = fn
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		delete(q.onSuccess, id)
		q.mu.Unlock()
	}
}

// OnError registers fn to run after every failed settlement.
func (q *Query[T]) OnError(fn func(error)) Unsubscribe {
	q.mu.Lock()
	id := q.nextID
	q.nextID++
	q.onError[id] = fn
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		delete(q.onError, id)
		q.mu.Unlock()
	}
}

// HookFocusSignal triggers a refetch every time signal fires, until
// Dispose is called or the returned Unsubscribe runs. This generalizes
// spec.md §4.6's refetchOnWindowFocus: the browser-specific "window
// regained focus" event becomes any caller-supplied channel.
func (q *Query[T]) HookFocusSignal(signal <-chan struct{}) Unsubscribe {
	q.mu.Lock()
	if q.focusStop == nil {
		q.focusStop = make(chan struct{})
	}
	disposed := q.focusStop
	q.mu.Unlock()

	stop := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-disposed:
				return
			case _, ok := <-signal:
				if !ok {
					return
				}
				go q.Refetch(context.Background())
			}
		}
	}()

	return func() { once.Do(func() { close(stop) }) }
}

// State returns the current state snapshot.
func (q *Query[T]) State() State[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Dispose clears every listener and unhooks any focus signal. A disposed
// Query stops reacting to the event bus but does not cancel any in-flight
// fetch; the fetch's result is simply discarded when it settles.
func (q *Query[T]) Dispose() {
	q.mu.Lock()
	q.disposed = true
	q.listeners = make(map[uint64]func(State[T]))
	q.onSuccess = make(map[uint64]func(T))
	q.onError = make(map[uint64]func(error))
	subs := q.busSubs
	q.busSubs = nil
	focusStop := q.focusStop
	q.focusStop = nil
	q.mu.Unlock()

	if q.bus != nil {
		if len(subs) >= 1 {
			q.bus.Off(eventbus.CacheRevalidateStart, subs[0])
		}
		if len(subs) >= 2 {
			q.bus.Off(eventbus.CacheRevalidateSuccess, subs[1])
		}
		if len(subs) >= 3 {
			q.bus.Off(eventbus.CacheRevalidateError, subs[2])
		}
	}
	if focusStop != nil {
		close(focusStop)
	}
}

func (q *Query[T]) applySuccess(data T) {
	now := q.clock.Now()
	q.mutate(func(s *State[T]) {
		s.Data = data
		s.HasData = true
		s.Err = nil
		s.IsLoading = false
		s.IsSuccess = true
		s.IsError = false
		s.IsStale = false
		s.LastFetchedAt = now
	})
	q.notifySuccess(data)
}

func (q *Query[T]) applyError(err error) {
	q.mutate(func(s *State[T]) {
		s.Err = err
		s.IsLoading = false
		s.IsSuccess = false
		s.IsError = true
	})
	q.notifyError(err)
}

func (q *Query[T]) mutate(fn func(s *State[T])) {
	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return
	}
	fn(&q.state)
	snapshot := q.state
	listeners := make([]func(State[T]), 0, len(q.listeners))
	for _, l := range q.listeners {
		listeners = append(listeners, l)
	}
	q.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

func (q *Query[T]) notifySuccess(data T) {
	q.mu.Lock()
	cbs := make([]func(T), 0, len(q.onSuccess))
	for _, cb := range q.onSuccess {
		cbs = append(cbs, cb)
	}
	q.mu.Unlock()
	for _, cb := range cbs {
		cb(data)
	}
}

func (q *Query[T]) notifyError(err error) {
	q.mu.Lock()
	cbs := make([]func(error), 0, len(q.onError))
	for _, cb := range q.onError {
		cbs = append(cbs, cb)
	}
	q.mu.Unlock()
	for _, cb := range cbs {
		cb(err)
	}
}
