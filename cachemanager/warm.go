package cachemanager

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/o-tero/fetchkit/pkg/eventbus"
)

// WarmStrategy picks which of a candidate set of fingerprints to warm and
// in what order, for RegisterWarmingPlan. Grounded on warming/strategies.go's
// Strategy interface; fetchkit keeps the same Plan shape but drops the
// teacher's TTL/Metadata fields that RegisterWarm already takes from
// per-call Options.
type WarmStrategy interface {
	Name() string
	Plan(ctx context.Context, candidates []string, limit int) []string
}

// defaultWarmingInterval is spec.md §4.5's default for registerCacheWarming
// when no interval is supplied.
const defaultWarmingInterval = 5 * time.Minute

// RegisterWarm unregisters any prior warming record for fingerprint,
// performs one immediate warm, then schedules a recurring warm every
// interval (spec.md §4.5's registerCacheWarming). Each tick goes through
// SWR rather than a raw fetch-and-set, so a warm run participates in the
// same validator/retry/event-emission path a normal read would.
func (m *Manager[T]) RegisterWarm(fingerprint string, fetch FetchFunc[T], opts Options[T], interval time.Duration) {
	m.UnregisterWarm(fingerprint)
	opts = m.mergeDefaults(opts)
	if interval <= 0 {
		interval = defaultWarmingInterval
	}

	reg := &warmRegistration[T]{
		fingerprint: fingerprint,
		fetch:       fetch,
		opts:        opts,
		interval:    interval,
		stop:        make(chan struct{}),
	}

	m.mu.Lock()
	m.warms[fingerprint] = reg
	m.mu.Unlock()

	m.emitWarm(eventbus.CacheWarmRegister, fingerprint, interval)

	m.warmOnce(reg)
	go m.runWarmLoop(reg)
}

// UnregisterWarm stops the periodic warming registered for fingerprint, if
// any.
func (m *Manager[T]) UnregisterWarm(fingerprint string) {
	m.mu.Lock()
	reg, ok := m.warms[fingerprint]
	if ok {
		delete(m.warms, fingerprint)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	close(reg.stop)
	m.emitWarm(eventbus.CacheWarmUnregister, fingerprint, 0)
}

func (m *Manager[T]) runWarmLoop(reg *warmRegistration[T]) {
	ticker := time.NewTicker(reg.interval)
	defer ticker.Stop()

	for {
		select {
		case <-reg.stop:
			return
		case <-ticker.C:
			m.warmOnce(reg)
		}
	}
}

// warmOnce drives one warming tick through the normal SWR path: a miss or
// expired entry fetches synchronously here, a stale entry schedules the
// usual background revalidation instead of blocking this tick.
func (m *Manager[T]) warmOnce(reg *warmRegistration[T]) {
	_, _ = m.SWR(context.Background(), reg.fingerprint, reg.fetch, reg.opts)
	m.emitWarm(eventbus.CacheWarmRefresh, reg.fingerprint, reg.interval)
}

func (m *Manager[T]) emitWarm(name eventbus.Name, fingerprint string, interval time.Duration) {
	if m.bus == nil {
		return
	}
	m.bus.Emit(name, &eventbus.WarmEvent{
		Version:     eventbus.EventVersion1,
		Fingerprint: fingerprint,
		Interval:    interval,
		At:          m.clock.Now(),
	})
}

// RegisterWarmingPlan runs strategy over candidates to choose which
// fingerprints to warm right now, then fetches each one (through fetch,
// keyed by fingerprint) at no more than originRPS requests per second —
// the same origin-protection role warming/service.go's rate.Limiter plays
// during a bulk warm sweep.
func (m *Manager[T]) RegisterWarmingPlan(ctx context.Context, strategy WarmStrategy, candidates []string, limit int, originRPS float64, fetch func(ctx context.Context, fingerprint string) (T, error), opts Options[T]) error {
	opts = m.mergeDefaults(opts)
	plan := strategy.Plan(ctx, candidates, limit)

	burst := int(originRPS)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(originRPS), burst)
	if originRPS <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	for _, fingerprint := range plan {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		fp := fingerprint
		data, err := m.fetchWithRetry(ctx, fp, func(ctx context.Context) (T, error) {
			return fetch(ctx, fp)
		}, opts)
		if err != nil {
			continue
		}
		if opts.Validator != nil && !opts.Validator(data) {
			continue
		}
		m.cache.Set(fp, data, opts.StaleTime, opts.CacheTime)
		m.emitWarm(eventbus.CacheWarmRefresh, fp, 0)
	}
	return nil
}
