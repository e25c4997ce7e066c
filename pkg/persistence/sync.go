package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/o-tero/fetchkit/pkg/clock"
)

// ConflictStrategy resolves a key present in both the primary and
// secondary backend with non-identical bytes.
type ConflictStrategy string

const (
	// ConflictMostRecent keeps whichever record's Value decodes to the
	// later createdAt (see createdAtOf); on a tie the primary wins.
	ConflictMostRecent ConflictStrategy = "mostRecent"
	ConflictPrimary    ConflictStrategy = "primary"
	ConflictSecondary  ConflictStrategy = "secondary"
	ConflictCustom     ConflictStrategy = "custom"
)

// ConflictResolver picks the winning record between a primary and
// secondary copy of the same key. Used when Strategy is ConflictCustom;
// ignored otherwise.
type ConflictResolver func(key string, primary, secondary Record) Record

// SyncStats is the per-run report a Synchronizer produces (spec.md §4.4).
type SyncStats struct {
	EntriesProcessed  int
	AddedToPrimary    int
	AddedToSecondary  int
	ConflictsResolved int
	Failures          int
	TimeTakenMs       int64
}

// Synchronizer keeps a primary and secondary backend converged: a
// periodic syncAll pass plus an explicit dirty-set markForSync(key) for
// targeted keys. A run is non-reentrant.
type Synchronizer struct {
	primary   Backend
	secondary Backend
	strategy  ConflictStrategy
	resolver  ConflictResolver
	clock     clock.Clock

	mu      sync.Mutex
	dirty   map[string]struct{}
	running bool

	stopOnce sync.Once
	stop     chan struct{}
}

// SynchronizerConfig configures a Synchronizer.
type SynchronizerConfig struct {
	Primary   Backend
	Secondary Backend
	Strategy  ConflictStrategy
	Resolver  ConflictResolver
	Clock     clock.Clock
}

// NewSynchronizer builds a Synchronizer. Strategy defaults to
// ConflictMostRecent when empty.
func NewSynchronizer(cfg SynchronizerConfig) *Synchronizer {
	if cfg.Strategy == "" {
		cfg.Strategy = ConflictMostRecent
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	return &Synchronizer{
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		strategy:  cfg.Strategy,
		resolver:  cfg.Resolver,
		clock:     cfg.Clock,
		dirty:     make(map[string]struct{}),
	}
}

// MarkForSync flags key to be reconciled on the next run even if it isn't
// picked up by a full scan (e.g. a caller wants it synced sooner).
func (s *Synchronizer) MarkForSync(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty[key] = struct{}{}
}

// SyncAll reconciles every key the primary, secondary, and dirty set
// collectively know about, filtered by filter (nil means every key). It
// is a no-op returning a zero SyncStats if a run is already in progress.
func (s *Synchronizer) SyncAll(ctx context.Context, filter func(key string) bool) (SyncStats, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return SyncStats{}, nil
	}
	s.running = true
	dirty := s.dirty
	s.dirty = make(map[string]struct{})
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := s.clock.Now()
	stats := SyncStats{}

	keys, err := s.collectKeys(ctx, dirty)
	if err != nil {
		return stats, err
	}

	for _, key := range keys {
		if filter != nil && !filter(key) {
			continue
		}
		stats.EntriesProcessed++
		if err := s.syncKey(ctx, key, &stats); err != nil {
			stats.Failures++
		}
	}

	stats.TimeTakenMs = s.clock.Now().Sub(start).Milliseconds()
	return stats, nil
}

func (s *Synchronizer) collectKeys(ctx context.Context, dirty map[string]struct{}) ([]string, error) {
	seen := make(map[string]struct{}, len(dirty))
	for k := range dirty {
		seen[k] = struct{}{}
	}
	primaryKeys, err := s.primary.Keys(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range primaryKeys {
		seen[k] = struct{}{}
	}
	secondaryKeys, err := s.secondary.Keys(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range secondaryKeys {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out, nil
}

func (s *Synchronizer) syncKey(ctx context.Context, key string, stats *SyncStats) error {
	pRec, pOk, err := s.primary.Get(ctx, key)
	if err != nil {
		return err
	}
	sRec, sOk, err := s.secondary.Get(ctx, key)
	if err != nil {
		return err
	}

	switch {
	case pOk && !sOk:
		if err := s.secondary.Set(ctx, key, pRec); err != nil {
			return err
		}
		stats.AddedToSecondary++
	case sOk && !pOk:
		if err := s.primary.Set(ctx, key, sRec); err != nil {
			return err
		}
		stats.AddedToPrimary++
	case pOk && sOk && !bytes.Equal(pRec.Value, sRec.Value):
		winner := s.resolve(key, pRec, sRec)
		if err := s.primary.Set(ctx, key, winner); err != nil {
			return err
		}
		if err := s.secondary.Set(ctx, key, winner); err != nil {
			return err
		}
		stats.ConflictsResolved++
	}
	return nil
}

func (s *Synchronizer) resolve(key string, primary, secondary Record) Record {
	switch s.strategy {
	case ConflictPrimary:
		return primary
	case ConflictSecondary:
		return secondary
	case ConflictCustom:
		if s.resolver != nil {
			return s.resolver(key, primary, secondary)
		}
		return primary
	default: // ConflictMostRecent
		if createdAtOf(secondary).After(createdAtOf(primary)) {
			return secondary
		}
		return primary
	}
}

// createdAtOf extracts the createdAt field fetchkit's Store[T] writes into
// every Record.Value (the JSON encoding of models.Entry). Records that
// don't decode (foreign data written outside Store[T]) sort as the zero
// time, so a well-formed entry always wins the comparison.
func createdAtOf(rec Record) time.Time {
	var probe struct {
		CreatedAt time.Time `json:"createdAt"`
	}
	if err := json.Unmarshal(rec.Value, &probe); err != nil {
		return time.Time{}
	}
	return probe.CreatedAt
}

// StartPeriodic launches a background goroutine calling SyncAll every
// interval until Stop is called.
func (s *Synchronizer) StartPeriodic(interval time.Duration, filter func(key string) bool) {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_, _ = s.SyncAll(context.Background(), filter)
			}
		}
	}()
}

// Stop ends a periodic sync loop started by StartPeriodic. Safe to call
// more than once or when no loop was started.
func (s *Synchronizer) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			close(stop)
		}
	})
}
