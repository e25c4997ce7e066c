// Package memcache is fetchkit's bounded in-process memory cache (spec
// C3): a map of fingerprint to Entry plus slot metadata, pluggable
// eviction policy, size accounting, and hit/miss/eviction statistics.
//
// Grounded on cache-manager/cache.go's L1Cache: a single sync.Mutex guards
// the map; eviction ranks every slot by the active policy (an O(n) scan per
// eviction) and a container/list records insertion order. Same
// trade-off the teacher documents ("global lock on write acceptable for
// <100K ops/sec; shard for higher loads") — see sharded.go for the sharded
// variant built on pkg/utils.HashRing for the higher-load case.
package memcache

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	"github.com/o-tero/fetchkit/pkg/clock"
	"github.com/o-tero/fetchkit/pkg/eventbus"
	"github.com/o-tero/fetchkit/pkg/models"
)

// SizeEstimator approximates the in-memory cost of a cached value in
// bytes. The default mirrors spec.md §4.2: serialized length × 2 (a UTF-16
// proxy), matching pkg/utils.EstimateUTF16Size.
type SizeEstimator func(data interface{}) int

// DefaultSizeEstimator JSON-encodes data and doubles its length.
func DefaultSizeEstimator(data interface{}) int {
	b, err := json.Marshal(data)
	if err != nil {
		return 0
	}
	return len(b) * 2
}

// Config configures a Cache. MaxEntries and MaxSize of 0 disable that
// bound entirely (spec.md §8 boundary behavior).
type Config struct {
	MaxEntries      int
	MaxSize         int
	Policy          Policy
	SizeEstimator   SizeEstimator
	CleanupInterval time.Duration
	Clock           clock.Clock
	Bus             *eventbus.Bus
}

// DefaultConfig returns a Config with no bounds, LRU eviction, the default
// size estimator, no periodic cleanup, and the system clock — matching the
// teacher's DefaultConfig() convention (cache-manager/service.go,
// warming/service.go).
func DefaultConfig() Config {
	return Config{
		Policy:        PolicyLRU,
		SizeEstimator: DefaultSizeEstimator,
		Clock:         clock.System,
	}
}

type slot[T any] struct {
	entry   models.Entry[T]
	meta    models.Meta
	seq     uint64
	element *list.Element
}

// Cache is a bounded, thread-safe store of Entry[T] values keyed by
// fingerprint, with pluggable eviction (spec C3).
type Cache[T any] struct {
	mu sync.Mutex

	entries map[string]*slot[T]
	order   *list.List // insertion order of keys; eviction ties are broken by slot seq

	maxEntries    int
	maxSize       int
	currentSize   int
	policy        Policy
	sizeEstimator SizeEstimator
	clock         clock.Clock
	bus           *eventbus.Bus

	seqCounter uint64

	hits, misses, evictions, expirations int64

	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// New constructs a Cache[T] from cfg, filling in DefaultConfig's zero
// values for any field left unset.
func New[T any](cfg Config) *Cache[T] {
	if cfg.Policy == "" {
		cfg.Policy = PolicyLRU
	}
	if cfg.SizeEstimator == nil {
		cfg.SizeEstimator = DefaultSizeEstimator
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}

	c := &Cache[T]{
		entries:       make(map[string]*slot[T]),
		order:         list.New(),
		maxEntries:    cfg.MaxEntries,
		maxSize:       cfg.MaxSize,
		policy:        cfg.Policy,
		sizeEstimator: cfg.SizeEstimator,
		clock:         cfg.Clock,
		bus:           cfg.Bus,
	}

	if cfg.CleanupInterval > 0 {
		c.startCleanup(cfg.CleanupInterval)
	}

	return c
}

// Set inserts or overwrites the entry for key. If key already held a live
// entry, AccessCount and RevalidationCount carry forward per spec.md §4.2
// ("certain entry fields... carry forward") and §9's Open Question
// resolution (a successful write/revalidation preserves AccessCount).
func (c *Cache[T]) Set(key string, data T, staleTime, cacheTime time.Duration) {
	now := c.clock.Now()
	size := c.sizeEstimator(data)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := models.New(data, now, staleTime, cacheTime)

	if existing, ok := c.entries[key]; ok {
		entry.AccessCount = existing.entry.AccessCount
		entry.RevalidationCount = existing.entry.RevalidationCount
		c.currentSize -= existing.meta.Size
		existing.entry = entry
		existing.meta.Size = size
		existing.meta.Created = now
		existing.meta.LastAccessed = now
		c.currentSize += size
		c.enforceBoundsLocked()
		c.emit(eventbus.CacheSet, key)
		return
	}

	c.seqCounter++
	s := &slot[T]{
		entry: entry,
		meta: models.Meta{
			Created:      now,
			LastAccessed: now,
			AccessCount:  0,
			Size:         size,
		},
		seq: c.seqCounter,
	}
	s.element = c.order.PushBack(key)
	c.entries[key] = s
	c.currentSize += size

	c.enforceBoundsLocked()
	c.emit(eventbus.CacheSet, key)
}

// Get returns the live value for key, updating access bookkeeping. An
// expired slot is deleted and reported as a miss, never returned.
func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.entries[key]
	if !ok {
		c.misses++
		c.emitUnlocked(eventbus.CacheMiss, key)
		return zero, false
	}
	if s.entry.IsExpired(now) {
		c.deleteLocked(key)
		c.expirations++
		c.misses++
		c.emitUnlocked(eventbus.CacheMiss, key)
		return zero, false
	}

	c.touchLocked(s, now)
	c.hits++
	c.emitUnlocked(eventbus.CacheHit, key)
	return s.entry.Data, true
}

// Has reports whether key holds a live, unexpired entry, without returning
// the value. A live entry's access bookkeeping is still updated, per
// spec.md §9's Open Question resolution.
func (c *Cache[T]) Has(key string) bool {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.entries[key]
	if !ok {
		return false
	}
	if s.entry.IsExpired(now) {
		c.deleteLocked(key)
		c.expirations++
		return false
	}
	c.touchLocked(s, now)
	return true
}

func (c *Cache[T]) touchLocked(s *slot[T], now time.Time) {
	s.meta.LastAccessed = now
	s.meta.AccessCount++
	s.entry.AccessCount = s.meta.AccessCount
}

// Update mutates the entry at key in place via fn, without touching access
// bookkeeping. Used by cachemanager to transition isRevalidating,
// lastRevalidatedAt, and revalidationCount. Reports false if key is
// missing.
func (c *Cache[T]) Update(key string, fn func(e *models.Entry[T])) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.entries[key]
	if !ok {
		return false
	}
	fn(&s.entry)
	return true
}

// Peek returns the entry at key without affecting expiry, stats, or access
// bookkeeping. Used internally by cachemanager to inspect freshness.
func (c *Cache[T]) Peek(key string) (models.Entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[key]
	if !ok {
		return models.Entry[T]{}, false
	}
	return s.entry, true
}

// Delete removes key unconditionally, reporting whether it was present.
func (c *Cache[T]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteLocked(key)
}

func (c *Cache[T]) deleteLocked(key string) bool {
	s, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(s.element)
	delete(c.entries, key)
	c.currentSize -= s.meta.Size
	if c.currentSize < 0 {
		c.currentSize = 0
	}
	return true
}

// Clear removes every entry, resetting size accounting. Hit/miss/eviction
// counters are left intact.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*slot[T])
	c.order = list.New()
	c.currentSize = 0
}

// Keys returns every live key, including ones that have expired but not
// yet been swept by Cleanup.
func (c *Cache[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Cleanup sweeps every expired slot and returns the number removed.
func (c *Cache[T]) Cleanup() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []string
	for k, s := range c.entries {
		if s.entry.IsExpired(now) {
			expired = append(expired, k)
		}
	}
	for _, k := range expired {
		c.deleteLocked(k)
	}
	c.expirations += int64(len(expired))
	return len(expired)
}

// GetStats returns a point-in-time snapshot of cache counters.
func (c *Cache[T]) GetStats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CacheStats{
		EntryCount:  len(c.entries),
		Size:        c.currentSize,
		MaxSize:     c.maxSize,
		MaxEntries:  c.maxEntries,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		HitRatio:    models.ComputeHitRatio(c.hits, c.misses),
	}
}

// Dispose stops the periodic cleanup task, if one was configured. Safe to
// call more than once.
func (c *Cache[T]) Dispose() {
	c.mu.Lock()
	stop := c.cleanupStop
	done := c.cleanupDone
	c.cleanupStop = nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (c *Cache[T]) startCleanup(interval time.Duration) {
	c.cleanupStop = make(chan struct{})
	c.cleanupDone = make(chan struct{})
	stop := c.cleanupStop
	done := c.cleanupDone

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}

// enforceBoundsLocked evicts entries in policy order until both bounds
// hold, accounting for whatever was just inserted/updated. Caller must
// hold c.mu.
func (c *Cache[T]) enforceBoundsLocked() {
	for c.overBoundsLocked() {
		key, ok := c.pickEvictionCandidateLocked()
		if !ok {
			return
		}
		c.deleteLocked(key)
		c.evictions++
		c.emitUnlocked(eventbus.CacheEvict, key)
	}
}

func (c *Cache[T]) overBoundsLocked() bool {
	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		return true
	}
	if c.maxSize > 0 && c.currentSize > c.maxSize {
		return true
	}
	return false
}

// pickEvictionCandidateLocked finds the key ranked lowest by the active
// policy, breaking ties by insertion sequence (spec.md §4.2).
func (c *Cache[T]) pickEvictionCandidateLocked() (string, bool) {
	rank := rankFunc(c.policy)

	var bestKey string
	var bestRank int64
	var bestSeq uint64
	found := false

	for k, s := range c.entries {
		r := rank(slotMeta{
			key:          k,
			seq:          s.seq,
			created:      s.meta.Created,
			lastAccessed: s.meta.LastAccessed,
			accessCount:  s.meta.AccessCount,
			expiresAt:    s.entry.ExpiresAt,
		})
		if !found || r < bestRank || (r == bestRank && s.seq < bestSeq) {
			bestKey, bestRank, bestSeq, found = k, r, s.seq, true
		}
	}
	return bestKey, found
}

func (c *Cache[T]) emit(name eventbus.Name, fingerprint string) {
	if c.bus == nil {
		return
	}
	c.bus.Emit(name, &eventbus.CacheEvent{
		Version:     eventbus.EventVersion1,
		Fingerprint: fingerprint,
		At:          c.clock.Now(),
	})
}

// emitUnlocked is identical to emit; it exists as a separate name at call
// sites that already hold c.mu, documenting that emit itself never touches
// the mutex (event listeners must not call back into the Cache
// synchronously, or they will deadlock).
func (c *Cache[T]) emitUnlocked(name eventbus.Name, fingerprint string) {
	c.emit(name, fingerprint)
}
