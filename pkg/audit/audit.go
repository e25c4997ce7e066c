// Package audit is fetchkit's invalidation audit trail, a supplement to
// spec.md's core modules: a ring-buffered in-memory log of every
// invalidation cachemanager performs, queryable by pattern, request id, or
// time range.
//
// Grounded on invalidation/audit.go's AuditLogger: the same Insert/
// GetRecent/GetCount/GetByRequestID/GetByTimeRange/GetStats/Cleanup
// surface, but backed by a fixed-capacity ring buffer instead of a
// Postgres table — a client library has no database of its own to write
// to, and spec.md's own persistence backends (pkg/persistence) are for
// cached values, not telemetry. Log subscribes to eventbus.CacheInvalidate
// rather than cachemanager calling into it directly, so cachemanager has
// no audit dependency at all.
package audit

import (
	"strings"
	"sync"
	"time"

	"github.com/o-tero/fetchkit/pkg/eventbus"
)

// Entry is one recorded invalidation.
type Entry struct {
	Pattern     string
	Keys        []string
	TriggeredBy string
	Timestamp   time.Time
	RequestID   string
	Latency     time.Duration
}

// Stats aggregates entries recorded since a given time.
type Stats struct {
	TotalInvalidations  int64
	BySource            map[string]int64
	AvgLatency          time.Duration
	TotalKeysAffected   int64
	MostFrequentPattern string
}

// Log is a fixed-capacity, append-only ring buffer of invalidation Entry
// records. Safe for concurrent use. The zero value is not usable;
// construct with New.
type Log struct {
	mu   sync.Mutex
	buf  []Entry
	cap  int
	next int // next write position
	size int // number of live entries, <= cap
}

// New constructs a Log that retains at most capacity entries, discarding
// the oldest on overflow. A non-positive capacity is treated as 1000, the
// teacher's implicit working size before Cleanup is expected to run.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Log{buf: make([]Entry, capacity), cap: capacity}
}

// Subscribe wires Log to bus's invalidation channel, so every
// cachemanager.Manager sharing bus is recorded without cachemanager
// importing this package.
func Subscribe(bus *eventbus.Bus, l *Log) eventbus.SubscriptionID {
	return bus.On(eventbus.CacheInvalidate, func(payload interface{}) {
		ev, ok := payload.(*eventbus.InvalidationAuditEvent)
		if !ok {
			return
		}
		l.Insert(Entry{
			Pattern:     ev.Pattern,
			Keys:        ev.Keys,
			TriggeredBy: ev.TriggeredBy,
			Timestamp:   ev.At,
			RequestID:   ev.RequestID,
			Latency:     ev.Latency,
		})
	})
}

// Insert appends e, evicting the oldest entry if the log is at capacity.
func (l *Log) Insert(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.next] = e
	l.next = (l.next + 1) % l.cap
	if l.size < l.cap {
		l.size++
	}
}

// snapshotLocked returns entries oldest-to-newest. Caller must hold l.mu.
func (l *Log) snapshotLocked() []Entry {
	out := make([]Entry, l.size)
	start := (l.next - l.size + l.cap) % l.cap
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(start+i)%l.cap]
	}
	return out
}

// GetRecent returns up to limit entries newest-first, skipping offset,
// optionally restricted to entries whose Pattern contains patternFilter.
func (l *Log) GetRecent(limit, offset int, patternFilter string) []Entry {
	l.mu.Lock()
	all := l.snapshotLocked()
	l.mu.Unlock()

	var matched []Entry
	for i := len(all) - 1; i >= 0; i-- { // newest first
		e := all[i]
		if patternFilter != "" && !strings.Contains(e.Pattern, patternFilter) {
			continue
		}
		matched = append(matched, e)
	}

	if offset >= len(matched) {
		return nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched
}

// GetCount reports how many entries match patternFilter ("" matches all).
func (l *Log) GetCount(patternFilter string) int {
	l.mu.Lock()
	all := l.snapshotLocked()
	l.mu.Unlock()

	if patternFilter == "" {
		return len(all)
	}
	n := 0
	for _, e := range all {
		if strings.Contains(e.Pattern, patternFilter) {
			n++
		}
	}
	return n
}

// GetByRequestID returns every entry correlated to requestID, newest
// first.
func (l *Log) GetByRequestID(requestID string) []Entry {
	l.mu.Lock()
	all := l.snapshotLocked()
	l.mu.Unlock()

	var out []Entry
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].RequestID == requestID {
			out = append(out, all[i])
		}
	}
	return out
}

// GetByTimeRange returns up to limit entries with Timestamp in [start,
// end], newest first.
func (l *Log) GetByTimeRange(start, end time.Time, limit int) []Entry {
	l.mu.Lock()
	all := l.snapshotLocked()
	l.mu.Unlock()

	var out []Entry
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if e.Timestamp.Before(start) || e.Timestamp.After(end) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// GetStats aggregates every entry recorded at or after since.
func (l *Log) GetStats(since time.Time) Stats {
	l.mu.Lock()
	all := l.snapshotLocked()
	l.mu.Unlock()

	stats := Stats{BySource: make(map[string]int64)}
	patternFreq := make(map[string]int64)
	var totalLatency time.Duration

	for _, e := range all {
		if e.Timestamp.Before(since) {
			continue
		}
		stats.TotalInvalidations++
		stats.BySource[e.TriggeredBy]++
		stats.TotalKeysAffected += int64(len(e.Keys))
		totalLatency += e.Latency
		if e.Pattern != "" {
			patternFreq[e.Pattern]++
		}
	}

	if stats.TotalInvalidations > 0 {
		stats.AvgLatency = totalLatency / time.Duration(stats.TotalInvalidations)
	}

	var bestCount int64
	for pattern, count := range patternFreq {
		if count > bestCount {
			bestCount = count
			stats.MostFrequentPattern = pattern
		}
	}
	return stats
}

// Cleanup drops entries older than olderThan relative to now, returning
// the number removed. Because Log is a fixed-capacity ring buffer rather
// than an unbounded table, this is most useful right before GetStats on a
// Log that callers want to logically truncate rather than simply letting
// old entries age out of the ring naturally.
func (l *Log) Cleanup(olderThan time.Duration, now time.Time) int {
	cutoff := now.Add(-olderThan)

	l.mu.Lock()
	defer l.mu.Unlock()

	all := l.snapshotLocked()
	kept := all[:0]
	for _, e := range all {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(all) - len(kept)

	l.buf = make([]Entry, l.cap)
	l.next = 0
	l.size = 0
	for _, e := range kept {
		l.buf[l.next] = e
		l.next = (l.next + 1) % l.cap
		if l.size < l.cap {
			l.size++
		}
	}
	return removed
}
