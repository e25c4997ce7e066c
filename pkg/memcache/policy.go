package memcache

import "time"

// Policy selects which live entry to evict first when a bound is exceeded
// (spec.md §4.2). Exactly one policy is active per Cache.
type Policy string

const (
	// PolicyLRU evicts the entry with the oldest LastAccessed first.
	PolicyLRU Policy = "lru"
	// PolicyLFU evicts the entry with the lowest AccessCount first.
	PolicyLFU Policy = "lfu"
	// PolicyFIFO evicts the entry with the oldest Created time first.
	PolicyFIFO Policy = "fifo"
	// PolicyTTL evicts the entry with the earliest ExpiresAt first. An
	// entry that never expires (zero ExpiresAt) sorts last.
	PolicyTTL Policy = "ttl"
)

// rankFunc returns a comparable key for a slot such that smaller values
// are evicted first. Ties are broken by insertion sequence, handled by the
// caller.
func rankFunc(policy Policy) func(m slotMeta) int64 {
	switch policy {
	case PolicyLFU:
		return func(m slotMeta) int64 { return m.accessCount }
	case PolicyFIFO:
		return func(m slotMeta) int64 { return m.created.UnixNano() }
	case PolicyTTL:
		return func(m slotMeta) int64 {
			if m.expiresAt.IsZero() {
				return int64(^uint64(0) >> 1) // never-expiring entries sort last
			}
			return m.expiresAt.UnixNano()
		}
	case PolicyLRU:
		fallthrough
	default:
		return func(m slotMeta) int64 { return m.lastAccessed.UnixNano() }
	}
}

// slotMeta is the subset of bookkeeping rankFunc needs, extracted from a
// slot so the eviction scan doesn't depend on memcache's internal slot
// layout.
type slotMeta struct {
	key          string
	seq          uint64
	created      time.Time
	lastAccessed time.Time
	accessCount  int64
	expiresAt    time.Time
}
