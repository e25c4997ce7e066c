package eventbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventVersion1 is the current payload schema version. Mirrors the
// teacher's pkg/pubsub versioning convention: add fields in later versions,
// never remove, so an older listener can still decode a newer payload.
const EventVersion1 = 1

// NewRequestID returns a fresh correlation id for an emitted event. Grounded
// on pkg/middleware/logging.go's use of uuid for request correlation.
func NewRequestID() string {
	return uuid.NewString()
}

// RequestEvent accompanies request:start/success/error/complete.
type RequestEvent struct {
	Version     int       `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	RequestID   string    `json:"requestId"`
	Err         error     `json:"-"`
	ErrMessage  string    `json:"error,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	At          time.Time `json:"at"`
}

// Validate reports whether the event is well-formed.
func (e *RequestEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.Fingerprint == "" {
		return errors.New("fingerprint is required")
	}
	if e.At.IsZero() {
		return errors.New("at cannot be zero")
	}
	return nil
}

// CacheEvent accompanies cache:hit/miss/set/invalidate/evict.
type CacheEvent struct {
	Version     int       `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

func (e *CacheEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.Fingerprint == "" {
		return errors.New("fingerprint is required")
	}
	return nil
}

// CacheStatsEvent accompanies cache:stats snapshots.
type CacheStatsEvent struct {
	Version     int       `json:"version"`
	EntryCount  int       `json:"entryCount"`
	Size        int       `json:"size"`
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Evictions   int64     `json:"evictions"`
	Expirations int64     `json:"expirations"`
	HitRatio    float64   `json:"hitRatio"`
	At          time.Time `json:"at"`
}

// WarmEvent accompanies cache:warm:register/unregister/refresh.
type WarmEvent struct {
	Version     int       `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	Interval    time.Duration `json:"interval,omitempty"`
	At          time.Time `json:"at"`
}

func (e *WarmEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.Fingerprint == "" {
		return errors.New("fingerprint is required")
	}
	return nil
}

// RevalidateEvent accompanies cache:revalidate:start/success/error/throttled/debounced.
type RevalidateEvent struct {
	Version     int       `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	Attempt     int       `json:"attempt,omitempty"`
	ErrMessage  string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

func (e *RevalidateEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.Fingerprint == "" {
		return errors.New("fingerprint is required")
	}
	return nil
}

// InvalidationAuditEvent accompanies cache:invalidate once per invalidation
// batch (single key, matching, pattern, mutation-derived, or group), after
// the per-key CacheEvents, and carries everything pkg/audit needs to record
// a ring-buffer entry without cachemanager importing pkg/audit directly.
type InvalidationAuditEvent struct {
	Version     int       `json:"version"`
	Pattern     string    `json:"pattern,omitempty"`
	Keys        []string  `json:"keys"`
	TriggeredBy string    `json:"triggeredBy"`
	RequestID   string    `json:"requestId"`
	Latency     time.Duration `json:"latency"`
	At          time.Time `json:"at"`
}

func (e *InvalidationAuditEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if len(e.Keys) == 0 && e.Pattern == "" {
		return errors.New("at least one of keys or pattern must be set")
	}
	if e.TriggeredBy == "" {
		return errors.New("triggeredBy is required")
	}
	return nil
}

// DebugEvent accompanies the generic debug channel.
type DebugEvent struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ErrorEvent accompanies the generic error channel.
type ErrorEvent struct {
	Fingerprint string    `json:"fingerprint,omitempty"`
	Err         error     `json:"-"`
	At          time.Time `json:"at"`
}
