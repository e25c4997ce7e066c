// Package utils provides serialization and cache-key utilities shared by
// fetchkit's memory cache, persistence backends, and invalidation logic.
//
// This file implements marshal/unmarshal helpers for cache entries and
// events.
//
// Design Notes:
//   - JSON is the only supported wire format (stdlib, portable, debuggable);
//     it is also what the persistence contract in spec.md §4.4 specifies.
//   - All encoding errors include context for debugging.
//
// Trade-offs:
//   - JSON over a binary format: slower and larger, but this is a client
//     library whose persisted payloads are small and whose readability
//     during development matters more than shaving microseconds.
package utils

import (
	"encoding/json"
	"fmt"

	"github.com/o-tero/fetchkit/pkg/models"
)

// MarshalEntry serializes a cache entry to bytes.
func MarshalEntry[T any](e *models.Entry[T]) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("cannot marshal nil entry")
	}
	return json.Marshal(e)
}

// UnmarshalEntry deserializes a cache entry from bytes.
func UnmarshalEntry[T any](data []byte) (*models.Entry[T], error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var entry models.Entry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	return &entry, nil
}

// MarshalEvent serializes an event to bytes. Generic over any event type.
func MarshalEvent(event interface{}) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("cannot marshal nil event")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return data, nil
}

// UnmarshalEvent deserializes an event from bytes into the provided pointer.
func UnmarshalEvent(data []byte, event interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("cannot unmarshal empty data")
	}
	if event == nil {
		return fmt.Errorf("event pointer cannot be nil")
	}
	if err := json.Unmarshal(data, event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return nil
}

// MarshalJSON is a convenience wrapper for encoding arbitrary data. Used for
// cache values, query params, and request bodies when building fingerprints.
func MarshalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

// UnmarshalJSON is a convenience wrapper for decoding arbitrary data.
func UnmarshalJSON(data []byte, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("cannot unmarshal empty data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

// EstimateEncodedSize estimates the encoded size of a value in bytes.
// This is approximate and used for memory accounting in pkg/memcache's
// default size estimator.
func EstimateEncodedSize(v interface{}) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}

// EstimateUTF16Size mirrors spec.md §4.4's persistence size accounting:
// serialized-character-count times two, approximating a UTF-16 proxy for
// bytes a browser engine would actually charge against quota. Persistence
// backends use this instead of EstimateEncodedSize.
func EstimateUTF16Size(data []byte) int {
	return len(data) * 2
}
