package persistence

import (
	"context"

	"github.com/o-tero/fetchkit/pkg/models"
	"github.com/o-tero/fetchkit/pkg/utils"
)

// Store is the generic, typed view over a Backend (spec C5 contract,
// typed): it marshals/unmarshals models.Entry[T] to/from Record.Value and
// derives Record.Size/ExpiresAt from the entry, so callers never touch
// raw bytes.
type Store[T any] struct {
	backend Backend
}

// NewStore wraps backend with Entry[T] marshaling.
func NewStore[T any](backend Backend) *Store[T] {
	return &Store[T]{backend: backend}
}

// Set serializes entry and writes it under key.
func (s *Store[T]) Set(ctx context.Context, key string, entry models.Entry[T]) error {
	data, err := utils.MarshalEntry(&entry)
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, key, Record{
		Value:     data,
		Size:      utils.EstimateUTF16Size(data),
		ExpiresAt: entry.ExpiresAt,
	})
}

// Get reads and deserializes the entry at key.
func (s *Store[T]) Get(ctx context.Context, key string) (models.Entry[T], bool, error) {
	rec, ok, err := s.backend.Get(ctx, key)
	if err != nil || !ok {
		return models.Entry[T]{}, false, err
	}
	entry, err := utils.UnmarshalEntry[T](rec.Value)
	if err != nil {
		return models.Entry[T]{}, false, err
	}
	return *entry, true, nil
}

// Has reports whether key holds a live entry.
func (s *Store[T]) Has(ctx context.Context, key string) (bool, error) {
	return s.backend.Has(ctx, key)
}

// Delete removes key, reporting whether it existed.
func (s *Store[T]) Delete(ctx context.Context, key string) (bool, error) {
	return s.backend.Delete(ctx, key)
}

// Clear removes every entry.
func (s *Store[T]) Clear(ctx context.Context) error {
	return s.backend.Clear(ctx)
}

// Keys lists every stored key.
func (s *Store[T]) Keys(ctx context.Context) ([]string, error) {
	return s.backend.Keys(ctx)
}

// GetSize reports the total serialized size of everything stored.
func (s *Store[T]) GetSize(ctx context.Context) (int, error) {
	return s.backend.GetSize(ctx)
}

// Close releases the underlying backend's resources.
func (s *Store[T]) Close() error {
	return s.backend.Close()
}

// Backend exposes the untyped Backend this Store wraps, for callers that
// need to build a Synchronizer, FallbackChain member, or run Migrate
// directly against it.
func (s *Store[T]) Backend() Backend {
	return s.backend
}
