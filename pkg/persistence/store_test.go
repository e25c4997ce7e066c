package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/o-tero/fetchkit/pkg/models"
)

func TestStore_SetGetRoundTripsEntry(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0, nil)
	store := NewStore[string](backend)

	now := time.Unix(1_700_000_000, 0)
	entry := models.New[string]("hello", now, time.Minute, time.Hour)

	if err := store.Set(ctx, "k", entry); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Data != "hello" {
		t.Fatalf("expected data hello, got %q", got.Data)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("expected createdAt to round-trip, got %v", got.CreatedAt)
	}
}

func TestStore_DerivesRecordExpiryFromEntry(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0, nil)
	store := NewStore[string](backend)

	now := time.Unix(1_700_000_000, 0)
	entry := models.New[string]("v", now, time.Minute, time.Hour)

	if err := store.Set(ctx, "k", entry); err != nil {
		t.Fatalf("set: %v", err)
	}

	rec, ok, err := backend.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected raw backend get to succeed, ok=%v err=%v", ok, err)
	}
	if !rec.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected record ExpiresAt to match entry ExpiresAt, got %v", rec.ExpiresAt)
	}
}

func TestStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0, nil)
	store := NewStore[string](backend)
	now := time.Unix(1_700_000_000, 0)

	_ = store.Set(ctx, "a", models.New[string]("1", now, time.Minute, time.Hour))
	_ = store.Set(ctx, "b", models.New[string]("2", now, time.Minute, time.Hour))

	existed, err := store.Delete(ctx, "a")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Fatal("expected a to be gone")
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys after clear, got %v", keys)
	}
}
