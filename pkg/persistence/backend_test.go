package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/o-tero/fetchkit/pkg/clock"
	"github.com/o-tero/fetchkit/pkg/fkerrors"
)

// newBackends returns one instance of every Backend implementation so the
// conformance tests below run against all of them identically. Badger and
// Bolt both run fully in memory / against a temp file for the duration of
// the test.
func newBackends(t *testing.T) map[string]Backend {
	t.Helper()

	mem := NewMemoryBackend(0, clock.System)

	bb, err := NewBadgerBackend(BadgerConfig{})
	if err != nil {
		t.Fatalf("open badger backend: %v", err)
	}
	t.Cleanup(func() { _ = bb.Close() })

	boltPath := t.TempDir() + "/fetchkit.bolt"
	bolt, err := NewBoltBackend(BoltConfig{Path: boltPath})
	if err != nil {
		t.Fatalf("open bolt backend: %v", err)
	}
	t.Cleanup(func() { _ = bolt.Close() })

	return map[string]Backend{
		"memory": mem,
		"badger": bb,
		"bolt":   bolt,
	}
}

func TestBackend_SetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, b := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			rec := Record{Value: []byte("hello"), Size: 5}
			if err := b.Set(ctx, "k1", rec); err != nil {
				t.Fatalf("set: %v", err)
			}
			got, ok, err := b.Get(ctx, "k1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !ok {
				t.Fatal("expected key to exist")
			}
			if string(got.Value) != "hello" {
				t.Fatalf("got value %q", got.Value)
			}
		})
	}
}

func TestBackend_GetMissingKey(t *testing.T) {
	ctx := context.Background()
	for name, b := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := b.Get(ctx, "missing")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if ok {
				t.Fatal("expected missing key to report not found")
			}
		})
	}
}

func TestBackend_ExpiredEntryNotReturned(t *testing.T) {
	ctx := context.Background()
	for name, b := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			rec := Record{Value: []byte("v"), Size: 1, ExpiresAt: time.Now().Add(-time.Minute)}
			if err := b.Set(ctx, "expired", rec); err != nil {
				t.Fatalf("set: %v", err)
			}
			_, ok, err := b.Get(ctx, "expired")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if ok {
				t.Fatal("expected expired entry to be hidden")
			}
		})
	}
}

func TestBackend_DeleteAndHas(t *testing.T) {
	ctx := context.Background()
	for name, b := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			_ = b.Set(ctx, "k", Record{Value: []byte("v"), Size: 1})
			has, err := b.Has(ctx, "k")
			if err != nil || !has {
				t.Fatalf("expected key present, has=%v err=%v", has, err)
			}
			existed, err := b.Delete(ctx, "k")
			if err != nil || !existed {
				t.Fatalf("expected delete to report existed, got %v err=%v", existed, err)
			}
			has, _ = b.Has(ctx, "k")
			if has {
				t.Fatal("expected key gone after delete")
			}
		})
	}
}

func TestBackend_ClearRemovesAllKeys(t *testing.T) {
	ctx := context.Background()
	for name, b := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			_ = b.Set(ctx, "a", Record{Value: []byte("1"), Size: 1})
			_ = b.Set(ctx, "b", Record{Value: []byte("2"), Size: 1})
			if err := b.Clear(ctx); err != nil {
				t.Fatalf("clear: %v", err)
			}
			keys, err := b.Keys(ctx)
			if err != nil {
				t.Fatalf("keys: %v", err)
			}
			if len(keys) != 0 {
				t.Fatalf("expected no keys after clear, got %v", keys)
			}
		})
	}
}

func TestBackend_GetSizeSumsRecords(t *testing.T) {
	ctx := context.Background()
	for name, b := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			_ = b.Set(ctx, "a", Record{Value: []byte("1"), Size: 10})
			_ = b.Set(ctx, "b", Record{Value: []byte("2"), Size: 20})
			size, err := b.GetSize(ctx)
			if err != nil {
				t.Fatalf("getSize: %v", err)
			}
			if size != 30 {
				t.Fatalf("expected total size 30, got %d", size)
			}
		})
	}
}

func TestMemoryBackend_QuotaExceededAfterCleanupRetry(t *testing.T) {
	ctx := context.Background()
	mc := clock.NewManual(time.Unix(0, 0))
	b := NewMemoryBackend(10, mc)

	if err := b.Set(ctx, "stale", Record{Value: []byte("x"), Size: 10, ExpiresAt: mc.Now().Add(time.Second)}); err != nil {
		t.Fatalf("set: %v", err)
	}
	mc.Advance(2 * time.Second)

	if err := b.Set(ctx, "fresh", Record{Value: []byte("y"), Size: 10}); err != nil {
		t.Fatalf("expected quota write to succeed after cleanup freed the expired entry: %v", err)
	}
	has, _ := b.Has(ctx, "stale")
	if has {
		t.Fatal("expected stale entry to have been cleaned up")
	}
}

func TestMemoryBackend_QuotaExceededReturnsErrAfterRetryFails(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(5, clock.System)
	if err := b.Set(ctx, "a", Record{Value: []byte("x"), Size: 5}); err != nil {
		t.Fatalf("set: %v", err)
	}
	err := b.Set(ctx, "b", Record{Value: []byte("y"), Size: 5})
	if !errors.Is(err, fkerrors.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestWithPrefix_StripsOnKeysButStoresNamespaced(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend(0, clock.System)
	p := WithPrefix(inner, "ns:")

	if err := p.Set(ctx, "a", Record{Value: []byte("1"), Size: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}

	innerKeys, _ := inner.Keys(ctx)
	if len(innerKeys) != 1 || innerKeys[0] != "ns:a" {
		t.Fatalf("expected inner backend to see namespaced key, got %v", innerKeys)
	}

	outerKeys, _ := p.Keys(ctx)
	if len(outerKeys) != 1 || outerKeys[0] != "a" {
		t.Fatalf("expected wrapped Keys to strip prefix, got %v", outerKeys)
	}
}

func TestNewEphemeralBackend_NeverTouchesDisk(t *testing.T) {
	ctx := context.Background()
	b := NewEphemeralBackend(0, "")
	if err := b.Set(ctx, "k", Record{Value: []byte("v"), Size: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	_, ok, err := b.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected ephemeral backend to round-trip in memory, ok=%v err=%v", ok, err)
	}
}

func TestBoltBackend_CleanupExpiredUsesIndex(t *testing.T) {
	ctx := context.Background()
	boltPath := t.TempDir() + "/cleanup.bolt"
	b, err := NewBoltBackend(BoltConfig{Path: boltPath, MaxSize: 10})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	if err := b.Set(ctx, "stale", Record{Value: []byte("x"), Size: 10, ExpiresAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatalf("set stale: %v", err)
	}
	if err := b.Set(ctx, "fresh", Record{Value: []byte("y"), Size: 10}); err != nil {
		t.Fatalf("expected write to succeed after cleanup evicted the expired entry: %v", err)
	}

	has, _ := b.Has(ctx, "stale")
	if has {
		t.Fatal("expected expired entry to have been cleaned up via the expiry index")
	}
}
