package persistence

import (
	"context"
	"testing"
	"time"
)

func TestOptimizedBackend_GetServesFromFrontCacheWithoutTouchingInner(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend(0, nil)
	opt, err := NewOptimizedBackend(ctx, inner, OptimizedConfig{WriteDelay: time.Hour, MaxPendingWrites: 1000})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer opt.Close()

	if err := opt.Set(ctx, "k", Record{Value: []byte("v"), Size: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}

	rec, ok, err := opt.Get(ctx, "k")
	if err != nil || !ok || string(rec.Value) != "v" {
		t.Fatalf("expected front-cache hit, ok=%v err=%v rec=%+v", ok, err, rec)
	}

	if _, ok, _ := inner.Get(ctx, "k"); ok {
		t.Fatal("expected inner backend to not yet have the write (long writeDelay, below maxPendingWrites)")
	}
}

func TestOptimizedBackend_FlushesAfterWriteDelay(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend(0, nil)
	opt, err := NewOptimizedBackend(ctx, inner, OptimizedConfig{WriteDelay: 10 * time.Millisecond, MaxPendingWrites: 1000})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer opt.Close()

	if err := opt.Set(ctx, "k", Record{Value: []byte("v"), Size: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}

	waitForCondition(t, time.Second, func() bool {
		_, ok, _ := inner.Get(ctx, "k")
		return ok
	})
}

func TestOptimizedBackend_FlushesImmediatelyAtMaxPendingWrites(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend(0, nil)
	opt, err := NewOptimizedBackend(ctx, inner, OptimizedConfig{WriteDelay: time.Hour, MaxPendingWrites: 2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer opt.Close()

	_ = opt.Set(ctx, "a", Record{Value: []byte("1"), Size: 1})
	_ = opt.Set(ctx, "b", Record{Value: []byte("2"), Size: 1})

	if _, ok, _ := inner.Get(ctx, "a"); !ok {
		t.Fatal("expected a to have been flushed once maxPendingWrites was reached")
	}
	if _, ok, _ := inner.Get(ctx, "b"); !ok {
		t.Fatal("expected b to have been flushed once maxPendingWrites was reached")
	}
}

func TestOptimizedBackend_PendingDeleteHidesInnerValue(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend(0, nil)
	_ = inner.Set(ctx, "k", Record{Value: []byte("v"), Size: 1})

	opt, err := NewOptimizedBackend(ctx, inner, OptimizedConfig{WriteDelay: time.Hour, MaxPendingWrites: 1000})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer opt.Close()

	if _, err := opt.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, ok, _ := opt.Get(ctx, "k"); ok {
		t.Fatal("expected pending delete to hide the inner value")
	}
}

func TestOptimizedBackend_FlushDrainsPendingOperations(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend(0, nil)
	opt, err := NewOptimizedBackend(ctx, inner, OptimizedConfig{WriteDelay: time.Hour, MaxPendingWrites: 1000})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer opt.Close()

	_ = opt.Set(ctx, "a", Record{Value: []byte("1"), Size: 1})
	if err := opt.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if _, ok, _ := inner.Get(ctx, "a"); !ok {
		t.Fatal("expected flush to drain the pending write")
	}
}

func TestOptimizedBackend_GetSizeForcesFlush(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend(0, nil)
	opt, err := NewOptimizedBackend(ctx, inner, OptimizedConfig{WriteDelay: time.Hour, MaxPendingWrites: 1000})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer opt.Close()

	_ = opt.Set(ctx, "a", Record{Value: []byte("1"), Size: 10})
	size, err := opt.GetSize(ctx)
	if err != nil {
		t.Fatalf("getSize: %v", err)
	}
	if size != 10 {
		t.Fatalf("expected getSize to reflect the flushed write, got %d", size)
	}
}

func TestOptimizedBackend_PreloadSeedsFrontCache(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend(0, nil)
	_ = inner.Set(ctx, "warm", Record{Value: []byte("v"), Size: 1})

	opt, err := NewOptimizedBackend(ctx, inner, OptimizedConfig{PreloadKeys: []string{"warm"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer opt.Close()

	rec, ok := opt.front.Get("warm")
	if !ok || string(rec.Value) != "v" {
		t.Fatalf("expected preload to seed the front cache, ok=%v rec=%+v", ok, rec)
	}
}
