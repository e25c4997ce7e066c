package persistence

import (
	"context"
	"testing"
	"time"
)

func TestSynchronizer_CopiesMissingKeysBothWays(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryBackend(0, nil)
	secondary := NewMemoryBackend(0, nil)

	_ = primary.Set(ctx, "only-primary", Record{Value: []byte("p"), Size: 1})
	_ = secondary.Set(ctx, "only-secondary", Record{Value: []byte("s"), Size: 1})

	sync := NewSynchronizer(SynchronizerConfig{Primary: primary, Secondary: secondary})
	stats, err := sync.SyncAll(ctx, nil)
	if err != nil {
		t.Fatalf("syncAll: %v", err)
	}
	if stats.AddedToSecondary != 1 || stats.AddedToPrimary != 1 {
		t.Fatalf("expected one key copied each way, got %+v", stats)
	}

	if _, ok, _ := secondary.Get(ctx, "only-primary"); !ok {
		t.Fatal("expected only-primary to be copied to secondary")
	}
	if _, ok, _ := primary.Get(ctx, "only-secondary"); !ok {
		t.Fatal("expected only-secondary to be copied to primary")
	}
}

func TestSynchronizer_ConflictResolvedByMostRecent(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryBackend(0, nil)
	secondary := NewMemoryBackend(0, nil)

	_ = primary.Set(ctx, "k", Record{Value: []byte(`{"createdAt":"2024-01-01T00:00:00Z"}`), Size: 1})
	_ = secondary.Set(ctx, "k", Record{Value: []byte(`{"createdAt":"2025-01-01T00:00:00Z"}`), Size: 1})

	sync := NewSynchronizer(SynchronizerConfig{Primary: primary, Secondary: secondary, Strategy: ConflictMostRecent})
	stats, err := sync.SyncAll(ctx, nil)
	if err != nil {
		t.Fatalf("syncAll: %v", err)
	}
	if stats.ConflictsResolved != 1 {
		t.Fatalf("expected 1 conflict resolved, got %+v", stats)
	}

	pRec, _, _ := primary.Get(ctx, "k")
	sRec, _, _ := secondary.Get(ctx, "k")
	if string(pRec.Value) != string(sRec.Value) {
		t.Fatal("expected both backends to agree after resolution")
	}
	if string(pRec.Value) != `{"createdAt":"2025-01-01T00:00:00Z"}` {
		t.Fatalf("expected the more recent secondary record to win, got %q", pRec.Value)
	}
}

func TestSynchronizer_ConflictResolvedByCustomResolver(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryBackend(0, nil)
	secondary := NewMemoryBackend(0, nil)

	_ = primary.Set(ctx, "k", Record{Value: []byte("p"), Size: 1})
	_ = secondary.Set(ctx, "k", Record{Value: []byte("s"), Size: 1})

	sync := NewSynchronizer(SynchronizerConfig{
		Primary:   primary,
		Secondary: secondary,
		Strategy:  ConflictCustom,
		Resolver: func(key string, primary, secondary Record) Record {
			return secondary
		},
	})
	if _, err := sync.SyncAll(ctx, nil); err != nil {
		t.Fatalf("syncAll: %v", err)
	}

	rec, _, _ := primary.Get(ctx, "k")
	if string(rec.Value) != "s" {
		t.Fatalf("expected custom resolver's choice to win, got %q", rec.Value)
	}
}

func TestSynchronizer_NonReentrant(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryBackend(0, nil)
	secondary := NewMemoryBackend(0, nil)
	sync := NewSynchronizer(SynchronizerConfig{Primary: primary, Secondary: secondary})

	sync.mu.Lock()
	sync.running = true
	sync.mu.Unlock()

	stats, err := sync.SyncAll(ctx, nil)
	if err != nil {
		t.Fatalf("syncAll: %v", err)
	}
	if stats != (SyncStats{}) {
		t.Fatalf("expected a no-op run while already running, got %+v", stats)
	}
}

func TestSynchronizer_MarkForSyncPicksUpDirtyKey(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryBackend(0, nil)
	secondary := NewMemoryBackend(0, nil)
	sync := NewSynchronizer(SynchronizerConfig{Primary: primary, Secondary: secondary})

	_ = primary.Set(ctx, "dirty-key", Record{Value: []byte("v"), Size: 1})
	sync.MarkForSync("dirty-key")

	stats, err := sync.SyncAll(ctx, nil)
	if err != nil {
		t.Fatalf("syncAll: %v", err)
	}
	if stats.AddedToSecondary != 1 {
		t.Fatalf("expected dirty key to be synced, got %+v", stats)
	}
}

func TestSynchronizer_StartPeriodicRunsAndStops(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryBackend(0, nil)
	secondary := NewMemoryBackend(0, nil)
	sync := NewSynchronizer(SynchronizerConfig{Primary: primary, Secondary: secondary})

	_ = primary.Set(ctx, "k", Record{Value: []byte("v"), Size: 1})
	sync.StartPeriodic(10*time.Millisecond, nil)
	defer sync.Stop()

	waitForCondition(t, time.Second, func() bool {
		_, ok, _ := secondary.Get(ctx, "k")
		return ok
	})
}
