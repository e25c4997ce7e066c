package eventbus

import (
	"testing"
	"time"
)

func TestOnEmit(t *testing.T) {
	b := New()
	var got []string
	b.On(CacheHit, func(payload interface{}) {
		e := payload.(*CacheEvent)
		got = append(got, e.Fingerprint)
	})

	b.Emit(CacheHit, &CacheEvent{Version: EventVersion1, Fingerprint: "GET:/a", At: time.Now()})
	b.Emit(CacheHit, &CacheEvent{Version: EventVersion1, Fingerprint: "GET:/b", At: time.Now()})

	if len(got) != 2 || got[0] != "GET:/a" || got[1] != "GET:/b" {
		t.Fatalf("got %v", got)
	}
}

func TestOnceFiresOnlyOnce(t *testing.T) {
	b := New()
	count := 0
	b.Once(Debug, func(payload interface{}) { count++ })

	b.Emit(Debug, &DebugEvent{Message: "one"})
	b.Emit(Debug, &DebugEvent{Message: "two"})

	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if n := b.ListenerCount(Debug); n != 0 {
		t.Fatalf("ListenerCount = %d, want 0", n)
	}
}

func TestOnceSelfReEmitDoesNotRecurse(t *testing.T) {
	b := New()
	depth := 0
	b.Once(Debug, func(payload interface{}) {
		depth++
		if depth < 5 {
			b.Emit(Debug, &DebugEvent{Message: "again"})
		}
	})
	b.Emit(Debug, &DebugEvent{Message: "first"})
	if depth != 1 {
		t.Fatalf("depth = %d, want 1 (once listener removed before invocation)", depth)
	}
}

func TestOff(t *testing.T) {
	b := New()
	id := b.On(CacheMiss, func(payload interface{}) {})
	if n := b.ListenerCount(CacheMiss); n != 1 {
		t.Fatalf("ListenerCount = %d, want 1", n)
	}
	b.Off(CacheMiss, id)
	if n := b.ListenerCount(CacheMiss); n != 0 {
		t.Fatalf("ListenerCount = %d, want 0", n)
	}
}

func TestRemoveAllListeners(t *testing.T) {
	b := New()
	b.On(CacheSet, func(payload interface{}) {})
	b.On(CacheSet, func(payload interface{}) {})
	b.On(CacheEvict, func(payload interface{}) {})

	b.RemoveAllListeners(CacheSet)
	if n := b.ListenerCount(CacheSet); n != 0 {
		t.Fatalf("ListenerCount(CacheSet) = %d, want 0", n)
	}
	if n := b.ListenerCount(CacheEvict); n != 1 {
		t.Fatalf("ListenerCount(CacheEvict) = %d, want 1", n)
	}

	b.RemoveAllListeners("")
	if n := b.ListenerCount(CacheEvict); n != 0 {
		t.Fatalf("ListenerCount(CacheEvict) after global clear = %d, want 0", n)
	}
}

func TestCacheEventValidate(t *testing.T) {
	e := &CacheEvent{Version: EventVersion1}
	if err := e.Validate(); err == nil {
		t.Fatal("expected error for missing fingerprint")
	}
	e.Fingerprint = "GET:/a"
	if err := e.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
