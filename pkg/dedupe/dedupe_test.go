package dedupe

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDedupe_CoalescesConcurrentCallers(t *testing.T) {
	d := New[string]()
	var calls int32

	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]string, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			v, err := d.Dedupe("K", func() (string, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(20 * time.Millisecond)
				return "R", nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = v
		}(i)
	}
	close(start)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("producer invoked %d times, want 1", got)
	}
	for _, r := range results {
		if r != "R" {
			t.Fatalf("expected all callers to get %q, got %q", "R", r)
		}
	}
}

func TestDedupe_ClearsOnError(t *testing.T) {
	d := New[string]()
	_, err := d.Dedupe("K", func() (string, error) {
		return "", errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if d.IsInFlight("K") {
		t.Fatal("expected in-flight record cleared after error settlement")
	}
}

func TestIsInFlight_DuringCall(t *testing.T) {
	d := New[string]()
	started := make(chan struct{})
	release := make(chan struct{})

	go d.Dedupe("K", func() (string, error) {
		close(started)
		<-release
		return "R", nil
	})

	<-started
	if !d.IsInFlight("K") {
		t.Fatal("expected IsInFlight true while producer runs")
	}
	if n := d.InFlightCount(); n != 1 {
		t.Fatalf("InFlightCount = %d, want 1", n)
	}
	close(release)
}

func TestClearInFlightRequests_DoesNotAbortWork(t *testing.T) {
	d := New[string]()
	done := make(chan string, 1)
	started := make(chan struct{})

	go func() {
		v, _ := d.Dedupe("K", func() (string, error) {
			close(started)
			time.Sleep(10 * time.Millisecond)
			return "R", nil
		})
		done <- v
	}()

	<-started
	d.ClearInFlightRequests()
	if d.IsInFlight("K") {
		t.Fatal("expected tracking cleared")
	}

	select {
	case v := <-done:
		if v != "R" {
			t.Fatalf("got %q, want R", v)
		}
	case <-time.After(time.Second):
		t.Fatal("producer never completed")
	}
}
