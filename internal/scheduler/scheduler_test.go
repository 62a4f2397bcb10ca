package scheduler

import (
	"sync"
	"testing"
	"time"
)

func TestReschedulingSameTagOnlyRunsLatest(t *testing.T) {
	s := New()
	var mu sync.Mutex
	var ran []string

	s.Schedule("x", 20*time.Millisecond, func() {
		mu.Lock()
		ran = append(ran, "first")
		mu.Unlock()
	})
	s.Schedule("x", 20*time.Millisecond, func() {
		mu.Lock()
		ran = append(ran, "second")
		mu.Unlock()
	})

	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 1 || ran[0] != "second" {
		t.Fatalf("expected only second to run, got %v", ran)
	}
}

func TestCancelPreventsRun(t *testing.T) {
	s := New()
	ran := false
	s.Schedule("y", 10*time.Millisecond, func() { ran = true })
	s.Cancel("y")
	time.Sleep(40 * time.Millisecond)
	if ran {
		t.Fatalf("expected canceled task not to run")
	}
}

func TestCancelAllDrainsEverything(t *testing.T) {
	s := New()
	ranCount := 0
	var mu sync.Mutex
	for i := 0; i < 5; i++ {
		s.Schedule(string(rune('a'+i)), 10*time.Millisecond, func() {
			mu.Lock()
			ranCount++
			mu.Unlock()
		})
	}
	s.CancelAll()
	time.Sleep(40 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if ranCount != 0 {
		t.Fatalf("expected no tasks to run after CancelAll, got %d", ranCount)
	}
}

func TestCallbackPanicIsSwallowed(t *testing.T) {
	s := New()
	done := make(chan struct{})
	s.Schedule("panics", 5*time.Millisecond, func() {
		defer close(done)
		panic("boom")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("task never ran")
	}
	// No assertion beyond "the test process is still alive": a
	// propagated panic would have crashed it.
}
