package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerManager_OneShotFires(t *testing.T) {
	manager := NewTimerManager()
	defer manager.Stop()

	fired := make(chan struct{})
	manager.AddTimer(0, 0, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("One-shot task did not fire")
	}
}

func TestTimerManager_ManyDueTasks(t *testing.T) {
	manager := NewTimerManager()
	defer manager.Stop()

	// Far more simultaneously-due tasks than any dispatch buffer could
	// hold; all of them must still run.
	const n = 1500
	var fired int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		manager.AddTimer(0, 0, func() {
			atomic.AddInt64(&fired, 1)
			wg.Done()
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Only %d of %d due tasks fired", atomic.LoadInt64(&fired), n)
	}
}

func TestTimerManager_RemoveTimer(t *testing.T) {
	manager := NewTimerManager()
	defer manager.Stop()

	var fired int64
	id := manager.AddTimer(300*time.Millisecond, 0, func() {
		atomic.AddInt64(&fired, 1)
	})
	manager.RemoveTimer(id)

	time.Sleep(600 * time.Millisecond)
	if atomic.LoadInt64(&fired) != 0 {
		t.Fatal("Removed timer must not fire")
	}
}
