package watch

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestScanGuardExclusive(t *testing.T) {
	var g ScanGuard

	if !g.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}
	if g.TryAcquire() {
		t.Fatal("second TryAcquire should fail while held")
	}
	if !g.Running() {
		t.Fatal("Running() should report true while held")
	}

	g.Release()
	if g.Running() {
		t.Fatal("Running() should report false after release")
	}
	if !g.TryAcquire() {
		t.Fatal("TryAcquire should succeed after release")
	}
}

func TestScanGuardConcurrent(t *testing.T) {
	var g ScanGuard
	var acquired atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire() {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := acquired.Load(); got != 1 {
		t.Fatalf("%d goroutines acquired the guard, want exactly 1", got)
	}
}
