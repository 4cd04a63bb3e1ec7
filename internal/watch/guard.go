package watch

import "sync/atomic"

// ScanGuard ensures at most one scan is in flight for a source. A trigger
// that finds the guard held is dropped, not queued; the next natural trigger
// re-derives state from the backend.
type ScanGuard struct {
	running atomic.Bool
}

// TryAcquire attempts to start a scan. It returns false if one is already
// running.
func (g *ScanGuard) TryAcquire() bool {
	return g.running.CompareAndSwap(false, true)
}

// Release marks the scan finished. It must be called exactly once per
// successful TryAcquire, whether the scan succeeded or failed.
func (g *ScanGuard) Release() {
	g.running.Store(false)
}

// Running reports whether a scan is currently in flight.
func (g *ScanGuard) Running() bool {
	return g.running.Load()
}
