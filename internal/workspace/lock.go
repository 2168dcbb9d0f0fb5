package workspace

import "sync/atomic"

// LoadLock guards LoadDir against concurrent runs without blocking the caller
type LoadLock struct {
	state atomic.Int32 // 0 = idle, 1 = loading
}

// TryAcquire reports whether the lock was taken
func (l *LoadLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release must only be called by the goroutine that acquired the lock
func (l *LoadLock) Release() {
	l.state.Store(0)
}

// Held reports whether a load is running
func (l *LoadLock) Held() bool {
	return l.state.Load() == 1
}
