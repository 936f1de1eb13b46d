package alloc

import (
	"runtime"
	"sync"
	"unsafe"

	"go.uber.org/atomic"
)

// SynchronizedAllocator serializes every operation on an inner allocator.
// The lock is held for exactly one forwarded call and released on every
// exit path.
type SynchronizedAllocator struct {
	mtx   sync.Locker
	inner Allocator
}

var (
	_ Allocator      = (*SynchronizedAllocator)(nil)
	_ LayoutReporter = (*SynchronizedAllocator)(nil)
)

// NewSynchronized returns an allocator that is safe to be accessed
// concurrently from multiple goroutines. A nil lock selects a sync.Mutex;
// pass a *SpinLock for short critical sections that must never park.
func NewSynchronized(inner Allocator, lock sync.Locker) *SynchronizedAllocator {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	return &SynchronizedAllocator{mtx: lock, inner: inner}
}

// Allocate satisfies the Allocator interface.
func (s *SynchronizedAllocator) Allocate(layout Layout) unsafe.Pointer {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.inner.Allocate(layout)
}

// Deallocate satisfies the Allocator interface.
func (s *SynchronizedAllocator) Deallocate(ptr unsafe.Pointer, layout Layout) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.inner.Deallocate(ptr, layout)
}

// Resize satisfies the Allocator interface.
func (s *SynchronizedAllocator) Resize(ptr unsafe.Pointer, layout Layout, newSize uintptr) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.inner.Resize(ptr, layout, newSize)
}

// Reallocate satisfies the Allocator interface.
func (s *SynchronizedAllocator) Reallocate(ptr unsafe.Pointer, oldLayout, newLayout Layout) unsafe.Pointer {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.inner.Reallocate(ptr, oldLayout, newLayout)
}

// Query satisfies the Allocator interface.
func (s *SynchronizedAllocator) Query(ptr unsafe.Pointer, layout Layout) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.inner.Query(ptr, layout)
}

// GetLayout satisfies the LayoutReporter interface.
func (s *SynchronizedAllocator) GetLayout(ptr unsafe.Pointer) (Layout, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return GetLayout(s.inner, ptr)
}

// SpinLock is a sync.Locker that busy-waits instead of parking the goroutine.
// The zero value is unlocked.
type SpinLock struct {
	locked atomic.Bool
}

// Lock acquires the lock, yielding the processor between attempts.
func (l *SpinLock) Lock() {
	for !l.TryLock() {
		runtime.Gosched()
	}
}

// TryLock acquires the lock if it is free and reports whether it did.
func (l *SpinLock) TryLock() bool {
	return l.locked.CompareAndSwap(false, true)
}

// Unlock releases the lock.
func (l *SpinLock) Unlock() {
	l.locked.Store(false)
}
