package alloc

import "unsafe"

// Allocator is the capability every allocation strategy implements.
//
// Implementations:
//   - block.Allocator: free-list allocator over a caller-supplied arena
//   - SynchronizedAllocator: serializes access to another allocator
//   - FallbackAllocator: tries a primary allocator, then a secondary one
//   - TrackingAllocator: records usage metrics for another allocator
//   - NullAllocator: never allocates
//
// Callers hold an Allocator, never a concrete type, so any of these can be
// stacked on top of one another.
type Allocator interface {
	// Allocate returns memory satisfying layout, or nil if the request cannot be
	// met. A zero-sized layout always yields nil. Failure has no side effects.
	Allocate(layout Layout) unsafe.Pointer

	// Deallocate releases memory previously returned by this allocator for an
	// equal layout. Passing nil is a no-op. Passing anything else that this
	// allocator did not produce is undefined behavior.
	Deallocate(ptr unsafe.Pointer, layout Layout)

	// Resize attempts to grow or shrink an allocation in place. It reports
	// whether it succeeded; on failure the allocation is unchanged.
	Resize(ptr unsafe.Pointer, layout Layout, newSize uintptr) bool

	// Reallocate resizes in place or moves the allocation to new memory,
	// copying min(old, new) bytes. On success ptr must no longer be used.
	// On failure nil is returned and ptr remains valid.
	Reallocate(ptr unsafe.Pointer, oldLayout, newLayout Layout) unsafe.Pointer

	// Query returns nil if ptr was allocated by this allocator, ErrOutOfRange
	// if it was not, and ErrUnimplemented if the allocator cannot tell.
	Query(ptr unsafe.Pointer, layout Layout) error
}

// LayoutReporter is implemented by allocators that can recover the layout
// backing a live allocation.
type LayoutReporter interface {
	GetLayout(ptr unsafe.Pointer) (Layout, error)
}

// GetLayout returns the layout a recovers for ptr, or ErrUnimplemented when a
// does not implement LayoutReporter.
func GetLayout(a Allocator, ptr unsafe.Pointer) (Layout, error) {
	if r, ok := a.(LayoutReporter); ok {
		return r.GetLayout(ptr)
	}
	return Layout{}, ErrUnimplemented
}

// ReallocateByCopy implements Reallocate in terms of Resize, Allocate and
// Deallocate. Allocators with no cheaper strategy delegate to it.
func ReallocateByCopy(a Allocator, ptr unsafe.Pointer, oldLayout, newLayout Layout) unsafe.Pointer {
	if newLayout.Size() == 0 {
		return nil
	}
	if ptr == nil {
		return a.Allocate(newLayout)
	}
	if uintptr(ptr)%newLayout.Alignment() == 0 && a.Resize(ptr, oldLayout, newLayout.Size()) {
		return ptr
	}
	newPtr := a.Allocate(newLayout)
	if newPtr == nil {
		return nil
	}
	copy(Bytes(newPtr, newLayout.Size()), Bytes(ptr, oldLayout.Size()))
	a.Deallocate(ptr, oldLayout)
	return newPtr
}

// Bytes views n bytes starting at ptr as a slice. A nil ptr yields nil.
func Bytes(ptr unsafe.Pointer, n uintptr) []byte {
	if ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), n)
}
