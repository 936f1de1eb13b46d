package alloc

import (
	"errors"
	"unsafe"
)

// FallbackAllocator satisfies requests from a primary allocator and falls
// back to a secondary one when the primary cannot.
//
// Deallocate, Resize and Reallocate are routed to whichever allocator owns the
// pointer, as reported by Query. Both allocators should therefore implement
// Query; if neither can tell, the primary is assumed.
type FallbackAllocator struct {
	primary   Allocator
	secondary Allocator
}

var (
	_ Allocator      = (*FallbackAllocator)(nil)
	_ LayoutReporter = (*FallbackAllocator)(nil)
)

// NewFallback returns an allocator that tries primary and then secondary.
func NewFallback(primary, secondary Allocator) *FallbackAllocator {
	return &FallbackAllocator{primary: primary, secondary: secondary}
}

// Allocate satisfies the Allocator interface.
func (f *FallbackAllocator) Allocate(layout Layout) unsafe.Pointer {
	if ptr := f.primary.Allocate(layout); ptr != nil {
		return ptr
	}
	return f.secondary.Allocate(layout)
}

// Deallocate satisfies the Allocator interface.
func (f *FallbackAllocator) Deallocate(ptr unsafe.Pointer, layout Layout) {
	if ptr == nil {
		return
	}
	f.owner(ptr, layout).Deallocate(ptr, layout)
}

// Resize satisfies the Allocator interface.
func (f *FallbackAllocator) Resize(ptr unsafe.Pointer, layout Layout, newSize uintptr) bool {
	if ptr == nil {
		return false
	}
	return f.owner(ptr, layout).Resize(ptr, layout, newSize)
}

// Reallocate satisfies the Allocator interface. Memory owned by the primary
// that cannot be reallocated there is moved into the secondary.
func (f *FallbackAllocator) Reallocate(ptr unsafe.Pointer, oldLayout, newLayout Layout) unsafe.Pointer {
	if ptr == nil {
		return f.Allocate(newLayout)
	}
	owner := f.owner(ptr, oldLayout)
	if newPtr := owner.Reallocate(ptr, oldLayout, newLayout); newPtr != nil {
		return newPtr
	}
	if owner != f.primary || newLayout.Size() == 0 {
		return nil
	}
	newPtr := f.secondary.Allocate(newLayout)
	if newPtr == nil {
		return nil
	}
	copy(Bytes(newPtr, newLayout.Size()), Bytes(ptr, oldLayout.Size()))
	f.primary.Deallocate(ptr, oldLayout)
	return newPtr
}

// Query satisfies the Allocator interface.
func (f *FallbackAllocator) Query(ptr unsafe.Pointer, layout Layout) error {
	err := f.primary.Query(ptr, layout)
	if err == nil {
		return nil
	}
	if err2 := f.secondary.Query(ptr, layout); err2 == nil || errors.Is(err, ErrUnimplemented) {
		return err2
	}
	return err
}

// GetLayout satisfies the LayoutReporter interface.
func (f *FallbackAllocator) GetLayout(ptr unsafe.Pointer) (Layout, error) {
	return GetLayout(f.owner(ptr, Layout{}), ptr)
}

// owner returns the allocator ptr should be routed to.
func (f *FallbackAllocator) owner(ptr unsafe.Pointer, layout Layout) Allocator {
	if f.primary.Query(ptr, layout) == nil {
		return f.primary
	}
	if f.secondary.Query(ptr, layout) == nil {
		return f.secondary
	}
	return f.primary
}
