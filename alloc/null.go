package alloc

import "unsafe"

// NullAllocator never allocates. It is a safe placeholder where no backing
// store has been configured.
type NullAllocator struct{}

var _ Allocator = NullAllocator{}

// Allocate always returns nil.
func (NullAllocator) Allocate(Layout) unsafe.Pointer { return nil }

// Deallocate does nothing; no pointer can have come from a NullAllocator.
func (NullAllocator) Deallocate(unsafe.Pointer, Layout) {}

// Resize always fails.
func (NullAllocator) Resize(unsafe.Pointer, Layout, uintptr) bool { return false }

// Reallocate always fails.
func (NullAllocator) Reallocate(unsafe.Pointer, Layout, Layout) unsafe.Pointer { return nil }

// Query reports that no pointer belongs to a NullAllocator.
func (NullAllocator) Query(unsafe.Pointer, Layout) error { return ErrOutOfRange }
