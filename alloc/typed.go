package alloc

import "unsafe"

// Destroyer is implemented by values that must release resources before their
// memory is handed back to an allocator. Delete and UniquePtr call Destroy on
// the pointer to the value.
type Destroyer interface {
	Destroy()
}

// New allocates memory for a T from a, stores v in it and returns the typed
// pointer, or nil if the allocation failed.
//
// Allocator memory is not scanned by the garbage collector, so T must not hold
// the only reference to any Go heap object.
func New[T any](a Allocator, v T) *T {
	ptr := a.Allocate(LayoutOf[T]())
	if ptr == nil {
		return nil
	}
	p := (*T)(ptr)
	*p = v
	return p
}

// Delete destroys the value at p and returns its memory to a using the layout
// of T. p must have been produced by New[T] on the same allocator.
func Delete[T any](a Allocator, p *T) {
	if p == nil {
		return
	}
	destroy[T](unsafe.Pointer(p))
	a.Deallocate(unsafe.Pointer(p), LayoutOf[T]())
}

// MakeUnique is New wrapped in an owning UniquePtr. The result is empty if the
// allocation failed.
func MakeUnique[T any](a Allocator, v T) UniquePtr[T] {
	p := New(a, v)
	if p == nil {
		return UniquePtr[T]{}
	}
	return UniquePtr[T]{
		value:     p,
		start:     unsafe.Pointer(p),
		layout:    LayoutOf[T](),
		destroy:   destroy[T],
		allocator: a,
	}
}

// destroy runs the Destroyer hook for the T at ptr, if any, and zeroes it.
func destroy[T any](ptr unsafe.Pointer) {
	p := (*T)(ptr)
	if d, ok := any(p).(Destroyer); ok {
		d.Destroy()
	}
	var zero T
	*p = zero
}
