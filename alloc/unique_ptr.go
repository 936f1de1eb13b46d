package alloc

import "unsafe"

// UniquePtr owns exactly one allocation together with the allocator that
// produced it. It records the layout and destroy hook of the type it was
// created for, so releasing it after an Upcast still destroys the original
// value and frees the original size.
//
// A UniquePtr must not be copied; transfer ownership with Move, Assign or
// Upcast. Go has no scope-exit destructors, so owners release it with Reset,
// typically deferred.
type UniquePtr[T any] struct {
	value     *T
	start     unsafe.Pointer
	layout    Layout
	destroy   func(unsafe.Pointer)
	allocator Allocator
}

// Get returns the owned value, or nil when empty.
func (p *UniquePtr[T]) Get() *T { return p.value }

// IsNil reports whether p owns nothing.
func (p *UniquePtr[T]) IsNil() bool { return p.value == nil }

// Layout returns the layout the allocation was made with.
func (p *UniquePtr[T]) Layout() Layout { return p.layout }

// Allocator returns the allocator that will release the allocation.
func (p *UniquePtr[T]) Allocator() Allocator { return p.allocator }

// Reset destroys the owned value, returns its memory to the owning allocator
// and leaves p empty. Resetting an empty UniquePtr does nothing.
func (p *UniquePtr[T]) Reset() {
	if p.value == nil {
		return
	}
	start, layout, a := p.start, p.layout, p.allocator
	if p.destroy != nil {
		p.destroy(start)
	}
	*p = UniquePtr[T]{}
	a.Deallocate(start, layout)
}

// Move transfers ownership out of p, leaving p empty.
func (p *UniquePtr[T]) Move() UniquePtr[T] {
	out := *p
	*p = UniquePtr[T]{}
	return out
}

// Assign releases whatever p owns and takes ownership from other, leaving
// other empty.
func (p *UniquePtr[T]) Assign(other *UniquePtr[T]) {
	if p == other {
		return
	}
	p.Reset()
	*p = other.Move()
}

// Upcast converts ownership of a D into ownership of a B, where view maps the
// D to the B it contains (usually an embedded field). The original layout,
// allocation start and destroy hook travel with the result, and src is left
// empty.
func Upcast[B, D any](src *UniquePtr[D], view func(*D) *B) UniquePtr[B] {
	if src.value == nil {
		return UniquePtr[B]{}
	}
	moved := src.Move()
	return UniquePtr[B]{
		value:     view(moved.value),
		start:     moved.start,
		layout:    moved.layout,
		destroy:   moved.destroy,
		allocator: moved.allocator,
	}
}
