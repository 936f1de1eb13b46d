package alloc

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/blockalloc/internal/buf"
)

// DefaultAlignment is used when a layout is requested with alignment 0.
// It matches the strictest alignment of Go's builtin scalar types.
const DefaultAlignment = unsafe.Alignof(uint64(0))

// Layout describes a memory request: a size in bytes and a power-of-two alignment.
// Layouts are immutable values and compare equal when both fields match.
type Layout struct {
	size      uintptr
	alignment uintptr
}

// NewLayout returns a layout for size bytes aligned to alignment.
// An alignment of 0 selects DefaultAlignment.
func NewLayout(size, alignment uintptr) (Layout, error) {
	if alignment == 0 {
		alignment = DefaultAlignment
	}
	if !buf.IsPowerOfTwo(alignment) {
		return Layout{}, fmt.Errorf("%w: %d", ErrInvalidAlignment, alignment)
	}
	return Layout{size: size, alignment: alignment}, nil
}

// MustLayout is like NewLayout but panics on an invalid alignment.
func MustLayout(size, alignment uintptr) Layout {
	l, err := NewLayout(size, alignment)
	if err != nil {
		panic(err)
	}
	return l
}

// LayoutOf returns the layout of a value of type T.
func LayoutOf[T any]() Layout {
	var v T
	return Layout{size: unsafe.Sizeof(v), alignment: unsafe.Alignof(v)}
}

// Size returns the requested size in bytes.
func (l Layout) Size() uintptr { return l.size }

// Alignment returns the requested alignment. The zero Layout reports 1.
func (l Layout) Alignment() uintptr {
	if l.alignment == 0 {
		return 1
	}
	return l.alignment
}

// Extend returns a layout with n more bytes and the same alignment.
func (l Layout) Extend(n uintptr) (Layout, error) {
	size, ok := buf.AddUintptr(l.size, n)
	if !ok {
		return Layout{}, fmt.Errorf("%w: %d + %d", ErrOverflow, l.size, n)
	}
	return Layout{size: size, alignment: l.alignment}, nil
}

// WithSize returns a layout with the same alignment and the given size.
func (l Layout) WithSize(size uintptr) Layout {
	return Layout{size: size, alignment: l.alignment}
}

// String implements fmt.Stringer.
func (l Layout) String() string {
	return fmt.Sprintf("Layout{size: %d, alignment: %d}", l.size, l.Alignment())
}

// Equal reports whether l and other have the same size and alignment.
func (l Layout) Equal(other Layout) bool {
	return l.size == other.size && l.Alignment() == other.Alignment()
}
