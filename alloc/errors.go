package alloc

import "errors"

var (
	// ErrInvalidAlignment indicates an alignment that is not a power of two.
	ErrInvalidAlignment = errors.New("alloc: alignment must be a power of two")

	// ErrOverflow indicates a size computation that does not fit in a uintptr.
	ErrOverflow = errors.New("alloc: size overflow")

	// ErrOutOfRange indicates a pointer that was not produced by the queried allocator.
	ErrOutOfRange = errors.New("alloc: pointer not owned by allocator")

	// ErrUnimplemented indicates an optional operation the allocator does not support.
	ErrUnimplemented = errors.New("alloc: operation not supported")

	// ErrNotAllocated indicates a layout query for memory that is not currently allocated.
	ErrNotAllocated = errors.New("alloc: memory is not allocated")
)
