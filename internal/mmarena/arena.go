// Package mmarena provides backing memory for allocator arenas.
package mmarena

import (
	"fmt"
	"strings"
)

// Source selects where arena memory comes from.
type Source string

const (
	// SourceHeap backs the arena with a Go byte slice.
	SourceHeap Source = "heap"
	// SourceMmap backs the arena with an anonymous private mapping where the
	// platform supports it, and with the heap elsewhere.
	SourceMmap Source = "mmap"
)

// ParseSource returns the Source called name. The empty string selects SourceHeap.
func ParseSource(name string) (Source, error) {
	switch Source(strings.ToLower(name)) {
	case "", SourceHeap:
		return SourceHeap, nil
	case SourceMmap:
		return SourceMmap, nil
	}
	return "", fmt.Errorf("mmarena: unknown source %q", name)
}

// New returns size zeroed bytes from source and a cleanup func that releases
// them. The arena must not be used after cleanup.
func New(source Source, size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("mmarena: invalid size %d", size)
	}
	switch source {
	case SourceHeap, "":
		return Heap(size)
	case SourceMmap:
		return Map(size)
	}
	return nil, nil, fmt.Errorf("mmarena: unknown source %q", source)
}

// Heap returns a heap-allocated arena.
func Heap(size int) ([]byte, func() error, error) {
	return make([]byte, size), func() error { return nil }, nil
}
