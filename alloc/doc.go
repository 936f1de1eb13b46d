// Package alloc defines the allocation capability and a set of composable
// allocators built on it.
//
// # Overview
//
// Allocator is the one interface callers depend on. Concrete strategies such
// as block.Allocator implement it over an arena, and forwarding allocators
// implement it over another Allocator, so stacks like
//
//	tracking -> synchronized -> fallback(block arena, block arena)
//
// are assembled by plain composition.
//
// # Layouts
//
// Every request is described by a Layout: a size and a power-of-two
// alignment. Deallocate and Resize must be given a layout equal to the one
// used to allocate. Exhaustion is never an error: Allocate returns nil and
// the allocator is unchanged.
//
// # Typed Helpers
//
//	p := alloc.New(a, header{ID: 7})
//	defer alloc.Delete(a, p)
//
//	u := alloc.MakeUnique(a, derived{})
//	base := alloc.Upcast(&u, func(d *derived) *base { return &d.base })
//	defer base.Reset() // frees sizeof(derived)
//
// A value whose pointer implements Destroyer has Destroy called before its
// memory is zeroed and released.
//
// # Forwarding Allocators
//
//   - SynchronizedAllocator: holds a sync.Locker for the duration of each call
//   - FallbackAllocator: primary first, secondary on exhaustion, routed by Query
//   - TrackingAllocator: atomic usage metrics, nestable, dumpable via slog
//   - NullAllocator: always exhausted
package alloc
