// Package testutil provides allocator fixtures shared by package tests.
package testutil

import (
	"testing"
	"unsafe"

	"github.com/joshuapare/blockalloc/alloc"
	"github.com/joshuapare/blockalloc/alloc/block"
)

// DefaultArenaSize is the arena size used by NewForTest.
const DefaultArenaSize = 1024

// Recorded holds the arguments of the most recent call of each kind.
type Recorded struct {
	AllocateSize   uintptr
	DeallocatePtr  unsafe.Pointer
	DeallocateSize uintptr
	ResizePtr      unsafe.Pointer
	ResizeOldSize  uintptr
	ResizeNewSize  uintptr
}

// ForTest is an allocator for tests: a FirstFit block allocator over its own
// arena, a recorder of call arguments, and a tracker with every metric.
//
//	tracking -> recorder -> block.Allocator
type ForTest struct {
	blocks  *block.Allocator
	params  Recorded
	tracker *alloc.TrackingAllocator
}

var (
	_ alloc.Allocator      = (*ForTest)(nil)
	_ alloc.LayoutReporter = (*ForTest)(nil)
)

// NewForTest returns a ForTest over a DefaultArenaSize arena.
func NewForTest(t testing.TB) *ForTest {
	t.Helper()
	return NewForTestSize(t, DefaultArenaSize)
}

// NewForTestSize returns a ForTest over an arena of size bytes. The test
// fails if any block is still in use when it finishes.
func NewForTestSize(t testing.TB, size int) *ForTest {
	t.Helper()
	blocks, err := block.NewFirstFit(make([]byte, size), block.WithPoison(true))
	if err != nil {
		t.Fatalf("testutil: new block allocator: %v", err)
	}
	f := &ForTest{blocks: blocks}
	f.tracker = alloc.NewTracking("test", recorder{f}, alloc.AllMetrics)
	t.Cleanup(func() {
		if err := blocks.Validate(); err != nil {
			t.Errorf("testutil: arena corrupted: %v", err)
		}
	})
	return f
}

// Blocks returns the underlying block allocator.
func (f *ForTest) Blocks() *block.Allocator { return f.blocks }

// Tracker returns the tracking allocator in front of the recorder.
func (f *ForTest) Tracker() *alloc.TrackingAllocator { return f.tracker }

// Metrics returns the tracker's metrics.
func (f *ForTest) Metrics() alloc.Metrics { return f.tracker.Metrics() }

// Params returns the recorded call arguments.
func (f *ForTest) Params() Recorded { return f.params }

func (f *ForTest) AllocateSize() uintptr         { return f.params.AllocateSize }
func (f *ForTest) DeallocatePtr() unsafe.Pointer { return f.params.DeallocatePtr }
func (f *ForTest) DeallocateSize() uintptr       { return f.params.DeallocateSize }
func (f *ForTest) ResizePtr() unsafe.Pointer     { return f.params.ResizePtr }
func (f *ForTest) ResizeOldSize() uintptr        { return f.params.ResizeOldSize }
func (f *ForTest) ResizeNewSize() uintptr        { return f.params.ResizeNewSize }

// ResetParameters clears the recorded call arguments.
func (f *ForTest) ResetParameters() { f.params = Recorded{} }

// Exhaust marks every block in use so that all further allocations fail.
func (f *ForTest) Exhaust() {
	for b := range f.blocks.Blocks() {
		b.MarkUsed()
	}
}

// Allocate satisfies the alloc.Allocator interface.
func (f *ForTest) Allocate(layout alloc.Layout) unsafe.Pointer {
	return f.tracker.Allocate(layout)
}

// Deallocate satisfies the alloc.Allocator interface.
func (f *ForTest) Deallocate(ptr unsafe.Pointer, layout alloc.Layout) {
	f.tracker.Deallocate(ptr, layout)
}

// Resize satisfies the alloc.Allocator interface.
func (f *ForTest) Resize(ptr unsafe.Pointer, layout alloc.Layout, newSize uintptr) bool {
	return f.tracker.Resize(ptr, layout, newSize)
}

// Reallocate satisfies the alloc.Allocator interface.
func (f *ForTest) Reallocate(ptr unsafe.Pointer, oldLayout, newLayout alloc.Layout) unsafe.Pointer {
	return f.tracker.Reallocate(ptr, oldLayout, newLayout)
}

// Query satisfies the alloc.Allocator interface.
func (f *ForTest) Query(ptr unsafe.Pointer, layout alloc.Layout) error {
	return f.tracker.Query(ptr, layout)
}

// GetLayout satisfies the alloc.LayoutReporter interface.
func (f *ForTest) GetLayout(ptr unsafe.Pointer) (alloc.Layout, error) {
	return f.tracker.GetLayout(ptr)
}

// recorder notes call arguments and forwards to the block allocator.
type recorder struct{ f *ForTest }

func (r recorder) Allocate(layout alloc.Layout) unsafe.Pointer {
	r.f.params.AllocateSize = layout.Size()
	return r.f.blocks.Allocate(layout)
}

func (r recorder) Deallocate(ptr unsafe.Pointer, layout alloc.Layout) {
	r.f.params.DeallocatePtr = ptr
	r.f.params.DeallocateSize = layout.Size()
	r.f.blocks.Deallocate(ptr, layout)
}

func (r recorder) Resize(ptr unsafe.Pointer, layout alloc.Layout, newSize uintptr) bool {
	r.f.params.ResizePtr = ptr
	r.f.params.ResizeOldSize = layout.Size()
	r.f.params.ResizeNewSize = newSize
	return r.f.blocks.Resize(ptr, layout, newSize)
}

func (r recorder) Reallocate(ptr unsafe.Pointer, oldLayout, newLayout alloc.Layout) unsafe.Pointer {
	return alloc.ReallocateByCopy(r, ptr, oldLayout, newLayout)
}

func (r recorder) Query(ptr unsafe.Pointer, layout alloc.Layout) error {
	return r.f.blocks.Query(ptr, layout)
}

func (r recorder) GetLayout(ptr unsafe.Pointer) (alloc.Layout, error) {
	return r.f.blocks.GetLayout(ptr)
}
