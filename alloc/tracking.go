package alloc

import (
	"context"
	"log/slog"
	"sync"
	"unsafe"

	"go.uber.org/atomic"
)

// TrackingAllocator forwards to an inner allocator and records usage metrics
// for every successful operation before returning the inner result unchanged.
//
// Counters are atomic, so Metrics may be read while other goroutines use the
// allocator. Ordering between counters is only guaranteed when the inner
// allocator is itself serialized.
type TrackingAllocator struct {
	name    string
	inner   Allocator
	enabled MetricSet

	allocated      atomic.Uint64
	peak           atomic.Uint64
	cumulative     atomic.Uint64
	numAllocations atomic.Uint64
	numDeallocs    atomic.Uint64
	numResizes     atomic.Uint64
	numReallocs    atomic.Uint64
	numFailures    atomic.Uint64

	mu       sync.Mutex
	children []*TrackingAllocator
}

var (
	_ Allocator      = (*TrackingAllocator)(nil)
	_ LayoutReporter = (*TrackingAllocator)(nil)
)

// NewTracking wraps inner and records the metrics selected by enabled.
func NewTracking(name string, inner Allocator, enabled MetricSet) *TrackingAllocator {
	return &TrackingAllocator{name: name, inner: inner, enabled: enabled}
}

// NewChildTracking returns a tracker that allocates through parent and is
// reported as one of parent's children.
func NewChildTracking(name string, parent *TrackingAllocator, enabled MetricSet) *TrackingAllocator {
	child := NewTracking(name, parent, enabled)
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return child
}

// Name returns the tracker's name.
func (t *TrackingAllocator) Name() string { return t.name }

// Children returns the trackers registered with NewChildTracking.
func (t *TrackingAllocator) Children() []*TrackingAllocator {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*TrackingAllocator(nil), t.children...)
}

// Metrics returns a snapshot of the enabled counters.
func (t *TrackingAllocator) Metrics() Metrics {
	m := Metrics{Name: t.name, Enabled: t.enabled}
	if t.enabled.Has(AllocatedBytes) {
		m.AllocatedBytes = t.allocated.Load()
	}
	if t.enabled.Has(PeakAllocatedBytes) {
		m.PeakAllocatedBytes = t.peak.Load()
	}
	if t.enabled.Has(CumulativeAllocatedBytes) {
		m.CumulativeAllocatedBytes = t.cumulative.Load()
	}
	if t.enabled.Has(NumAllocations) {
		m.NumAllocations = t.numAllocations.Load()
	}
	if t.enabled.Has(NumDeallocations) {
		m.NumDeallocations = t.numDeallocs.Load()
	}
	if t.enabled.Has(NumResizes) {
		m.NumResizes = t.numResizes.Load()
	}
	if t.enabled.Has(NumReallocations) {
		m.NumReallocations = t.numReallocs.Load()
	}
	if t.enabled.Has(NumFailures) {
		m.NumFailures = t.numFailures.Load()
	}
	return m
}

// Dump logs the metrics of t and all of its descendants at Info level.
func (t *TrackingAllocator) Dump(logger *slog.Logger) {
	t.dump(logger, t.name)
}

func (t *TrackingAllocator) dump(logger *slog.Logger, path string) {
	logger.LogAttrs(context.Background(), slog.LevelInfo, "allocator metrics",
		slog.String("allocator", path),
		slog.Any("metrics", t.Metrics()),
	)
	for _, child := range t.Children() {
		child.dump(logger, path+"/"+child.name)
	}
}

// Allocate satisfies the Allocator interface.
func (t *TrackingAllocator) Allocate(layout Layout) unsafe.Pointer {
	ptr := t.inner.Allocate(layout)
	if ptr == nil {
		t.recordFailure()
		return nil
	}
	t.grow(uint64(layout.Size()))
	t.inc(NumAllocations, &t.numAllocations)
	t.add(CumulativeAllocatedBytes, &t.cumulative, uint64(layout.Size()))
	return ptr
}

// Deallocate satisfies the Allocator interface.
func (t *TrackingAllocator) Deallocate(ptr unsafe.Pointer, layout Layout) {
	if ptr == nil {
		return
	}
	t.inner.Deallocate(ptr, layout)
	t.shrink(uint64(layout.Size()))
	t.inc(NumDeallocations, &t.numDeallocs)
}

// Resize satisfies the Allocator interface.
func (t *TrackingAllocator) Resize(ptr unsafe.Pointer, layout Layout, newSize uintptr) bool {
	if !t.inner.Resize(ptr, layout, newSize) {
		t.recordFailure()
		return false
	}
	t.resized(layout.Size(), newSize, false)
	t.inc(NumResizes, &t.numResizes)
	return true
}

// Reallocate satisfies the Allocator interface.
func (t *TrackingAllocator) Reallocate(ptr unsafe.Pointer, oldLayout, newLayout Layout) unsafe.Pointer {
	newPtr := t.inner.Reallocate(ptr, oldLayout, newLayout)
	if newPtr == nil {
		t.recordFailure()
		return nil
	}
	oldSize := oldLayout.Size()
	if ptr == nil {
		oldSize = 0
	}
	t.resized(oldSize, newLayout.Size(), newPtr != ptr)
	t.inc(NumReallocations, &t.numReallocs)
	return newPtr
}

// Query satisfies the Allocator interface.
func (t *TrackingAllocator) Query(ptr unsafe.Pointer, layout Layout) error {
	return t.inner.Query(ptr, layout)
}

// GetLayout satisfies the LayoutReporter interface.
func (t *TrackingAllocator) GetLayout(ptr unsafe.Pointer) (Layout, error) {
	return GetLayout(t.inner, ptr)
}

func (t *TrackingAllocator) resized(oldSize, newSize uintptr, moved bool) {
	if newSize >= oldSize {
		t.grow(uint64(newSize - oldSize))
	} else {
		t.shrink(uint64(oldSize - newSize))
	}
	switch {
	case moved:
		t.add(CumulativeAllocatedBytes, &t.cumulative, uint64(newSize))
	case newSize > oldSize:
		t.add(CumulativeAllocatedBytes, &t.cumulative, uint64(newSize-oldSize))
	}
}

func (t *TrackingAllocator) grow(n uint64) {
	if !t.tracksAllocated() {
		return
	}
	now := t.allocated.Add(n)
	for {
		peak := t.peak.Load()
		if now <= peak || t.peak.CompareAndSwap(peak, now) {
			return
		}
	}
}

func (t *TrackingAllocator) shrink(n uint64) {
	if t.tracksAllocated() {
		t.allocated.Sub(n)
	}
}

// tracksAllocated reports whether the live byte count is needed, either for
// itself or to derive the peak.
func (t *TrackingAllocator) tracksAllocated() bool {
	return t.enabled&(AllocatedBytes|PeakAllocatedBytes) != 0
}

func (t *TrackingAllocator) recordFailure() {
	t.inc(NumFailures, &t.numFailures)
}

func (t *TrackingAllocator) inc(metric MetricSet, c *atomic.Uint64) {
	if t.enabled.Has(metric) {
		c.Inc()
	}
}

func (t *TrackingAllocator) add(metric MetricSet, c *atomic.Uint64, n uint64) {
	if t.enabled.Has(metric) {
		c.Add(n)
	}
}
