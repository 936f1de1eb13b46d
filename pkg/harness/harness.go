package harness

import (
	"log/slog"
	"math/rand/v2"
	"unsafe"

	"github.com/joshuapare/blockalloc/alloc"
	"github.com/joshuapare/blockalloc/internal/buf"
)

// fillByte pads allocations after the request number and size.
const fillByte = 0x5A

// Harness drives an allocator with requests and keeps the live allocations
// they produce. It is not safe for concurrent use; give each goroutine its
// own Harness.
type Harness struct {
	a           alloc.Allocator
	max         int
	allocations []allocation
	stats       Stats
	logger      *slog.Logger
}

type allocation struct {
	ptr    unsafe.Pointer
	layout alloc.Layout
}

// Stats counts what a Harness has done since it was created.
type Stats struct {
	Requests      uint64
	Allocations   uint64
	Deallocations uint64
	Reallocations uint64
	Failures      uint64
	Ignored       uint64
	PeakLive      int
	PeakLiveBytes uintptr
	liveBytes     uintptr
}

// LiveBytes returns the bytes held by live allocations.
func (s Stats) LiveBytes() uintptr { return s.liveBytes }

// New returns a harness that keeps at most maxAllocations live allocations.
func New(a alloc.Allocator, maxAllocations int) *Harness {
	return &Harness{
		a:           a,
		max:         maxAllocations,
		allocations: make([]allocation, 0, maxAllocations),
		logger:      slog.New(slog.DiscardHandler),
	}
}

// WithLogger sets the logger for Debug-level request tracing and returns h.
func (h *Harness) WithLogger(logger *slog.Logger) *Harness {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// Allocator returns the allocator under test.
func (h *Harness) Allocator() alloc.Allocator { return h.a }

// Live returns the number of live allocations.
func (h *Harness) Live() int { return len(h.allocations) }

// Stats returns the request counters.
func (h *Harness) Stats() Stats { return h.stats }

// GenerateRequests handles n generated requests and then calls Reset.
func (h *Harness) GenerateRequests(rng *rand.Rand, maxSize uintptr, n int) {
	for range n {
		h.GenerateRequest(rng, maxSize)
	}
	h.Reset()
}

// GenerateRequest handles one generated request. Callers must call Reset
// when done.
func (h *Harness) GenerateRequest(rng *rand.Rand, maxSize uintptr) {
	h.HandleRequest(Generate(rng, maxSize))
}

// HandleRequests handles each request in turn and then calls Reset.
func (h *Harness) HandleRequests(requests []Request) {
	for _, r := range requests {
		h.HandleRequest(r)
	}
	h.Reset()
}

// HandleRequest applies one request.
//
// Allocations beyond the live limit and frees or reallocations with nothing
// live are ignored. A failed reallocation keeps the original allocation.
func (h *Harness) HandleRequest(r Request) {
	h.stats.Requests++
	switch r.Kind {
	case KindAllocate:
		if len(h.allocations) >= h.max {
			h.stats.Ignored++
			return
		}
		layout, err := alloc.NewLayout(r.Size, max(r.Alignment, 1))
		if err != nil {
			h.stats.Ignored++
			return
		}
		ptr := h.a.Allocate(layout)
		if ptr == nil {
			h.fail(r)
			return
		}
		h.stats.Allocations++
		h.add(ptr, layout)

	case KindDeallocate:
		if len(h.allocations) == 0 {
			h.stats.Ignored++
			return
		}
		old := h.remove(r.Index)
		h.a.Deallocate(old.ptr, old.layout)
		h.stats.Deallocations++

	case KindReallocate:
		if len(h.allocations) == 0 {
			h.stats.Ignored++
			return
		}
		old := h.remove(r.Index)
		newLayout := old.layout.WithSize(r.Size)
		ptr := h.a.Reallocate(old.ptr, old.layout, newLayout)
		if ptr == nil {
			h.fail(r)
			h.add(old.ptr, old.layout)
			return
		}
		h.stats.Reallocations++
		h.add(ptr, newLayout)

	default:
		h.stats.Ignored++
	}
}

// Reset deallocates every live allocation.
func (h *Harness) Reset() {
	for _, old := range h.allocations {
		h.a.Deallocate(old.ptr, old.layout)
		h.stats.Deallocations++
	}
	h.allocations = h.allocations[:0]
	h.stats.liveBytes = 0
}

func (h *Harness) fail(r Request) {
	h.stats.Failures++
	h.logger.Debug("request failed",
		slog.String("kind", r.Kind.String()),
		slog.Uint64("size", uint64(r.Size)),
		slog.Int("live", len(h.allocations)),
	)
}

// add records a live allocation and stamps its memory with the request
// number, the size and a fill pattern, as far as each fits.
func (h *Harness) add(ptr unsafe.Pointer, layout alloc.Layout) {
	mem := alloc.Bytes(ptr, layout.Size())
	rest := mem
	if buf.PutU32LE(rest, uint32(h.stats.Requests)) {
		rest = rest[4:]
	}
	if buf.PutU32LE(rest, uint32(layout.Size())) {
		rest = rest[4:]
	}
	for i := range rest {
		rest[i] = fillByte
	}

	h.allocations = append(h.allocations, allocation{ptr: ptr, layout: layout})
	h.stats.liveBytes += layout.Size()
	h.stats.PeakLive = max(h.stats.PeakLive, len(h.allocations))
	h.stats.PeakLiveBytes = max(h.stats.PeakLiveBytes, h.stats.liveBytes)
}

// remove swaps the selected allocation to the end and pops it.
func (h *Harness) remove(index int) allocation {
	last := len(h.allocations) - 1
	i := index % len(h.allocations)
	if i < 0 {
		i += len(h.allocations)
	}
	h.allocations[i], h.allocations[last] = h.allocations[last], h.allocations[i]
	old := h.allocations[last]
	h.allocations = h.allocations[:last]
	h.stats.liveBytes -= old.layout.Size()
	return old
}
