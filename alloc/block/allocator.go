package block

import (
	"fmt"
	"iter"
	"log/slog"
	"unsafe"

	"github.com/joshuapare/blockalloc/alloc"
)

// Allocator hands out blocks from a single arena according to a placement
// Policy. It performs no locking; wrap it in alloc.SynchronizedAllocator to
// share it between goroutines.
type Allocator struct {
	region *Region
	policy Policy
	poison bool
	logger *slog.Logger
}

var (
	_ alloc.Allocator      = (*Allocator)(nil)
	_ alloc.LayoutReporter = (*Allocator)(nil)
)

// Option configures an Allocator.
type Option func(*Allocator)

// WithPoison fills free blocks with PoisonByte and verifies the fill before
// they are reused.
func WithPoison(enabled bool) Option {
	return func(a *Allocator) { a.poison = enabled }
}

// WithLogger sets the logger used for Debug-level allocation tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New returns an allocator managing mem. A nil policy selects FirstFit.
// The arena must stay alive and unmoved for as long as the allocator is used.
func New(mem []byte, policy Policy, opts ...Option) (*Allocator, error) {
	if policy == nil {
		policy = FirstFit{}
	}
	r, err := Init(mem)
	if err != nil {
		return nil, fmt.Errorf("block: init arena: %w", err)
	}
	a := &Allocator{
		region: r,
		policy: policy,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	r.SetPoison(a.poison)
	a.logger.Debug("block allocator ready",
		slog.String("policy", policy.String()),
		slog.Uint64("capacity", uint64(r.Capacity())),
		slog.Bool("poison", a.poison),
	)
	return a, nil
}

// NewFirstFit returns a FirstFit allocator over mem.
func NewFirstFit(mem []byte, opts ...Option) (*Allocator, error) {
	return New(mem, FirstFit{}, opts...)
}

// NewLastFit returns a LastFit allocator over mem.
func NewLastFit(mem []byte, opts ...Option) (*Allocator, error) {
	return New(mem, LastFit{}, opts...)
}

// NewBestFit returns a BestFit allocator over mem.
func NewBestFit(mem []byte, opts ...Option) (*Allocator, error) {
	return New(mem, BestFit{}, opts...)
}

// NewWorstFit returns a WorstFit allocator over mem.
func NewWorstFit(mem []byte, opts ...Option) (*Allocator, error) {
	return New(mem, WorstFit{}, opts...)
}

// NewDualFirstFit returns a DualFirstFit allocator over mem that places
// requests of threshold bytes or more at the high end.
func NewDualFirstFit(mem []byte, threshold uintptr, opts ...Option) (*Allocator, error) {
	return New(mem, DualFirstFit{Threshold: threshold}, opts...)
}

// Policy returns the placement policy.
func (a *Allocator) Policy() Policy { return a.policy }

// Region returns the arena's block list.
func (a *Allocator) Region() *Region { return a.region }

// Capacity returns the number of arena bytes covered by blocks.
func (a *Allocator) Capacity() uintptr { return a.region.Capacity() }

// Blocks iterates over every block in address order.
func (a *Allocator) Blocks() iter.Seq[Block] { return a.region.Blocks() }

// Allocate satisfies the alloc.Allocator interface.
func (a *Allocator) Allocate(layout alloc.Layout) unsafe.Pointer {
	if layout.Size() == 0 {
		return nil
	}
	b, ok := a.policy.Place(a.region, layout.Size(), layout.Alignment())
	if !ok {
		a.logger.Debug("allocation failed",
			slog.Uint64("size", uint64(layout.Size())),
			slog.Uint64("alignment", uint64(layout.Alignment())),
		)
		return nil
	}
	return b.UsableSpace()
}

// Deallocate satisfies the alloc.Allocator interface. It panics if ptr does
// not lead back to a valid allocated block header.
func (a *Allocator) Deallocate(ptr unsafe.Pointer, _ alloc.Layout) {
	if ptr == nil {
		return
	}
	Free(a.mustUsed("deallocate", ptr))
}

// Resize satisfies the alloc.Allocator interface. It panics if ptr does not
// lead back to a valid allocated block header.
func (a *Allocator) Resize(ptr unsafe.Pointer, _ alloc.Layout, newSize uintptr) bool {
	if ptr == nil || newSize == 0 {
		return false
	}
	return a.mustUsed("resize", ptr).Resize(newSize) == nil
}

// Reallocate satisfies the alloc.Allocator interface.
func (a *Allocator) Reallocate(ptr unsafe.Pointer, oldLayout, newLayout alloc.Layout) unsafe.Pointer {
	return alloc.ReallocateByCopy(a, ptr, oldLayout, newLayout)
}

// Query satisfies the alloc.Allocator interface. Any pointer that can start a
// usable span inside the arena is reported as owned.
func (a *Allocator) Query(ptr unsafe.Pointer, _ alloc.Layout) error {
	if ptr == nil {
		return alloc.ErrOutOfRange
	}
	_, err := a.region.FromUsable(ptr)
	return err
}

// GetLayout satisfies the alloc.LayoutReporter interface. The returned size is
// the block's usable size, which may exceed the size originally requested.
func (a *Allocator) GetLayout(ptr unsafe.Pointer) (alloc.Layout, error) {
	b, err := a.region.FromUsable(ptr)
	if err != nil {
		return alloc.Layout{}, err
	}
	if st := b.CheckStatus(); st != StatusValid {
		return alloc.Layout{}, st.Err()
	}
	if !b.Used() {
		return alloc.Layout{}, alloc.ErrNotAllocated
	}
	return b.Layout(), nil
}

// Reset returns the arena to a single free block. Outstanding allocations
// become invalid.
func (a *Allocator) Reset() {
	a.region.Reset()
	a.logger.Debug("block allocator reset")
}

// Stats summarizes the block list.
type Stats struct {
	Capacity    uintptr
	UsedBytes   uintptr
	FreeBytes   uintptr
	Overhead    uintptr
	UsedBlocks  int
	FreeBlocks  int
	LargestFree uintptr
}

// Fragmentation returns the share of free bytes outside the largest free
// block, between 0 and 1.
func (s Stats) Fragmentation() float64 {
	if s.FreeBytes == 0 {
		return 0
	}
	return 1 - float64(s.LargestFree)/float64(s.FreeBytes)
}

// Stats walks the block list and summarizes it.
func (a *Allocator) Stats() Stats {
	s := Stats{Capacity: a.Capacity()}
	for b := range a.Blocks() {
		s.Overhead += Overhead
		if b.Used() {
			s.UsedBlocks++
			s.UsedBytes += b.InnerSize()
			continue
		}
		s.FreeBlocks++
		s.FreeBytes += b.InnerSize()
		s.LargestFree = max(s.LargestFree, b.InnerSize())
	}
	return s
}

// Validate checks every block header, that no two free blocks are adjacent
// and that the blocks cover the arena exactly.
func (a *Allocator) Validate() error {
	var total uintptr
	prevFree := false
	for b := range a.Blocks() {
		if st := b.CheckStatus(); st != StatusValid {
			return fmt.Errorf("%v: %w", b, st.Err())
		}
		if !b.Used() && prevFree {
			return fmt.Errorf("%v: %w", b, ErrAdjacentFree)
		}
		prevFree = !b.Used()
		total += b.OuterSize()
	}
	if total != a.Capacity() {
		return fmt.Errorf("%w: %d of %d bytes", ErrConservation, total, a.Capacity())
	}
	return nil
}

// mustUsed returns the allocated block behind ptr or panics.
func (a *Allocator) mustUsed(op string, ptr unsafe.Pointer) Block {
	b, err := a.region.FromUsable(ptr)
	if err != nil {
		panic(fmt.Errorf("block: %s %p: %w", op, ptr, err))
	}
	if st := b.CheckStatus(); st != StatusValid {
		panic(fmt.Errorf("block: %s %p: %w", op, ptr, st.Err()))
	}
	if !b.Used() {
		panic(fmt.Errorf("block: %s %p: %w", op, ptr, alloc.ErrNotAllocated))
	}
	return b
}
