package block

import (
	"fmt"
	"iter"
	"unsafe"

	"github.com/joshuapare/blockalloc/alloc"
	"github.com/joshuapare/blockalloc/internal/buf"
)

// Header layout, little-endian, at the start of every block:
//
//	0x00  u32  outer size of the previous block (0 for the first block)
//	0x04  u32  outer size of this block, header included
//	0x08  u16  flags (used, last, poisoned)
//	0x0A  u8   log2 of the alignment the block was allocated with
//	0x0B  u8   reserved
//	0x0C  u32  canary derived from the block offset
const (
	offPrev   = 0x00
	offOuter  = 0x04
	offFlags  = 0x08
	offShift  = 0x0A
	offCanary = 0x0C

	// Overhead is the size of a block header.
	Overhead = 16

	// Alignment is the alignment of every header and usable span. Block sizes
	// are multiples of it.
	Alignment = 8

	// MinInnerSize is the smallest usable span a block created by a split may have.
	MinInnerSize = 8

	// MaxArenaSize is the largest arena a single Region can describe.
	MaxArenaSize = (1<<32 - 1) &^ (Alignment - 1)

	// PoisonByte fills the usable space of poisoned free blocks.
	PoisonByte = 0xf7
)

const (
	flagUsed uint16 = 1 << iota
	flagLast
	flagPoisoned
)

const (
	canarySeed   = 0x5eedb10c
	defaultShift = 3 // log2(Alignment)
)

// Status is the result of validating a block header.
type Status uint8

const (
	StatusValid Status = iota
	StatusMisaligned
	StatusNextMismatched
	StatusPrevMismatched
	StatusCanaryMismatched
	StatusPoisonCorrupted
)

// Err returns the sentinel for s, or nil for StatusValid.
func (s Status) Err() error {
	switch s {
	case StatusMisaligned:
		return ErrCorruptedMisaligned
	case StatusNextMismatched:
		return ErrCorruptedNext
	case StatusPrevMismatched:
		return ErrCorruptedPrev
	case StatusCanaryMismatched:
		return ErrCorruptedCanary
	case StatusPoisonCorrupted:
		return ErrCorruptedPoison
	}
	return nil
}

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusMisaligned:
		return "misaligned"
	case StatusNextMismatched:
		return "next mismatched"
	case StatusPrevMismatched:
		return "prev mismatched"
	case StatusCanaryMismatched:
		return "canary mismatched"
	case StatusPoisonCorrupted:
		return "poison corrupted"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Region is an arena carved into an address-ordered sequence of blocks.
// Every byte of the arena belongs to exactly one block.
type Region struct {
	mem    []byte
	base   uintptr
	poison bool
}

// Init lays a single free block over mem and returns the region describing it.
// The start of mem is skipped up to the first Alignment boundary and the tail
// is trimmed to a multiple of Alignment.
func Init(mem []byte) (*Region, error) {
	if len(mem) == 0 {
		return nil, ErrEmptyArena
	}
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	aligned, ok := buf.AlignUp(addr, Alignment)
	if !ok {
		return nil, fmt.Errorf("%w: base %#x", ErrArenaTooSmall, addr)
	}
	skip := aligned - addr
	if uintptr(len(mem)) < skip+Overhead+MinInnerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrArenaTooSmall, len(mem))
	}
	mem = mem[skip:]
	mem = mem[:buf.AlignDown(uintptr(len(mem)), Alignment)]
	if uintptr(len(mem)) > MaxArenaSize {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrArenaTooLarge, len(mem), uint64(MaxArenaSize))
	}
	r := &Region{mem: mem, base: aligned}
	r.writeHeader(0, 0, uintptr(len(mem)), flagLast, defaultShift)
	return r, nil
}

// Capacity returns the number of bytes covered by blocks.
func (r *Region) Capacity() uintptr { return uintptr(len(r.mem)) }

// Bytes returns the arena.
func (r *Region) Bytes() []byte { return r.mem }

// Poisoning reports whether free blocks are poisoned.
func (r *Region) Poisoning() bool { return r.poison }

// SetPoison enables or disables poisoning. Enabling it poisons every free block.
func (r *Region) SetPoison(enabled bool) {
	r.poison = enabled
	if !enabled {
		return
	}
	for b := range r.Blocks() {
		b.Poison()
	}
}

// Reset discards every block and lays a single free block over the arena.
func (r *Region) Reset() {
	r.writeHeader(0, 0, uintptr(len(r.mem)), flagLast, defaultShift)
	r.First().Poison()
}

// First returns the block at the lowest address.
func (r *Region) First() Block { return Block{r: r, off: 0} }

// Last returns the block at the highest address.
func (r *Region) Last() Block {
	b := r.First()
	for !b.Last() {
		b = b.next()
	}
	return b
}

// Blocks iterates over every block in ascending address order.
func (r *Region) Blocks() iter.Seq[Block] {
	return func(yield func(Block) bool) {
		b := r.First()
		for {
			if !yield(b) || b.Last() {
				return
			}
			b = b.next()
		}
	}
}

// Backward iterates over every block in descending address order.
func (r *Region) Backward() iter.Seq[Block] {
	return func(yield func(Block) bool) {
		b := r.Last()
		for {
			if !yield(b) {
				return
			}
			prev, ok := b.Prev()
			if !ok {
				return
			}
			b = prev
		}
	}
}

// Contains reports whether ptr points into the arena.
func (r *Region) Contains(ptr unsafe.Pointer) bool {
	addr := uintptr(ptr)
	return addr >= r.base && addr < r.base+uintptr(len(r.mem))
}

// FromUsable returns the block whose usable space starts at ptr. It fails with
// alloc.ErrOutOfRange when ptr cannot be the start of a usable span in r.
func (r *Region) FromUsable(ptr unsafe.Pointer) (Block, error) {
	addr := uintptr(ptr)
	if !r.Contains(ptr) || addr < r.base+Overhead {
		return Block{}, alloc.ErrOutOfRange
	}
	off := addr - r.base - Overhead
	if off%Alignment != 0 {
		return Block{}, fmt.Errorf("%w: %#x is not a block start", alloc.ErrOutOfRange, addr)
	}
	return Block{r: r, off: off}, nil
}

func (r *Region) header(off uintptr) []byte {
	return r.mem[off : off+Overhead]
}

func (r *Region) writeHeader(off, prevOuter, outer uintptr, flags uint16, shift uint8) {
	h := r.header(off)
	buf.PutU32LE(h[offPrev:], uint32(prevOuter))
	buf.PutU32LE(h[offOuter:], uint32(outer))
	buf.PutU16LE(h[offFlags:], flags)
	h[offShift] = shift
	h[offShift+1] = 0
	buf.PutU32LE(h[offCanary:], canaryFor(off))
}

func canaryFor(off uintptr) uint32 {
	return canarySeed ^ uint32(off)
}

// Block is a handle to one header inside a Region. The zero Block is invalid.
type Block struct {
	r   *Region
	off uintptr
}

// Offset returns the header's byte offset within the arena.
func (b Block) Offset() uintptr { return b.off }

// OuterSize returns the size of the block including its header.
func (b Block) OuterSize() uintptr { return uintptr(buf.U32LE(b.hdr()[offOuter:])) }

// InnerSize returns the size of the usable space.
func (b Block) InnerSize() uintptr { return b.OuterSize() - Overhead }

// Used reports whether the block is allocated.
func (b Block) Used() bool { return b.flags()&flagUsed != 0 }

// Last reports whether b is the block at the highest address.
func (b Block) Last() bool { return b.flags()&flagLast != 0 }

// Poisoned reports whether b's usable space was filled with PoisonByte.
func (b Block) Poisoned() bool { return b.flags()&flagPoisoned != 0 }

// Alignment returns the alignment b was last allocated with.
func (b Block) Alignment() uintptr {
	return uintptr(1) << b.hdr()[offShift]
}

// Layout returns the layout describing b's usable space.
func (b Block) Layout() alloc.Layout {
	return alloc.MustLayout(b.InnerSize(), b.Alignment())
}

// UsableSpace returns a pointer to the first usable byte.
func (b Block) UsableSpace() unsafe.Pointer {
	return unsafe.Pointer(&b.r.mem[b.off+Overhead])
}

// Usable returns the usable space as a slice.
func (b Block) Usable() []byte {
	return b.r.mem[b.off+Overhead : b.off+b.OuterSize()]
}

// Next returns the block following b.
func (b Block) Next() (Block, bool) {
	if b.Last() {
		return Block{}, false
	}
	return b.next(), true
}

// Prev returns the block preceding b.
func (b Block) Prev() (Block, bool) {
	prev := b.prevOuter()
	if prev == 0 || prev > b.off {
		return Block{}, false
	}
	return Block{r: b.r, off: b.off - prev}, true
}

// MarkUsed flags b as allocated.
func (b Block) MarkUsed() { b.setFlags(b.flags()&^flagPoisoned | flagUsed) }

// MarkFree flags b as free without merging it with its neighbors.
func (b Block) MarkFree() { b.setFlags(b.flags() &^ (flagUsed | flagPoisoned)) }

// Poison fills a free block's usable space with PoisonByte when the region
// has poisoning enabled.
func (b Block) Poison() {
	if !b.r.poison || b.Used() {
		return
	}
	u := b.Usable()
	for i := range u {
		u[i] = PoisonByte
	}
	b.setFlags(b.flags() | flagPoisoned)
}

// CheckStatus validates b's header against its neighbors and, for poisoned
// free blocks, its usable space.
func (b Block) CheckStatus() Status {
	if b.r == nil {
		return StatusMisaligned
	}
	size := uintptr(len(b.r.mem))
	if b.off%Alignment != 0 || b.off+Overhead > size {
		return StatusMisaligned
	}
	if buf.U32LE(b.hdr()[offCanary:]) != canaryFor(b.off) {
		return StatusCanaryMismatched
	}
	outer := b.OuterSize()
	if outer < Overhead || outer%Alignment != 0 || b.off+outer > size {
		return StatusNextMismatched
	}
	if b.Last() {
		if b.off+outer != size {
			return StatusNextMismatched
		}
	} else if b.off+outer+Overhead > size || b.next().prevOuter() != outer {
		return StatusNextMismatched
	}
	if prev := b.prevOuter(); prev != 0 {
		if prev > b.off || prev%Alignment != 0 {
			return StatusPrevMismatched
		}
		p := Block{r: b.r, off: b.off - prev}
		if p.OuterSize() != prev || p.Last() {
			return StatusPrevMismatched
		}
	} else if b.off != 0 {
		return StatusPrevMismatched
	}
	if !b.Used() && b.Poisoned() {
		for _, c := range b.Usable() {
			if c != PoisonByte {
				return StatusPoisonCorrupted
			}
		}
	}
	return StatusValid
}

// IsValid reports whether CheckStatus finds no problem.
func (b Block) IsValid() bool { return b.CheckStatus() == StatusValid }

// String implements fmt.Stringer.
func (b Block) String() string {
	state := "free"
	if b.Used() {
		state = "used"
	}
	return fmt.Sprintf("Block{off: %#x, outer: %d, %s}", b.off, b.OuterSize(), state)
}

// CanAllocFirst reports whether AllocFirst would succeed without changing b.
func (b Block) CanAllocFirst(innerSize, alignment uintptr) error {
	_, _, _, err := b.adjustForAllocFirst(innerSize, alignment)
	return err
}

// AllocFirst allocates innerSize bytes aligned to alignment from the low end
// of the free block b. A leading pad block is split off when the usable space
// is misaligned, and a trailing remainder is split off when it can stand as a
// block. It returns the allocated block.
func (b Block) AllocFirst(innerSize, alignment uintptr) (Block, error) {
	inner, pad, alignment, err := b.adjustForAllocFirst(innerSize, alignment)
	if err != nil {
		return Block{}, err
	}
	if inner+Overhead+MinInnerSize <= b.InnerSize() {
		var trailing Block
		b, trailing = b.split(inner)
		trailing.Poison()
	}
	if pad != 0 {
		var leading Block
		leading, b = b.split(pad - Overhead)
		leading.Poison()
	}
	b.markAllocated(alignment)
	return b, nil
}

func (b Block) adjustForAllocFirst(inner, alignment uintptr) (uintptr, uintptr, uintptr, error) {
	if b.Used() {
		return 0, 0, 0, ErrBlockUsed
	}
	b.crashIfInvalid()
	alignment = max(alignment, Alignment)
	addr := b.usableAddr()
	var pad uintptr
	if addr%alignment != 0 {
		var next uintptr
		var ok bool
		if next, ok = buf.AlignUp(addr+Overhead+MinInnerSize, alignment); !ok {
			return 0, 0, 0, ErrTooSmall
		}
		pad = next - addr
		if inner, ok = buf.AddUintptr(inner, pad); !ok {
			return 0, 0, 0, ErrTooSmall
		}
	}
	inner, ok := buf.AlignUp(inner, Alignment)
	if !ok || b.InnerSize() < inner {
		return 0, 0, 0, ErrTooSmall
	}
	return inner, pad, alignment, nil
}

// CanAllocLast reports whether AllocLast would succeed without changing b.
func (b Block) CanAllocLast(innerSize, alignment uintptr) error {
	_, _, err := b.adjustForAllocLast(innerSize, alignment)
	return err
}

// AllocLast allocates innerSize bytes aligned to alignment from the high end
// of the free block b, splitting off the leading part when it can stand as a
// block. It returns the allocated block.
func (b Block) AllocLast(innerSize, alignment uintptr) (Block, error) {
	pad, alignment, err := b.adjustForAllocLast(innerSize, alignment)
	if err != nil {
		return Block{}, err
	}
	if pad != 0 {
		var leading Block
		leading, b = b.split(pad - Overhead)
		leading.Poison()
	}
	b.markAllocated(alignment)
	return b, nil
}

func (b Block) adjustForAllocLast(inner, alignment uintptr) (uintptr, uintptr, error) {
	if b.Used() {
		return 0, 0, ErrBlockUsed
	}
	b.crashIfInvalid()
	if b.InnerSize() < inner {
		return 0, 0, ErrTooSmall
	}
	alignment = max(alignment, Alignment)
	addr := b.usableAddr()
	next := buf.AlignDown(addr+b.InnerSize()-inner, alignment)
	switch {
	case next == addr:
		return 0, alignment, nil
	case next >= addr+Overhead+MinInnerSize:
		return next - addr, alignment, nil
	case addr%alignment == 0:
		// The leading part cannot stand alone; take the whole block.
		return 0, alignment, nil
	}
	return 0, 0, ErrNoRoom
}

// Split divides the free block b into a block with newInnerSize usable bytes
// and a trailing free block holding the rest.
func (b Block) Split(newInnerSize uintptr) (Block, Block, error) {
	if b.Used() {
		return Block{}, Block{}, ErrBlockUsed
	}
	inner, ok := buf.AlignUp(newInnerSize, Alignment)
	if !ok || b.InnerSize() < inner {
		return Block{}, Block{}, ErrTooSmall
	}
	if b.InnerSize()-inner < Overhead+MinInnerSize {
		return Block{}, Block{}, ErrNoRoom
	}
	first, trailing := b.split(inner)
	trailing.Poison()
	return first, trailing, nil
}

// MergeNext absorbs the block following b. Both blocks must be free.
func (b Block) MergeNext() (Block, error) {
	if b.Last() {
		return b, ErrLastBlock
	}
	next := b.next()
	if b.Used() || next.Used() {
		return b, ErrBlockUsed
	}
	return b.mergeNext(next), nil
}

// Free marks b free and merges it with a free neighbor on either side. It
// returns the resulting free block, which starts before b if the previous
// block was free.
func Free(b Block) Block {
	b.MarkFree()
	if prev, ok := b.Prev(); ok && !prev.Used() {
		b = prev.mergeNext(b)
	}
	if next, ok := b.Next(); ok && !next.Used() {
		b = b.mergeNext(next)
	}
	b.Poison()
	return b
}

// Resize changes the usable size of the allocated block b in place. Growing
// succeeds only when a free next block supplies the difference. On failure b
// is left exactly as it was.
func (b Block) Resize(newInnerSize uintptr) error {
	if !b.Used() {
		return ErrBlockFree
	}
	oldInner := b.InnerSize()
	inner, ok := buf.AlignUp(newInnerSize, Alignment)
	if !ok {
		return ErrTooSmall
	}
	if inner == oldInner {
		return nil
	}

	shift := b.hdr()[offShift]
	b.MarkFree()
	if next, ok := b.Next(); ok && !next.Used() {
		b = b.mergeNext(next)
	}

	var err error
	switch {
	case b.InnerSize() < inner:
		err = ErrTooSmall
	case inner+Overhead+MinInnerSize <= b.InnerSize():
		var trailing Block
		b, trailing = b.split(inner)
		trailing.Poison()
	}
	if err != nil && b.InnerSize() != oldInner {
		var trailing Block
		b, trailing = b.split(oldInner)
		trailing.Poison()
	}
	b.MarkUsed()
	b.hdr()[offShift] = shift
	return err
}

// split rewrites b as a block with inner usable bytes followed by a free block
// holding the remainder. Callers check that the remainder fits.
func (b Block) split(inner uintptr) (Block, Block) {
	prevOuter := b.prevOuter()
	outer := b.OuterSize()
	last := b.Last()
	outer1 := inner + Overhead
	b.r.writeHeader(b.off, prevOuter, outer1, 0, defaultShift)
	second := Block{r: b.r, off: b.off + outer1}
	var flags uint16
	if last {
		flags = flagLast
	}
	b.r.writeHeader(second.off, outer1, outer-outer1, flags, defaultShift)
	if !last {
		second.next().setPrevOuter(outer - outer1)
	}
	return b, second
}

// mergeNext rewrites b to cover next as well. Both must be free.
func (b Block) mergeNext(next Block) Block {
	outer := b.OuterSize() + next.OuterSize()
	var flags uint16
	if next.Last() {
		flags = flagLast
	}
	b.r.writeHeader(b.off, b.prevOuter(), outer, flags, defaultShift)
	if flags == 0 {
		b.next().setPrevOuter(outer)
	}
	return b
}

func (b Block) markAllocated(alignment uintptr) {
	b.MarkUsed()
	shift := uint8(0)
	for uintptr(1)<<shift < alignment {
		shift++
	}
	b.hdr()[offShift] = shift
}

func (b Block) crashIfInvalid() {
	if st := b.CheckStatus(); st != StatusValid {
		panic(fmt.Errorf("block at %#x: %w", b.r.base+b.off, st.Err()))
	}
}

func (b Block) usableAddr() uintptr { return b.r.base + b.off + Overhead }

func (b Block) hdr() []byte { return b.r.header(b.off) }

func (b Block) next() Block { return Block{r: b.r, off: b.off + b.OuterSize()} }

func (b Block) prevOuter() uintptr { return uintptr(buf.U32LE(b.hdr()[offPrev:])) }

func (b Block) setPrevOuter(n uintptr) { buf.PutU32LE(b.hdr()[offPrev:], uint32(n)) }

func (b Block) flags() uint16 { return buf.U16LE(b.hdr()[offFlags:]) }

func (b Block) setFlags(f uint16) { buf.PutU16LE(b.hdr()[offFlags:], f) }
