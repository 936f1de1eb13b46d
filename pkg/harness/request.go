package harness

import (
	"fmt"
	"math/bits"
	"math/rand/v2"

	"github.com/joshuapare/blockalloc/internal/buf"
)

// Kind identifies what a Request asks the allocator to do.
type Kind uint8

const (
	KindAllocate Kind = iota
	KindDeallocate
	KindReallocate
)

func (k Kind) String() string {
	switch k {
	case KindAllocate:
		return "allocate"
	case KindDeallocate:
		return "deallocate"
	case KindReallocate:
		return "reallocate"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Request is one step of a workload.
//
//   - KindAllocate uses Size and Alignment.
//   - KindDeallocate uses Index.
//   - KindReallocate uses Index and Size.
//
// Index selects a live allocation modulo the number of live allocations.
type Request struct {
	Kind      Kind
	Size      uintptr
	Alignment uintptr
	Index     int
}

// AlignmentFromLShift turns an arbitrary shift amount into a power-of-two
// alignment no larger than the highest set bit of size.
func AlignmentFromLShift(lshift, size uintptr) uintptr {
	numBits := uintptr(1)
	if size != 0 {
		numBits = uintptr(min(bits.Len(uint(size)), bits.UintSize-1))
	}
	return uintptr(1) << (lshift % numBits)
}

// Generate draws one request. Sizes are below maxSize; a zero maxSize yields
// zero-size requests.
func Generate(rng *rand.Rand, maxSize uintptr) Request {
	switch rng.IntN(3) {
	case 0:
		size := randSize(rng, maxSize)
		return Request{
			Kind:      KindAllocate,
			Size:      size,
			Alignment: AlignmentFromLShift(uintptr(rng.Uint32()&0xff), size),
		}
	case 1:
		return Request{Kind: KindDeallocate, Index: int(rng.Uint32() >> 1)}
	default:
		return Request{
			Kind:  KindReallocate,
			Index: int(rng.Uint32() >> 1),
			Size:  randSize(rng, maxSize),
		}
	}
}

func randSize(rng *rand.Rand, maxSize uintptr) uintptr {
	if maxSize == 0 {
		return 0
	}
	return uintptr(rng.Uint64N(uint64(maxSize)))
}

// DecodeRequests turns arbitrary bytes into requests, for fuzzing. Each
// request starts with a selector byte:
//
//	selector%3 == 0  allocate    u16 size, u8 lshift
//	selector%3 == 1  deallocate  u8 index
//	selector%3 == 2  reallocate  u8 index, u16 size
//
// Sizes are reduced modulo maxSize. Decoding stops at the first truncated
// request.
func DecodeRequests(data []byte, maxSize uintptr) []Request {
	var out []Request
	reduce := func(v uint16) uintptr {
		if maxSize == 0 {
			return 0
		}
		return uintptr(v) % maxSize
	}
	for off := 0; off < len(data); {
		kind := Kind(data[off] % 3)
		off++
		switch kind {
		case KindAllocate:
			b, ok := buf.Slice(data, off, 3)
			if !ok {
				return out
			}
			size := reduce(buf.U16LE(b))
			out = append(out, Request{
				Kind:      KindAllocate,
				Size:      size,
				Alignment: AlignmentFromLShift(uintptr(b[2]), size),
			})
			off += 3
		case KindDeallocate:
			if !buf.Has(data, off, 1) {
				return out
			}
			out = append(out, Request{Kind: KindDeallocate, Index: int(data[off])})
			off++
		case KindReallocate:
			b, ok := buf.Slice(data, off, 3)
			if !ok {
				return out
			}
			out = append(out, Request{
				Kind:  KindReallocate,
				Index: int(b[0]),
				Size:  reduce(buf.U16LE(b[1:])),
			})
			off += 3
		}
	}
	return out
}
