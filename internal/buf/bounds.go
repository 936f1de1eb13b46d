package buf

import "math"

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow int.
func AddOverflowSafe(a, b int) (int, bool) {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return 0, false
	case b < 0 && a < math.MinInt-b:
		return 0, false
	default:
		return a + b, true
	}
}

// AddUintptr adds a and b, returning ok = false when the result wraps.
func AddUintptr(a, b uintptr) (uintptr, bool) {
	sum := a + b
	return sum, sum >= a
}

// IsPowerOfTwo reports whether n is a non-zero power of two.
func IsPowerOfTwo(n uintptr) bool {
	return n != 0 && n&(n-1) == 0
}

// AlignUp rounds n up to the next multiple of align, which must be a power of two.
// ok is false when the rounded value does not fit in a uintptr.
func AlignUp(n, align uintptr) (uintptr, bool) {
	sum, ok := AddUintptr(n, align-1)
	if !ok {
		return 0, false
	}
	return sum &^ (align - 1), true
}

// AlignDown rounds n down to a multiple of align, which must be a power of two.
func AlignDown(n, align uintptr) uintptr {
	return n &^ (align - 1)
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
func Slice(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(b) {
		return nil, false
	}
	end, ok := AddOverflowSafe(off, n)
	if !ok || end > len(b) {
		return nil, false
	}
	return b[off:end], true
}

// Has reports whether b[off:off+n] is within bounds.
func Has(b []byte, off, n int) bool {
	_, ok := Slice(b, off, n)
	return ok
}
