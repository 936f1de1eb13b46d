package buf

import (
	"math"
	"testing"
)

func TestAddOverflowSafe(t *testing.T) {
	if sum, ok := AddOverflowSafe(10, 5); !ok || sum != 15 {
		t.Fatalf("AddOverflowSafe(10,5)=%d,%v want 15,true", sum, ok)
	}
	if _, ok := AddOverflowSafe(math.MaxInt, 1); ok {
		t.Fatalf("expected overflow when adding to MaxInt")
	}
	if _, ok := AddOverflowSafe(math.MinInt, -1); ok {
		t.Fatalf("expected underflow when subtracting from MinInt")
	}
}

func TestAddUintptr(t *testing.T) {
	if sum, ok := AddUintptr(8, 8); !ok || sum != 16 {
		t.Fatalf("AddUintptr(8,8)=%d,%v want 16,true", sum, ok)
	}
	if _, ok := AddUintptr(^uintptr(0), 1); ok {
		t.Fatalf("expected wraparound to be reported")
	}
}

func TestAlign(t *testing.T) {
	cases := []struct {
		n, align, up, down uintptr
	}{
		{0, 8, 0, 0},
		{1, 8, 8, 0},
		{8, 8, 8, 8},
		{9, 8, 16, 8},
		{100, 64, 128, 64},
		{4097, 4096, 8192, 4096},
	}
	for _, tc := range cases {
		up, ok := AlignUp(tc.n, tc.align)
		if !ok || up != tc.up {
			t.Fatalf("AlignUp(%d,%d)=%d,%v want %d", tc.n, tc.align, up, ok, tc.up)
		}
		if down := AlignDown(tc.n, tc.align); down != tc.down {
			t.Fatalf("AlignDown(%d,%d)=%d want %d", tc.n, tc.align, down, tc.down)
		}
	}
	if _, ok := AlignUp(^uintptr(0)-2, 8); ok {
		t.Fatalf("AlignUp should report overflow near the top of the address space")
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, n := range []uintptr{1, 2, 4, 8, 1 << 20} {
		if !IsPowerOfTwo(n) {
			t.Fatalf("IsPowerOfTwo(%d) = false", n)
		}
	}
	for _, n := range []uintptr{0, 3, 6, 12, 1<<20 + 1} {
		if IsPowerOfTwo(n) {
			t.Fatalf("IsPowerOfTwo(%d) = true", n)
		}
	}
}

func TestSliceAndHas(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4}
	if got, ok := Slice(data, 1, 3); !ok || len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("Slice returned unexpected result: %v, %v", got, ok)
	}
	if _, ok := Slice(data, 4, 2); ok {
		t.Fatalf("Slice should fail when extending beyond len")
	}
	if Has(data, 2, 4) {
		t.Fatalf("Has should be false for out-of-bounds range")
	}
	if !Has(data, 2, 1) {
		t.Fatalf("Has should be true for valid range")
	}

	if _, ok := Slice(data, -1, 1); ok {
		t.Fatalf("Slice should reject negative offset")
	}
	if _, ok := Slice(data, 1, -1); ok {
		t.Fatalf("Slice should reject negative length")
	}
}
