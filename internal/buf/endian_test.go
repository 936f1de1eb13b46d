package buf

import "testing"

func TestEndianHelpers(t *testing.T) {
	data := []byte{0x01, 0x23, 0x45, 0x67}

	if got := U16LE(data); got != 0x2301 {
		t.Fatalf("U16LE = 0x%x, want 0x2301", got)
	}
	if got := U32LE(data); got != 0x67452301 {
		t.Fatalf("U32LE = 0x%x, want 0x67452301", got)
	}

	short := []byte{0xAA}
	if U16LE(short) != 0 || U32LE(short) != 0 {
		t.Fatalf("short reads should return 0")
	}
}

func TestPutHelpers(t *testing.T) {
	b := make([]byte, 6)
	if !PutU32LE(b, 0xdeadbeef) {
		t.Fatalf("PutU32LE failed on a large enough buffer")
	}
	if !PutU16LE(b[4:], 0xcafe) {
		t.Fatalf("PutU16LE failed on a large enough buffer")
	}
	if U32LE(b) != 0xdeadbeef || U16LE(b[4:]) != 0xcafe {
		t.Fatalf("round trip mismatch: % x", b)
	}
	if PutU32LE(b[3:], 1) {
		t.Fatalf("PutU32LE should refuse a short buffer")
	}
	if PutU16LE(b[5:], 1) {
		t.Fatalf("PutU16LE should refuse a short buffer")
	}
}
