// Package buf contains bounds-checked helpers for reading and writing
// fixed-width fields inside a byte arena.
package buf

import "encoding/binary"

// U16LE reads a little-endian uint16 from b. Returns 0 when b is too short.
func U16LE(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32LE reads a little-endian uint32 from b. Returns 0 when b is too short.
func U32LE(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// PutU16LE writes v at the start of b. It reports false when b is too short.
func PutU16LE(b []byte, v uint16) bool {
	if len(b) < 2 {
		return false
	}
	binary.LittleEndian.PutUint16(b, v)
	return true
}

// PutU32LE writes v at the start of b. It reports false when b is too short.
func PutU32LE(b []byte, v uint32) bool {
	if len(b) < 4 {
		return false
	}
	binary.LittleEndian.PutUint32(b, v)
	return true
}
