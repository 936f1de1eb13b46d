// Package block implements free-list allocation over a caller-supplied arena.
//
// # Overview
//
// The arena is carved into an address-ordered, doubly-linked list of blocks.
// Each block starts with a 16-byte header followed by its usable space:
//
//	+--------+--------+-------+-------+----------+--------+-------------+
//	| prev   | outer  | flags | shift | reserved | canary | usable ...  |
//	| u32    | u32    | u16   | u8    | u8       | u32    |             |
//	+--------+--------+-------+-------+----------+--------+-------------+
//
// Links are stored as sizes, so a block's neighbors are found by offset
// arithmetic within the arena and no raw pointers are kept. Every block is
// 8-byte aligned and its outer size is a multiple of 8. The outer sizes of
// all blocks always sum to the arena capacity.
//
// # Placement Policies
//
//   - FirstFit: lowest-addressed free block that fits, low end of the block
//   - LastFit: highest-addressed free block that fits, high end of the block
//   - BestFit: smallest fitting free block, ties to the lowest address
//   - WorstFit: largest fitting free block, ties to the lowest address
//   - DualFirstFit: FirstFit below a size threshold, LastFit at or above it
//
// A chosen block is split when the remainder can hold a header and
// MinInnerSize usable bytes. Otherwise the whole block is handed out.
//
// # Coalescing
//
// Freeing a block merges it with a free neighbor on either side, so no two
// free blocks are ever adjacent. Non-adjacent free blocks are never merged.
//
// # Validation
//
// Headers carry an offset-derived canary. Deallocate and Resize validate the
// header behind the pointer they are given and panic with an error wrapping
// ErrCorrupted when it is damaged. With WithPoison, free blocks are filled
// with PoisonByte and a write into freed memory is reported the next time the
// block is inspected.
//
// # Usage Example
//
//	arena := make([]byte, 4096)
//	a, err := block.NewBestFit(arena, block.WithPoison(true))
//	if err != nil {
//	    return err
//	}
//	p := alloc.New(a, point{X: 1, Y: 2})
//	defer alloc.Delete(a, p)
//
// # Thread Safety
//
// Allocator is not safe for concurrent use. Wrap it with
// alloc.NewSynchronized to share it.
package block
