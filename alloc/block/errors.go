package block

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyArena indicates a nil or zero-length arena.
	ErrEmptyArena = errors.New("block: arena is empty")

	// ErrArenaTooSmall indicates an arena that cannot hold a single block.
	ErrArenaTooSmall = errors.New("block: arena too small for a block header")

	// ErrArenaTooLarge indicates an arena whose size does not fit a block header.
	ErrArenaTooLarge = errors.New("block: arena too large")

	// ErrBlockUsed indicates an operation that requires a free block.
	ErrBlockUsed = errors.New("block: block is in use")

	// ErrBlockFree indicates an operation that requires an allocated block.
	ErrBlockFree = errors.New("block: block is free")

	// ErrTooSmall indicates a block whose usable space cannot hold the request.
	ErrTooSmall = errors.New("block: block too small")

	// ErrNoRoom indicates a split that would leave a remainder too small to be a block.
	ErrNoRoom = errors.New("block: no room to split")

	// ErrLastBlock indicates a merge requested on the last block of an arena.
	ErrLastBlock = errors.New("block: no next block")

	// ErrCorrupted is wrapped by every header validation failure.
	ErrCorrupted = errors.New("block: corrupted")

	ErrCorruptedMisaligned = fmt.Errorf("%w: misaligned header", ErrCorrupted)
	ErrCorruptedNext       = fmt.Errorf("%w: next block does not link back", ErrCorrupted)
	ErrCorruptedPrev       = fmt.Errorf("%w: previous block does not link forward", ErrCorrupted)
	ErrCorruptedCanary     = fmt.Errorf("%w: header canary mismatch", ErrCorrupted)
	ErrCorruptedPoison     = fmt.Errorf("%w: free block poison overwritten", ErrCorrupted)
)

var (
	// ErrAdjacentFree indicates two neighboring free blocks that were not coalesced.
	ErrAdjacentFree = errors.New("block: adjacent free blocks")

	// ErrConservation indicates block sizes that do not add up to the arena capacity.
	ErrConservation = errors.New("block: block sizes do not cover the arena")
)
