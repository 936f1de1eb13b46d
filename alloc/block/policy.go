package block

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Policy chooses the free block a request is carved from and carves it.
// Implementations return false when no free block can satisfy the request.
type Policy interface {
	Place(r *Region, innerSize, alignment uintptr) (Block, bool)
	String() string
}

// FirstFit takes the lowest-addressed free block that fits and allocates
// from its low end.
type FirstFit struct{}

func (FirstFit) Place(r *Region, innerSize, alignment uintptr) (Block, bool) {
	return placeFirst(r, innerSize, alignment)
}

func (FirstFit) String() string { return "first-fit" }

// LastFit takes the highest-addressed free block that fits and allocates
// from its high end.
type LastFit struct{}

func (LastFit) Place(r *Region, innerSize, alignment uintptr) (Block, bool) {
	return placeLast(r, innerSize, alignment)
}

func (LastFit) String() string { return "last-fit" }

// BestFit takes the free block with the smallest usable space that fits.
// Ties go to the lowest address.
type BestFit struct{}

func (BestFit) Place(r *Region, innerSize, alignment uintptr) (Block, bool) {
	return placeBy(r, innerSize, alignment, func(candidate, chosen uintptr) bool {
		return candidate < chosen
	})
}

func (BestFit) String() string { return "best-fit" }

// WorstFit takes the free block with the largest usable space that fits.
// Ties go to the lowest address.
type WorstFit struct{}

func (WorstFit) Place(r *Region, innerSize, alignment uintptr) (Block, bool) {
	return placeBy(r, innerSize, alignment, func(candidate, chosen uintptr) bool {
		return candidate > chosen
	})
}

func (WorstFit) String() string { return "worst-fit" }

// DualFirstFit keeps small and large allocations at opposite ends of the
// arena. Requests smaller than Threshold are placed first-fit from the low
// end; the rest are placed from the high end.
type DualFirstFit struct {
	Threshold uintptr
}

func (p DualFirstFit) Place(r *Region, innerSize, alignment uintptr) (Block, bool) {
	if innerSize < p.Threshold {
		return placeFirst(r, innerSize, alignment)
	}
	return placeLast(r, innerSize, alignment)
}

func (p DualFirstFit) String() string {
	return "dual-first-fit(" + humanize.IBytes(uint64(p.Threshold)) + ")"
}

// PolicyNames lists the names accepted by ParsePolicy.
var PolicyNames = []string{"first-fit", "last-fit", "best-fit", "worst-fit", "dual-first-fit"}

// ParsePolicy returns the policy called name. The dual-first-fit threshold is
// taken from threshold.
func ParsePolicy(name string, threshold uintptr) (Policy, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "first-fit", "firstfit", "first":
		return FirstFit{}, nil
	case "last-fit", "lastfit", "last":
		return LastFit{}, nil
	case "best-fit", "bestfit", "best":
		return BestFit{}, nil
	case "worst-fit", "worstfit", "worst":
		return WorstFit{}, nil
	case "dual-first-fit", "dualfirstfit", "dual":
		return DualFirstFit{Threshold: threshold}, nil
	}
	return nil, fmt.Errorf("block: unknown policy %s (want one of %s)",
		strconv.Quote(name), strings.Join(PolicyNames, ", "))
}

func placeFirst(r *Region, innerSize, alignment uintptr) (Block, bool) {
	for b := range r.Blocks() {
		if b.CanAllocFirst(innerSize, alignment) == nil {
			return placed(b.AllocFirst(innerSize, alignment))
		}
	}
	return Block{}, false
}

func placeLast(r *Region, innerSize, alignment uintptr) (Block, bool) {
	for b := range r.Backward() {
		if b.CanAllocLast(innerSize, alignment) == nil {
			return placed(b.AllocLast(innerSize, alignment))
		}
	}
	return Block{}, false
}

// placeBy allocates from the fitting free block preferred by better, which
// compares a candidate's usable size against the current choice.
func placeBy(r *Region, innerSize, alignment uintptr, better func(candidate, chosen uintptr) bool) (Block, bool) {
	var chosen Block
	found := false
	for b := range r.Blocks() {
		if b.CanAllocFirst(innerSize, alignment) != nil {
			continue
		}
		if !found || better(b.InnerSize(), chosen.InnerSize()) {
			chosen, found = b, true
		}
	}
	if !found {
		return Block{}, false
	}
	return placed(chosen.AllocFirst(innerSize, alignment))
}

func placed(b Block, err error) (Block, bool) {
	return b, err == nil
}
