package harness_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/blockalloc/alloc"
	"github.com/joshuapare/blockalloc/alloc/block"
	"github.com/joshuapare/blockalloc/pkg/harness"
)

func TestAlignmentFromLShift(t *testing.T) {
	tests := []struct {
		lshift, size, want uintptr
	}{
		{0, 0, 1},
		{5, 0, 1},
		{0, 1, 1},
		{1, 8, 2},
		{3, 8, 8},
		{4, 8, 1}, // 8 has bit length 4, so the shift wraps
		{6, 100, 64},
		{7, 100, 1},
	}
	for _, tt := range tests {
		got := harness.AlignmentFromLShift(tt.lshift, tt.size)
		assert.Equal(t, tt.want, got, "lshift=%d size=%d", tt.lshift, tt.size)
		if tt.size != 0 {
			assert.LessOrEqual(t, got, tt.size)
		}
	}
}

func TestDecodeRequests(t *testing.T) {
	data := []byte{
		0, 0x40, 0x00, 2, // allocate 64, lshift 2
		1, 5, // deallocate index 5
		2, 3, 0x10, 0x00, // reallocate index 3 to 16
		0, 0xff, // truncated allocate
	}
	reqs := harness.DecodeRequests(data, 1024)
	require.Len(t, reqs, 3)

	assert.Equal(t, harness.Request{Kind: harness.KindAllocate, Size: 64, Alignment: 4}, reqs[0])
	assert.Equal(t, harness.Request{Kind: harness.KindDeallocate, Index: 5}, reqs[1])
	assert.Equal(t, harness.Request{Kind: harness.KindReallocate, Index: 3, Size: 16}, reqs[2])

	assert.Empty(t, harness.DecodeRequests(nil, 1024))
}

func TestHarness_HandleRequest(t *testing.T) {
	a, err := block.NewFirstFit(make([]byte, 1024))
	require.NoError(t, err)
	h := harness.New(a, 2)

	// Nothing live: frees and reallocations are ignored.
	h.HandleRequest(harness.Request{Kind: harness.KindDeallocate})
	h.HandleRequest(harness.Request{Kind: harness.KindReallocate, Size: 8})
	assert.Equal(t, uint64(2), h.Stats().Ignored)

	h.HandleRequest(harness.Request{Kind: harness.KindAllocate, Size: 32, Alignment: 8})
	h.HandleRequest(harness.Request{Kind: harness.KindAllocate, Size: 16, Alignment: 1})
	h.HandleRequest(harness.Request{Kind: harness.KindAllocate, Size: 16, Alignment: 1})
	assert.Equal(t, 2, h.Live(), "third allocation exceeds the live limit")
	assert.Equal(t, uintptr(48), h.Stats().LiveBytes())

	h.HandleRequest(harness.Request{Kind: harness.KindReallocate, Index: 0, Size: 4096})
	assert.Equal(t, 2, h.Live(), "failed reallocation keeps the allocation")
	assert.Equal(t, uint64(1), h.Stats().Failures)

	h.HandleRequest(harness.Request{Kind: harness.KindReallocate, Index: 1, Size: 64})
	assert.Equal(t, uint64(1), h.Stats().Reallocations)

	h.HandleRequest(harness.Request{Kind: harness.KindDeallocate, Index: 7})
	assert.Equal(t, 1, h.Live())

	h.Reset()
	assert.Zero(t, h.Live())
	assert.Zero(t, h.Stats().LiveBytes())
	assert.Equal(t, 2, h.Stats().PeakLive)
	require.NoError(t, a.Validate())
}

func TestHarness_StampsMemory(t *testing.T) {
	a, err := block.NewFirstFit(make([]byte, 256))
	require.NoError(t, err)
	h := harness.New(a, 4)

	h.HandleRequest(harness.Request{Kind: harness.KindAllocate, Size: 12, Alignment: 4})
	var data []byte
	for b := range a.Blocks() {
		if b.Used() {
			data = b.Usable()[:12]
		}
	}
	require.NotNil(t, data)
	assert.Equal(t, []byte{1, 0, 0, 0, 12, 0, 0, 0, 0x5A, 0x5A, 0x5A, 0x5A}, data)
	h.Reset()
}

func TestHarness_Tracking(t *testing.T) {
	a, err := block.NewBestFit(make([]byte, 8<<10))
	require.NoError(t, err)
	tracker := alloc.NewTracking("harness", a, alloc.AllMetrics)

	h := harness.New(tracker, 32)
	h.GenerateRequests(rand.New(rand.NewPCG(42, 42)), 256, 2000)

	m := tracker.Metrics()
	s := h.Stats()
	assert.Zero(t, m.AllocatedBytes, "harness frees everything")
	assert.Equal(t, s.Allocations, m.NumAllocations)
	assert.Equal(t, s.Deallocations, m.NumDeallocations)
	assert.GreaterOrEqual(t, m.PeakAllocatedBytes, uint64(s.PeakLiveBytes))
	require.NoError(t, a.Validate())
}

func TestGenerate_Bounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	for range 1000 {
		r := harness.Generate(rng, 100)
		assert.Less(t, r.Size, uintptr(100))
		assert.GreaterOrEqual(t, r.Index, 0)
		if r.Kind == harness.KindAllocate {
			assert.NotZero(t, r.Alignment)
		}
	}
}
