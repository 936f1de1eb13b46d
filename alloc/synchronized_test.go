package alloc_test

import (
	"math/rand/v2"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/blockalloc/alloc"
	"github.com/joshuapare/blockalloc/alloc/block"
	"github.com/joshuapare/blockalloc/pkg/harness"
)

// probeLock counts acquisitions and tracks whether it is held.
type probeLock struct {
	mu    sync.Mutex
	held  bool
	locks int
}

func (l *probeLock) Lock()   { l.mu.Lock(); l.held = true; l.locks++ }
func (l *probeLock) Unlock() { l.held = false; l.mu.Unlock() }

// lockChecker fails the test if it is called without the lock held.
type lockChecker struct {
	alloc.NullAllocator
	t    *testing.T
	lock *probeLock
}

func (c lockChecker) Allocate(alloc.Layout) unsafe.Pointer {
	assert.True(c.t, c.lock.held, "Allocate called without the lock")
	return nil
}

func (c lockChecker) Resize(unsafe.Pointer, alloc.Layout, uintptr) bool {
	assert.True(c.t, c.lock.held, "Resize called without the lock")
	return false
}

func TestSynchronized_HoldsLockPerCall(t *testing.T) {
	lock := &probeLock{}
	s := alloc.NewSynchronized(lockChecker{t: t, lock: lock}, lock)
	l := alloc.LayoutOf[uint64]()

	assert.Nil(t, s.Allocate(l))
	assert.False(t, s.Resize(nil, l, 16))
	s.Deallocate(nil, l)
	_ = s.Query(nil, l)

	assert.Equal(t, 4, lock.locks, "one acquisition per forwarded call")
	assert.False(t, lock.held, "lock released after every call")
}

func TestSynchronized_Concurrent(t *testing.T) {
	for _, tc := range []struct {
		name string
		lock sync.Locker
	}{
		{"mutex", nil},
		{"spin", &alloc.SpinLock{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			blocks, err := block.NewBestFit(make([]byte, 64<<10), block.WithPoison(true))
			require.NoError(t, err)
			tracker := alloc.NewTracking("shared", blocks, alloc.AllMetrics)
			s := alloc.NewSynchronized(tracker, tc.lock)

			var g errgroup.Group
			for w := range 8 {
				g.Go(func() error {
					h := harness.New(s, 32)
					h.GenerateRequests(rand.New(rand.NewPCG(uint64(w), 99)), 512, 1000)
					return nil
				})
			}
			require.NoError(t, g.Wait())

			require.NoError(t, blocks.Validate())
			m := tracker.Metrics()
			assert.Zero(t, m.AllocatedBytes, "every worker released its allocations")
			assert.NotZero(t, m.NumAllocations)
			assert.Equal(t, m.NumAllocations, m.NumDeallocations, "each allocation is freed exactly once")
			assert.Equal(t, 1, blocks.Stats().FreeBlocks)
		})
	}
}

func TestSynchronized_GetLayout(t *testing.T) {
	blocks, err := block.NewFirstFit(make([]byte, 256))
	require.NoError(t, err)
	s := alloc.NewSynchronized(blocks, nil)

	p := s.Allocate(alloc.MustLayout(24, 8))
	l, err := alloc.GetLayout(s, p)
	require.NoError(t, err)
	assert.Equal(t, uintptr(24), l.Size())

	_, err = alloc.GetLayout(alloc.NewSynchronized(alloc.NullAllocator{}, nil), p)
	require.ErrorIs(t, err, alloc.ErrUnimplemented)
}

func TestSpinLock(t *testing.T) {
	var l alloc.SpinLock
	require.True(t, l.TryLock())
	assert.False(t, l.TryLock(), "already held")
	l.Unlock()

	counter := 0
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				l.Lock()
				counter++
				l.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 4000, counter)
}
