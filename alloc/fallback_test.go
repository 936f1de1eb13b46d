package alloc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/blockalloc/alloc"
	"github.com/joshuapare/blockalloc/internal/testutil"
)

type fallbackFixture struct {
	primary   *testutil.ForTest
	secondary *testutil.ForTest
	fallback  *alloc.FallbackAllocator
}

func newFallbackFixture(t *testing.T) fallbackFixture {
	t.Helper()
	primary := testutil.NewForTestSize(t, 128)
	secondary := testutil.NewForTestSize(t, 128)
	return fallbackFixture{
		primary:   primary,
		secondary: secondary,
		fallback:  alloc.NewFallback(primary, secondary),
	}
}

var u32 = alloc.LayoutOf[uint32]()

func TestFallback_Query(t *testing.T) {
	f := newFallbackFixture(t)

	p := f.primary.Allocate(u32)
	require.NoError(t, f.fallback.Query(p, u32))

	s := f.secondary.Allocate(u32)
	require.ErrorIs(t, f.primary.Query(s, u32), alloc.ErrOutOfRange)
	require.NoError(t, f.fallback.Query(s, u32))

	other := testutil.NewForTestSize(t, 128)
	o := other.Allocate(u32)
	require.ErrorIs(t, f.fallback.Query(o, u32), alloc.ErrOutOfRange)
}

func TestFallback_Allocate(t *testing.T) {
	t.Run("primary", func(t *testing.T) {
		f := newFallbackFixture(t)
		require.NotNil(t, f.fallback.Allocate(u32))
		assert.Equal(t, u32.Size(), f.primary.AllocateSize())
		assert.Zero(t, f.secondary.AllocateSize())
	})

	t.Run("secondary", func(t *testing.T) {
		f := newFallbackFixture(t)
		f.primary.Exhaust()
		require.NotNil(t, f.fallback.Allocate(u32))
		assert.Equal(t, u32.Size(), f.primary.AllocateSize())
		assert.Equal(t, u32.Size(), f.secondary.AllocateSize())
	})

	t.Run("failure", func(t *testing.T) {
		f := newFallbackFixture(t)
		huge := alloc.LayoutOf[[0x10000]uint32]()
		assert.Nil(t, f.fallback.Allocate(huge))
		assert.Equal(t, huge.Size(), f.primary.AllocateSize())
		assert.Equal(t, huge.Size(), f.secondary.AllocateSize())
	})
}

func TestFallback_DeallocateRouting(t *testing.T) {
	t.Run("primary", func(t *testing.T) {
		f := newFallbackFixture(t)
		p := f.fallback.Allocate(u32)
		f.fallback.Deallocate(p, u32)
		assert.Equal(t, p, f.primary.DeallocatePtr())
		assert.Equal(t, u32.Size(), f.primary.DeallocateSize())
		assert.Nil(t, f.secondary.DeallocatePtr())
	})

	t.Run("secondary", func(t *testing.T) {
		f := newFallbackFixture(t)
		f.primary.Exhaust()
		p := f.fallback.Allocate(u32)
		f.fallback.Deallocate(p, u32)
		assert.Nil(t, f.primary.DeallocatePtr())
		assert.Equal(t, p, f.secondary.DeallocatePtr())
		assert.Equal(t, u32.Size(), f.secondary.DeallocateSize())
	})
}

func TestFallback_ResizeRouting(t *testing.T) {
	newSize := alloc.LayoutOf[[3]uint32]().Size()

	t.Run("primary", func(t *testing.T) {
		f := newFallbackFixture(t)
		p := f.fallback.Allocate(u32)
		require.NotNil(t, p)
		assert.True(t, f.fallback.Resize(p, u32, newSize))
		assert.Equal(t, p, f.primary.ResizePtr())
		assert.Equal(t, u32.Size(), f.primary.ResizeOldSize())
		assert.Equal(t, newSize, f.primary.ResizeNewSize())
		assert.Nil(t, f.secondary.ResizePtr(), "secondary untouched")
	})

	t.Run("primary failure", func(t *testing.T) {
		f := newFallbackFixture(t)
		p := f.fallback.Allocate(u32)
		require.NotNil(t, p)
		f.primary.Exhaust()
		assert.False(t, f.fallback.Resize(p, u32, newSize))
		assert.Equal(t, p, f.primary.ResizePtr())
		assert.Nil(t, f.secondary.ResizePtr(), "secondary untouched")
	})

	t.Run("secondary", func(t *testing.T) {
		f := newFallbackFixture(t)
		f.primary.Exhaust()
		p := f.fallback.Allocate(u32)
		require.NotNil(t, p)
		assert.True(t, f.fallback.Resize(p, u32, newSize))
		assert.Nil(t, f.primary.ResizePtr())
		assert.Equal(t, p, f.secondary.ResizePtr())
		assert.Equal(t, newSize, f.secondary.ResizeNewSize())
	})
}

func TestFallback_ReallocateMovesToSecondary(t *testing.T) {
	f := newFallbackFixture(t)
	p := f.fallback.Allocate(u32)
	require.NotNil(t, p)
	*(*uint32)(p) = 0xfeedbeef
	f.primary.Exhaust()

	big := alloc.LayoutOf[[8]uint32]()
	q := f.fallback.Reallocate(p, u32, big)
	require.NotNil(t, q)
	require.NoError(t, f.secondary.Query(q, big))
	assert.Equal(t, uint32(0xfeedbeef), *(*uint32)(q))
	assert.Equal(t, p, f.primary.DeallocatePtr(), "old memory released from the primary")
}

func TestFallback_GetLayout(t *testing.T) {
	f := newFallbackFixture(t)
	f.primary.Exhaust()
	p := f.fallback.Allocate(u32)

	l, err := alloc.GetLayout(f.fallback, p)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, l.Size(), u32.Size())
}
