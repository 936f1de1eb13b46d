package alloc_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/blockalloc/alloc"
)

func TestNullAllocator(t *testing.T) {
	var a alloc.Allocator = alloc.NullAllocator{}
	l := alloc.LayoutOf[uint64]()

	assert.Nil(t, a.Allocate(l))
	assert.Nil(t, alloc.New(a, uint64(7)))
	u := alloc.MakeUnique(a, uint64(7))
	assert.True(t, u.IsNil())

	var x uint64
	ptr := unsafe.Pointer(&x)
	assert.False(t, a.Resize(ptr, l, 16))
	assert.Nil(t, a.Reallocate(ptr, l, l.WithSize(16)))
	require.ErrorIs(t, a.Query(ptr, l), alloc.ErrOutOfRange)
	assert.NotPanics(t, func() { a.Deallocate(ptr, l) })
}
