package alloc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/blockalloc/alloc"
	"github.com/joshuapare/blockalloc/internal/testutil"
)

type point struct {
	X, Y int32
}

// counted increments a shared counter when destroyed.
type counted struct {
	id        int
	destroyed *int
}

func (c *counted) Destroy() { *c.destroyed++ }

func TestNewDelete(t *testing.T) {
	a := testutil.NewForTest(t)

	p := alloc.New(a, point{X: 1, Y: 2})
	require.NotNil(t, p)
	assert.Equal(t, point{X: 1, Y: 2}, *p)
	assert.Equal(t, alloc.LayoutOf[point]().Size(), a.AllocateSize())

	alloc.Delete(a, p)
	assert.Equal(t, alloc.LayoutOf[point]().Size(), a.DeallocateSize())
	assert.Zero(t, a.Metrics().AllocatedBytes)

	// Deleting nil is a no-op.
	a.ResetParameters()
	alloc.Delete[point](a, nil)
	assert.Nil(t, a.DeallocatePtr())
}

func TestDelete_RunsDestroyer(t *testing.T) {
	a := testutil.NewForTest(t)
	destroyed := 0

	c := alloc.New(a, counted{id: 1, destroyed: &destroyed})
	require.NotNil(t, c)
	alloc.Delete(a, c)
	assert.Equal(t, 1, destroyed)
}

func TestNew_Exhausted(t *testing.T) {
	a := testutil.NewForTest(t)
	a.Exhaust()

	assert.Nil(t, alloc.New(a, point{}))
	assert.Equal(t, uint64(1), a.Metrics().NumFailures)
}
