package nic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softnic/pkg"
)

func TestTable_Sizes(t *testing.T) {
	h := newHarness(t)
	tab := h.a.Table()

	assert.Equal(t, 4, tab.EVQs())
	assert.Equal(t, 8, tab.TXQs())

	for i, want := range []int{0, NoTXQ, 2, 3} {
		info, err := tab.GetEVQ(i)
		require.NoError(t, err)
		assert.Equal(t, want, info.TXQ, "evq %d", i)
		assert.False(t, info.Initialized)
	}
	for i := 0; i < tab.TXQs(); i++ {
		info, err := tab.GetTXQ(i)
		require.NoError(t, err)
		assert.Equal(t, Unbound, info.EVQ)
	}

	_, err := tab.GetEVQ(4)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
	_, err = tab.GetTXQ(-1)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestTable_Bind(t *testing.T) {
	h := newHarness(t)
	tab := h.a.Table()

	assert.ErrorIs(t, tab.Bind(0, 1), pkg.ErrInvalidState, "evq not initialized")
	assert.ErrorIs(t, tab.Bind(9, 1), pkg.ErrNotFound)
	assert.ErrorIs(t, tab.Bind(0, 8), pkg.ErrNotFound)

	h.enable(t, 0, 8)
	h.enable(t, 2, 8)

	require.NoError(t, tab.Bind(0, 1))
	assert.ErrorIs(t, tab.Bind(2, 1), pkg.ErrBusy)

	x, err := tab.GetTXQ(1)
	require.NoError(t, err)
	assert.Equal(t, 0, x.EVQ)
	assert.Equal(t, uint64(1<<1), h.evq(t, 0).BoundTXQs)
}

func TestTable_Unbind(t *testing.T) {
	h := newHarness(t)
	tab := h.a.Table()
	h.enable(t, 0, 8)
	h.enable(t, 2, 8)
	require.NoError(t, tab.Bind(0, 4))

	assert.ErrorIs(t, tab.Unbind(2, 4), pkg.ErrInvalidState)
	require.NoError(t, tab.Unbind(0, 4))
	assert.ErrorIs(t, tab.Unbind(0, 4), pkg.ErrInvalidState)

	x, err := tab.GetTXQ(4)
	require.NoError(t, err)
	assert.Equal(t, Unbound, x.EVQ)
	assert.Zero(t, h.evq(t, 0).BoundTXQs)

	// The queue can be rebound elsewhere once released.
	require.NoError(t, tab.Bind(2, 4))
}
