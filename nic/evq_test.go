package nic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softnic/hal"
	"github.com/ardnew/softnic/hal/mcdi"
	"github.com/ardnew/softnic/pkg"
)

func TestEnableEVQ(t *testing.T) {
	h := newHarness(t)
	region, _ := h.ring(t, 512)

	require.NoError(t, h.a.EnableEVQ(context.Background(), EVQParams{EVQ: 2, Entries: 512, Region: region}))

	info := h.evq(t, 2)
	assert.True(t, info.Initialized)
	assert.Equal(t, 512, info.Capacity)
	assert.Equal(t, 2, info.TXQ)
	assert.Zero(t, info.PendingFlushes)
	assert.False(t, info.ScanPending)
	assert.Zero(t, info.BoundTXQs)

	p := h.fw.lastEVQParams(t)
	assert.Equal(t, uint32(2), p.QID)
	assert.Equal(t, uint32(512), p.Entries)
	assert.Equal(t, region.Base(), p.PageAddr)
	assert.Equal(t, uint32(512*hal.EventSize), p.Size)
	assert.False(t, p.SubscribeTimeSync)
	assert.Zero(t, p.UnsolCredit)
}

func TestEnableEVQ_TimeSync(t *testing.T) {
	h := newHarness(t)
	region, _ := h.ring(t, 256)

	require.NoError(t, h.a.EnableEVQ(context.Background(), EVQParams{
		EVQ: 0, Entries: 256, Region: region, Flags: VITxTimestamps,
	}))

	p := h.fw.lastEVQParams(t)
	assert.True(t, p.SubscribeTimeSync)
	assert.Equal(t, uint32(TimeSyncEventEVQCapacity-1), p.UnsolCredit)
}

func TestEnableEVQ_DummyRange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for evq := h.a.Table().EVQs(); evq < h.a.Class().VIs; evq++ {
		assert.NoError(t, h.a.EnableEVQ(ctx, EVQParams{EVQ: evq}), "enable %d", evq)
		assert.NoError(t, h.a.DisableEVQ(ctx, evq), "disable %d", evq)
	}
	assert.Zero(t, h.fw.count(mcdi.CmdInitEVQ))
	assert.Zero(t, h.fw.count(mcdi.CmdFiniEVQ))

	for _, evq := range []int{-1, h.a.Class().VIs} {
		assert.ErrorIs(t, h.a.EnableEVQ(ctx, EVQParams{EVQ: evq}), pkg.ErrNotFound)
		assert.ErrorIs(t, h.a.DisableEVQ(ctx, evq), pkg.ErrNotFound)
	}
}

func TestEnableEVQ_Validation(t *testing.T) {
	h := newHarness(t)
	small, _ := h.ring(t, 2)
	good, _ := h.ring(t, 8)
	split := hal.DMARegion{Addrs: []uint64{0x1_0000_0000, 0x1_0000_3000}, Size: hal.NICPageSize}

	tests := []struct {
		name string
		p    EVQParams
		want error
	}{
		{"not power of two", EVQParams{EVQ: 0, Entries: 6, Region: good}, pkg.ErrInvalidArgument},
		{"zero entries", EVQParams{EVQ: 0, Entries: 0, Region: good}, pkg.ErrInvalidArgument},
		{"no region", EVQParams{EVQ: 0, Entries: 4}, pkg.ErrInvalidArgument},
		{"not contiguous", EVQParams{EVQ: 0, Entries: 4, Region: split}, pkg.ErrInvalidArgument},
		{"ring too small", EVQParams{EVQ: 0, Entries: 4, Region: hal.DMARegion{Addrs: small.Addrs, Size: 16}}, pkg.ErrInsufficientMemory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.a.EnableEVQ(context.Background(), tt.p)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Zero(t, h.fw.count(mcdi.CmdInitEVQ))
	assert.False(t, h.evq(t, 0).Initialized)
}

func TestEnableEVQ_AlreadyEnabled(t *testing.T) {
	h := newHarness(t)
	h.enable(t, 0, 8)
	region, _ := h.ring(t, 8)

	err := h.a.EnableEVQ(context.Background(), EVQParams{EVQ: 0, Entries: 8, Region: region})
	assert.ErrorIs(t, err, pkg.ErrBusy)
	assert.Equal(t, 1, h.fw.count(mcdi.CmdInitEVQ))
}

func TestEnableEVQ_FirmwareRejects(t *testing.T) {
	h := newHarness(t)
	h.fw.fail(mcdi.CmdInitEVQ, pkg.StatusNoMemory)
	region, _ := h.ring(t, 8)

	err := h.a.EnableEVQ(context.Background(), EVQParams{EVQ: 1, Entries: 8, Region: region})

	var de *pkg.DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, pkg.StatusNoMemory, de.Status)
	assert.ErrorIs(t, err, pkg.ErrInsufficientMemory)
	assert.False(t, h.evq(t, 1).Initialized)
}

func TestEnableEVQ_UnmappedRegion(t *testing.T) {
	h := newHarness(t)
	region := hal.DMARegion{Addrs: []uint64{0xdead_0000}, Size: hal.NICPageSize}

	err := h.a.EnableEVQ(context.Background(), EVQParams{EVQ: 0, Entries: 8, Region: region})
	assert.Error(t, err)
	assert.Zero(t, h.fw.count(mcdi.CmdInitEVQ))
}

func TestDisableEVQ(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enable(t, 0, 8)

	require.NoError(t, h.a.DisableEVQ(ctx, 0))

	info := h.evq(t, 0)
	assert.False(t, info.Initialized)
	assert.Zero(t, info.Capacity)
	assert.Equal(t, int32(flushSentinel), info.PendingFlushes)
	assert.False(t, info.ScanPending)
	assert.Equal(t, 1, h.fw.count(mcdi.CmdFiniEVQ))

	// A second disable is a no-op.
	require.NoError(t, h.a.DisableEVQ(ctx, 0))
	assert.Equal(t, 1, h.fw.count(mcdi.CmdFiniEVQ))
}

func TestDisableEVQ_ReleasesTXQs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enable(t, 0, 8)
	h.fw.txqID = 5

	txq, err := h.a.InitTXQ(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1)<<txq, h.evq(t, 0).BoundTXQs)

	require.NoError(t, h.a.DisableEVQ(ctx, 0))

	x, err := h.a.Table().GetTXQ(txq)
	require.NoError(t, err)
	assert.Equal(t, Unbound, x.EVQ)
	assert.Zero(t, h.evq(t, 0).BoundTXQs)
}

func TestDisableEVQ_FirmwareFailure(t *testing.T) {
	h := newHarness(t)
	h.enable(t, 3, 8)
	h.fw.fail(mcdi.CmdFiniEVQ, pkg.StatusIO)

	require.NoError(t, h.a.DisableEVQ(context.Background(), 3))

	assert.False(t, h.evq(t, 3).Initialized)
	assert.Equal(t, uint64(1), h.a.stats.finiFailures.Load())
}

func TestEnableEVQ_AfterDisable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enable(t, 0, 8)
	require.NoError(t, h.a.DisableEVQ(ctx, 0))

	h.enable(t, 0, 16)

	info := h.evq(t, 0)
	assert.True(t, info.Initialized)
	assert.Equal(t, 16, info.Capacity)
	assert.Zero(t, info.PendingFlushes)
}

func TestEnableEVQ_RacesClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	region, _ := h.ring(t, 8)

	// Hold the queue so the enable is still waiting when Close sweeps it.
	q := h.a.table.evqs[1]
	q.life.Lock()

	enabled := make(chan error, 1)
	go func() {
		enabled <- h.a.EnableEVQ(ctx, EVQParams{EVQ: 1, Entries: 8, Region: region})
	}()
	time.Sleep(10 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- h.a.Close(ctx) }()
	require.Eventually(t, func() bool {
		return h.a.checkOpen() != nil
	}, waitFor, time.Millisecond)
	q.life.Unlock()

	require.NoError(t, <-closed)
	assert.ErrorIs(t, <-enabled, pkg.ErrDetached)
	assert.Zero(t, h.fw.count(mcdi.CmdInitEVQ))
	assert.False(t, h.evq(t, 1).Initialized)
}
