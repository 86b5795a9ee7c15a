package nic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/ardnew/softnic/hal"
	"github.com/ardnew/softnic/hal/mcdi"
	"github.com/ardnew/softnic/hal/sim"
	"github.com/ardnew/softnic/pkg"
	"github.com/ardnew/softnic/pkg/config"
)

const waitFor = 2 * time.Second

// fakeFirmware answers commands from a script and records what it was sent.
type fakeFirmware struct {
	mu     sync.Mutex
	calls  map[mcdi.Command]int
	last   map[mcdi.Command][]byte
	status map[mcdi.Command]pkg.Status
	params map[mcdi.Param]mcdi.ParamValue
	txqID  int

	// onCall runs before each command is answered, without f.mu held.
	onCall func(mcdi.Command)
}

func newFakeFirmware() *fakeFirmware {
	return &fakeFirmware{
		calls:  make(map[mcdi.Command]int),
		last:   make(map[mcdi.Command][]byte),
		status: make(map[mcdi.Command]pkg.Status),
		params: make(map[mcdi.Param]mcdi.ParamValue),
	}
}

func (f *fakeFirmware) Call(_ context.Context, cmd uint32, in, out []byte) (int, error) {
	c := mcdi.Command(cmd)
	if f.onCall != nil {
		f.onCall(c)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[c]++
	f.last[c] = append([]byte(nil), in...)
	if st, ok := f.status[c]; ok {
		return int(st), nil
	}

	switch c {
	case mcdi.CmdInitTXQ:
		return f.txqID, nil
	case mcdi.CmdGetParam:
		var req mcdi.ParamRequest
		mcdi.ParseParamRequest(in, &req)
		v, ok := f.params[req.Param]
		if !ok {
			return int(pkg.StatusNoSys), nil
		}
		v.MarshalTo(out)
	}
	return 0, nil
}

func (f *fakeFirmware) fail(cmd mcdi.Command, st pkg.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[cmd] = st
}

func (f *fakeFirmware) count(cmd mcdi.Command) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[cmd]
}

func (f *fakeFirmware) lastEVQParams(t *testing.T) mcdi.EVQParams {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var p mcdi.EVQParams
	require.True(t, mcdi.ParseEVQParams(f.last[mcdi.CmdInitEVQ], &p))
	return p
}

// flushRecorder collects TxQueueFlushed upcalls.
type flushRecorder struct {
	ch chan int
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{ch: make(chan int, 64)}
}

func (r *flushRecorder) TxQueueFlushed(_ *Adapter, txq int) {
	r.ch <- txq
}

func (r *flushRecorder) next(t *testing.T) int {
	t.Helper()
	select {
	case txq := <-r.ch:
		return txq
	case <-time.After(waitFor):
		t.Fatal("no flush completion")
		return -1
	}
}

func testClass() config.Class {
	c := config.Default()
	c.EVQs = 4
	c.TXQs = 8
	c.VIs = 16
	c.TXQMap = []int{0, NoTXQ, 2, 3}
	return c
}

type harness struct {
	a     *Adapter
	fw    *fakeFirmware
	mem   *sim.Memory
	clock *testingclock.FakeClock
	rec   *flushRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		fw:    newFakeFirmware(),
		mem:   sim.NewMemory(),
		clock: testingclock.NewFakeClock(time.Now()),
		rec:   newFlushRecorder(),
	}
	a, err := New(testClass(), h.fw, h.mem, WithClock(h.clock), WithEventHandler(h.rec))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	h.a = a
	return h
}

// ring allocates ring memory for entries events and returns the region and
// a view of it.
func (h *harness) ring(t *testing.T, entries int) (hal.DMARegion, hal.Ring) {
	t.Helper()
	region, err := h.mem.Alloc(entries * hal.EventSize)
	require.NoError(t, err)
	mem, err := h.mem.Map(region.Base(), entries*hal.EventSize)
	require.NoError(t, err)
	ring, err := hal.NewRing(mem, entries)
	require.NoError(t, err)
	return region, ring
}

func (h *harness) enable(t *testing.T, evq, entries int) hal.Ring {
	t.Helper()
	region, ring := h.ring(t, entries)
	require.NoError(t, h.a.EnableEVQ(context.Background(), EVQParams{EVQ: evq, Entries: entries, Region: region}))
	return ring
}

func (h *harness) evq(t *testing.T, id int) EVQInfo {
	t.Helper()
	info, err := h.a.Table().GetEVQ(id)
	require.NoError(t, err)
	return info
}

// waitRetryArmed waits until at least scans scanner runs have happened
// and a retry is waiting on the fake clock.
func (h *harness) waitRetryArmed(t *testing.T, evq int, scans uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		info, _ := h.a.Table().GetEVQ(evq)
		return h.a.stats.flushScans.Load() >= scans && info.ScanPending && h.clock.HasWaiters()
	}, waitFor, time.Millisecond)
}
