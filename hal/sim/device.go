package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/ardnew/softnic/hal"
	"github.com/ardnew/softnic/hal/mcdi"
	"github.com/ardnew/softnic/pkg"
	"github.com/ardnew/softnic/pkg/config"
	"github.com/ardnew/softnic/pkg/work"
)

// TXInterval is the default period of the simulated transmit engine.
const TXInterval = 100 * time.Millisecond

// CTPIOSize is the size of each transmit queue's CTPIO aperture.
const CTPIOSize = 0x1000

// EVQWindowStride is the size of each VI's doorbell window.
const EVQWindowStride = 0x1000

// frameHeader is the number of aperture bytes inspected for a written frame.
const frameHeader = 8

type simEVQ struct {
	inited  bool
	ring    hal.Ring
	entries int
	ptr     int
	txqs    uint64 // bound transmit queues
}

type simTXQ struct {
	evq      int // -1 when free
	flushing bool
	running  bool
	ctpio    hal.DMARegion
	aperture []byte
	timer    *work.Delayed
	ptr      uint32
	pkts     uint16
}

// Device emulates adapter firmware. It implements hal.Transport.
type Device struct {
	mem        *Memory
	clk        clock.Clock
	txInterval time.Duration
	class      config.Class

	mu        sync.Mutex
	evqs      []simEVQ
	txqs      []simTXQ
	window    hal.DMARegion
	fail      map[mcdi.Command]pkg.Status
	calls     map[mcdi.Command]int
	dropFlush bool
	closed    bool
}

// Option configures a Device.
type Option func(*Device)

// WithClock sets the clock that drives the transmit engine.
func WithClock(c clock.Clock) Option {
	return func(d *Device) { d.clk = c }
}

// WithMemory shares an existing DMA provider with the device.
func WithMemory(m *Memory) Option {
	return func(d *Device) { d.mem = m }
}

// WithTXInterval sets the transmit engine period.
func WithTXInterval(interval time.Duration) Option {
	return func(d *Device) { d.txInterval = interval }
}

// New creates a device with the queue counts of class.
func New(class config.Class, opts ...Option) (*Device, error) {
	if err := class.Validate(); err != nil {
		return nil, err
	}
	d := &Device{
		clk:        clock.RealClock{},
		txInterval: TXInterval,
		class:      class,
		evqs:       make([]simEVQ, class.EVQs),
		txqs:       make([]simTXQ, class.TXQs),
		fail:       make(map[mcdi.Command]pkg.Status),
		calls:      make(map[mcdi.Command]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.mem == nil {
		d.mem = NewMemory()
	}
	for i := range d.txqs {
		d.txqs[i].evq = -1
	}

	window, err := d.mem.Alloc(class.EVQs * EVQWindowStride)
	if err != nil {
		return nil, fmt.Errorf("allocate evq window: %w", err)
	}
	d.window = window

	pkg.LogDebug(pkg.ComponentSim, "device created",
		"class", class.Name, "evqs", class.EVQs, "txqs", class.TXQs)
	return d, nil
}

// Memory returns the DMA provider backing the device.
func (d *Device) Memory() *Memory {
	return d.mem
}

// Call implements hal.Transport.
func (d *Device) Call(ctx context.Context, cmd uint32, in, out []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c := mcdi.Command(cmd)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, pkg.ErrDetached
	}
	d.calls[c]++
	if st, ok := d.fail[c]; ok {
		delete(d.fail, c)
		d.mu.Unlock()
		pkg.LogDebug(pkg.ComponentSim, "injected failure", "cmd", c.String(), "status", st)
		return int(st), nil
	}
	d.mu.Unlock()

	var rc int
	switch c {
	case mcdi.CmdInitEVQ:
		rc = d.initEVQ(in)
	case mcdi.CmdFiniEVQ:
		rc = d.finiEVQ(in)
	case mcdi.CmdInitTXQ:
		rc = d.initTXQ(in, out)
	case mcdi.CmdFiniTXQ:
		rc = d.finiTXQ(in)
	case mcdi.CmdGetParam:
		rc = d.getParam(in, out)
	case mcdi.CmdSetParam:
		rc = d.setParam(in)
	default:
		rc = int(pkg.StatusNoSys)
	}

	pkg.LogDebug(pkg.ComponentSim, "command", "cmd", c.String(), "rc", rc)
	return rc, nil
}

func (d *Device) initEVQ(in []byte) int {
	var p mcdi.EVQParams
	if !mcdi.ParseEVQParams(in, &p) {
		return int(pkg.StatusInvalid)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if int(p.QID) >= len(d.evqs) {
		return int(pkg.StatusInvalid)
	}
	q := &d.evqs[p.QID]
	if q.inited {
		return int(pkg.StatusBusy)
	}

	mem, err := d.mem.Map(p.PageAddr+uint64(p.PageOffset), int(p.Size))
	if err != nil {
		pkg.LogWarn(pkg.ComponentSim, "event ring not mapped", "evq", p.QID, "error", err)
		return int(pkg.StatusInvalid)
	}
	ring, err := hal.NewRing(mem, int(p.Entries))
	if err != nil {
		pkg.LogWarn(pkg.ComponentSim, "bad event ring", "evq", p.QID, "error", err)
		return int(pkg.StatusInvalid)
	}

	*q = simEVQ{inited: true, ring: ring, entries: int(p.Entries)}
	return 0
}

func (d *Device) finiEVQ(in []byte) int {
	qid, ok := mcdi.ParseQueueID(in)
	if !ok {
		return int(pkg.StatusInvalid)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if int(qid) >= len(d.evqs) {
		return int(pkg.StatusInvalid)
	}
	q := &d.evqs[qid]
	if !q.inited {
		pkg.LogWarn(pkg.ComponentSim, "freeing event queue that is not initialized", "evq", qid)
	}
	if q.txqs != 0 {
		pkg.LogWarn(pkg.ComponentSim, "freeing event queue with bound transmit queues",
			"evq", qid, "txqs", fmt.Sprintf("%#x", q.txqs))
	}
	q.inited = false
	q.ring = hal.Ring{}
	return 0
}

func (d *Device) initTXQ(in, out []byte) int {
	var p mcdi.TXQParams
	if !mcdi.ParseTXQParams(in, &p) || len(out) < mcdi.TXQParamsSize {
		return int(pkg.StatusInvalid)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if int(p.EVQ) >= len(d.evqs) || !d.evqs[p.EVQ].inited {
		return int(pkg.StatusInvalid)
	}

	// Allocate linearly so transmit and event queue ids differ in tests.
	idx := -1
	for i := range d.txqs {
		if d.txqs[i].evq < 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return int(pkg.StatusBusy)
	}

	region, err := d.mem.Alloc(CTPIOSize)
	if err != nil {
		return int(pkg.StatusNoMemory)
	}
	aperture, err := d.mem.Map(region.Base(), CTPIOSize)
	if err != nil {
		_ = d.mem.Free(region)
		return int(pkg.StatusNoMemory)
	}
	fill(aperture, 0xff)

	t := &d.txqs[idx]
	*t = simTXQ{
		evq:      int(p.EVQ),
		running:  true,
		ctpio:    region,
		aperture: aperture,
	}
	t.timer = work.NewDelayed(func() { d.txTick(idx) },
		work.WithClock(d.clk), work.WithName(fmt.Sprintf("sim-txq%d", idx)))
	t.timer.Schedule(d.txInterval)
	d.evqs[p.EVQ].txqs |= 1 << idx

	p.QID = uint32(idx)
	p.MarshalTo(out)
	pkg.LogDebug(pkg.ComponentSim, "bound transmit queue", "txq", idx, "evq", p.EVQ)
	return idx
}

func (d *Device) finiTXQ(in []byte) int {
	qid, ok := mcdi.ParseQueueID(in)
	if !ok {
		return int(pkg.StatusInvalid)
	}

	d.mu.Lock()
	if int(qid) >= len(d.txqs) {
		d.mu.Unlock()
		return int(pkg.StatusInvalid)
	}
	t := &d.txqs[qid]
	if t.evq < 0 {
		d.mu.Unlock()
		pkg.LogWarn(pkg.ComponentSim, "freeing transmit queue that is not bound", "txq", qid)
		return int(pkg.StatusInvalid)
	}
	if t.flushing {
		d.mu.Unlock()
		return int(pkg.StatusBusy)
	}
	t.flushing = true
	t.running = false
	timer := t.timer
	d.mu.Unlock()

	// The transmit tick takes d.mu, so wait for it unlocked.
	timer.CancelSync()

	d.mu.Lock()
	defer d.mu.Unlock()

	q := &d.evqs[t.evq]
	if q.inited && !d.dropFlush {
		d.push(q, hal.NewFlushEvent(hal.FlushTypeTX, int(qid), 0))
	}
	q.txqs &^= 1 << qid
	if err := d.mem.Free(t.ctpio); err != nil {
		pkg.LogWarn(pkg.ComponentSim, "free aperture", "txq", qid, "error", err)
	}
	*t = simTXQ{evq: -1}
	return 0
}

func (d *Device) getParam(in, out []byte) int {
	var r mcdi.ParamRequest
	if len(in) != mcdi.ParamRequestSize || !mcdi.ParseParamRequest(in, &r) ||
		len(out) < mcdi.ParamValueSize {
		return int(pkg.StatusInvalid)
	}

	var v mcdi.ParamValue
	switch r.Param {
	case mcdi.ParamVariant:
		v = mcdi.ParamValue{'T'}
	case mcdi.ParamRevision:
		v = mcdi.ParamValue{1}
	case mcdi.ParamNICResources:
		v = mcdi.ResourcesValue(mcdi.NICResources{
			EVQLim: uint32(d.class.EVQs - 1),
			TXQLim: uint32(d.class.TXQs - 1),
		})
	case mcdi.ParamEVQWindow:
		v = mcdi.WindowValue(mcdi.Window{Base: d.window.Base(), Size: EVQWindowStride})
	case mcdi.ParamCTPIOWindow:
		d.mu.Lock()
		if int(r.QID) >= len(d.txqs) || d.txqs[r.QID].evq < 0 {
			d.mu.Unlock()
			return int(pkg.StatusInvalid)
		}
		v = mcdi.WindowValue(mcdi.Window{Base: d.txqs[r.QID].ctpio.Base(), Size: CTPIOSize})
		d.mu.Unlock()
	default:
		return int(pkg.StatusNoSys)
	}

	v.MarshalTo(out)
	return 0
}

func (d *Device) setParam(in []byte) int {
	if len(in) != mcdi.CmdSetParam.InLen() {
		return int(pkg.StatusInvalid)
	}
	return int(pkg.StatusNoSys)
}

// txTick consumes a frame written to the aperture and reports its completion.
func (d *Device) txTick(idx int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := &d.txqs[idx]
	if !t.running {
		return
	}
	if !isFilled(t.aperture[:frameHeader], 0xff) {
		if q := &d.evqs[t.evq]; q.inited {
			d.push(q, hal.NewTXEvent(idx, t.pkts, 0))
		}
		t.pkts++
		t.ptr++
		fill(t.aperture, 0xff)
	}
	t.timer.Schedule(d.txInterval)
}

// push writes e at the queue's write pointer with the current phase bit.
// d.mu must be held.
func (d *Device) push(q *simEVQ, e hal.Event) int {
	slot := q.ptr & (q.entries - 1)
	phase := uint64(q.ptr/q.entries)&1 ^ 1
	q.ring.Store(q.ptr, e.With(hal.FieldPhase, phase))
	q.ptr++
	return slot
}

// FailNext makes the next call of cmd return status without executing it.
func (d *Device) FailNext(cmd mcdi.Command, status pkg.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[cmd] = status
}

// SetDropFlushEvents stops FINI_TXQ from posting flush completions.
func (d *Device) SetDropFlushEvents(drop bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropFlush = drop
}

// CallCount returns how many times cmd reached the device.
func (d *Device) CallCount(cmd mcdi.Command) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[cmd]
}

// PostEvent writes e to the next slot of an initialized event queue and
// returns the slot used.
func (d *Device) PostEvent(evq int, e hal.Event) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if evq < 0 || evq >= len(d.evqs) || !d.evqs[evq].inited {
		return 0, fmt.Errorf("%w: evq %d", pkg.ErrInvalidState, evq)
	}
	return d.push(&d.evqs[evq], e), nil
}

// Transmit writes frame into a transmit queue's CTPIO aperture. The
// transmit engine consumes it on its next tick.
func (d *Device) Transmit(txq int, frame []byte) error {
	if len(frame) < frameHeader || len(frame) > CTPIOSize {
		return fmt.Errorf("%w: frame of %d bytes", pkg.ErrInvalidArgument, len(frame))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if txq < 0 || txq >= len(d.txqs) || d.txqs[txq].evq < 0 || !d.txqs[txq].running {
		return fmt.Errorf("%w: txq %d", pkg.ErrInvalidState, txq)
	}
	copy(d.txqs[txq].aperture, frame)
	return nil
}

// Packets returns the number of frames a transmit queue has sent.
func (d *Device) Packets(txq int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if txq < 0 || txq >= len(d.txqs) {
		return 0
	}
	return int(d.txqs[txq].pkts)
}

// TXQOwner returns the event queue a transmit queue is bound to, or -1.
func (d *Device) TXQOwner(txq int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if txq < 0 || txq >= len(d.txqs) {
		return -1
	}
	return d.txqs[txq].evq
}

// EVQInitialized reports whether the firmware considers evq live.
func (d *Device) EVQInitialized(evq int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return evq >= 0 && evq < len(d.evqs) && d.evqs[evq].inited
}

// Close stops every transmit engine and releases device memory. Later
// calls fail with pkg.ErrDetached.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	var timers []*work.Delayed
	for i := range d.txqs {
		if t := &d.txqs[i]; t.timer != nil {
			t.running = false
			timers = append(timers, t.timer)
		}
	}
	d.mu.Unlock()

	for _, t := range timers {
		t.CancelSync()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for i := range d.txqs {
		if t := &d.txqs[i]; t.evq >= 0 {
			errs = append(errs, d.mem.Free(t.ctpio))
			*t = simTXQ{evq: -1}
		}
	}
	errs = append(errs, d.mem.Free(d.window))
	return errors.Join(errs...)
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func isFilled(b []byte, v byte) bool {
	for _, c := range b {
		if c != v {
			return false
		}
	}
	return true
}
