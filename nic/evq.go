package nic

import (
	"context"
	"fmt"

	"github.com/ardnew/softnic/hal"
	"github.com/ardnew/softnic/hal/mcdi"
	"github.com/ardnew/softnic/pkg"
	"github.com/ardnew/softnic/pkg/work"
)

// TimeSyncEventEVQCapacity is the number of time sync events an event queue
// subscribed to time sync must have room for.
const TimeSyncEventEVQCapacity = 128

// VIFlags are per-VI options passed when enabling an event queue.
type VIFlags uint32

// VI flags.
const (
	VITxTimestamps VIFlags = 1 << iota // subscribe to time sync for TX timestamps
	VIRxTimestamps
)

// EVQParams describes an event queue to enable.
type EVQParams struct {
	EVQ     int           // event queue id
	Entries int           // ring entries, a power of two
	Region  hal.DMARegion // physically contiguous ring memory
	Flags   VIFlags
}

// EnableEVQ initializes an event queue in firmware and arms its flush
// scanner. Dummy ids in [N,VIs) succeed without doing anything.
//
// All validation happens before the firmware is called.
func (a *Adapter) EnableEVQ(ctx context.Context, p EVQParams) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if p.EVQ < 0 || p.EVQ >= a.class.VIs {
		return fmt.Errorf("%w: evq %d", pkg.ErrNotFound, p.EVQ)
	}
	if p.EVQ >= a.table.EVQs() {
		a.logDebug(pkg.ComponentEVQ, "dummy event queue enabled", "evq", p.EVQ)
		return nil
	}
	if p.Entries <= 0 || p.Entries&(p.Entries-1) != 0 {
		return fmt.Errorf("%w: %d entries is not a power of two", pkg.ErrInvalidArgument, p.Entries)
	}
	if len(p.Region.Addrs) == 0 || !p.Region.Contiguous() {
		return fmt.Errorf("%w: event ring for evq %d is not contiguous", pkg.ErrInvalidArgument, p.EVQ)
	}
	size := p.Entries * hal.EventSize
	if p.Region.Bytes() < size {
		return fmt.Errorf("%w: %d bytes for %d entries", pkg.ErrInsufficientMemory, p.Region.Bytes(), p.Entries)
	}

	q := a.table.evqs[p.EVQ]
	q.life.Lock()
	defer q.life.Unlock()

	// Close may have swept this queue while we waited for it.
	if err := a.checkOpen(); err != nil {
		return err
	}

	q.mu.Lock()
	initialized := q.initialized
	q.mu.Unlock()
	if initialized {
		return fmt.Errorf("%w: evq %d already enabled", pkg.ErrBusy, p.EVQ)
	}

	mem, err := a.dma.Map(p.Region.Base(), size)
	if err != nil {
		return fmt.Errorf("map event ring: %w", err)
	}
	ring, err := hal.NewRing(mem, p.Entries)
	if err != nil {
		return err
	}

	timeSync := p.Flags&VITxTimestamps != 0
	params := mcdi.EVQParams{
		QID:               uint32(p.EVQ),
		Entries:           uint32(p.Entries),
		PageAddr:          p.Region.Base(),
		PageOffset:        0,
		Size:              uint32(size),
		SubscribeTimeSync: timeSync,
	}
	if timeSync {
		params.UnsolCredit = TimeSyncEventEVQCapacity - 1
	}
	if err := a.rpc.InitEVQ(ctx, params); err != nil {
		return fmt.Errorf("enable evq %d: %w", p.EVQ, err)
	}

	scanner := work.NewDelayed(func() { a.scanFlushes(q) },
		work.WithClock(a.clk), work.WithName(fmt.Sprintf("evq%d-flush", p.EVQ)))

	q.mu.Lock()
	q.initialized = true
	q.capacity = p.Entries
	q.ring = ring
	q.scanner = scanner
	q.flushing.Store(0)
	q.mu.Unlock()

	a.logInfo(pkg.ComponentEVQ, "event queue enabled",
		"evq", p.EVQ, "entries", p.Entries, "time_sync", timeSync)
	return nil
}

// DisableEVQ tears down an event queue. It does not return until the flush
// scanner has stopped and will never run again. The firmware teardown is
// best effort: a failure is logged and the queue is released regardless.
//
// Disabling a dummy or already disabled queue succeeds without doing anything.
func (a *Adapter) DisableEVQ(ctx context.Context, evq int) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if evq < 0 || evq >= a.class.VIs {
		return fmt.Errorf("%w: evq %d", pkg.ErrNotFound, evq)
	}
	if evq >= a.table.EVQs() {
		a.logDebug(pkg.ComponentEVQ, "dummy event queue disabled", "evq", evq)
		return nil
	}
	return a.disableEVQ(ctx, a.table.evqs[evq])
}

func (a *Adapter) disableEVQ(ctx context.Context, q *evqEntry) error {
	q.life.Lock()
	defer q.life.Unlock()

	q.mu.Lock()
	if !q.initialized {
		q.mu.Unlock()
		return nil
	}
	// Stop a scanner left rescheduling by a flush that never completed.
	q.flushing.Store(flushSentinel)
	scanner := q.scanner
	q.mu.Unlock()

	// The scanner takes q.mu, so it must be joined unlocked.
	scanner.CancelSync()

	if err := a.rpc.FiniEVQ(ctx, q.id); err != nil {
		a.stats.finiFailures.Add(1)
		a.logWarn(pkg.ComponentEVQ, "firmware teardown failed", "evq", q.id, "error", err)
	}

	q.mu.Lock()
	released := a.table.unbindAll(q)
	q.initialized = false
	q.capacity = 0
	q.ring = hal.Ring{}
	q.scanner = nil
	q.mu.Unlock()

	a.logInfo(pkg.ComponentEVQ, "event queue disabled", "evq", q.id, "released_txqs", released)
	return nil
}
