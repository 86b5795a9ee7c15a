package nic

import (
	"context"
	"fmt"

	"github.com/ardnew/softnic/hal/mcdi"
	"github.com/ardnew/softnic/pkg"
)

// CTPIOWindowSize is the only CTPIO aperture size the queue layer supports.
const CTPIOWindowSize = 0x1000

// InitTXQ creates a transmit queue reporting to event queue evq and binds
// it in the table. tag is echoed by the hardware in completions. The
// firmware chooses the queue id, which is returned.
func (a *Adapter) InitTXQ(ctx context.Context, evq int, tag uint32) (int, error) {
	if err := a.checkOpen(); err != nil {
		return 0, err
	}
	if evq < 0 || evq >= a.table.EVQs() {
		return 0, fmt.Errorf("%w: evq %d has no hardware queue", pkg.ErrInvalidArgument, evq)
	}
	q := a.table.evqs[evq]
	if q.txq == NoTXQ {
		return 0, fmt.Errorf("%w: evq %d has no transmit capability", pkg.ErrInvalidArgument, evq)
	}

	q.mu.Lock()
	initialized := q.initialized
	q.mu.Unlock()
	if !initialized {
		return 0, fmt.Errorf("%w: evq %d not enabled", pkg.ErrInvalidState, evq)
	}

	id, err := a.rpc.InitTXQ(ctx, mcdi.TXQParams{
		EVQ:   uint32(evq),
		QID:   uint32(q.txq),
		Label: tag,
	})
	if err != nil {
		return 0, fmt.Errorf("init txq on evq %d: %w", evq, err)
	}
	if id >= a.table.TXQs() {
		return 0, &pkg.DeviceError{Op: mcdi.CmdInitTXQ.String(), Status: pkg.StatusRange}
	}
	if err := a.table.bind(evq, id, tag); err != nil {
		a.logWarn(pkg.ComponentTXQ, "firmware queue not recorded", "evq", evq, "txq", id, "error", err)
		if ferr := a.rpc.FiniTXQ(ctx, id); ferr != nil {
			a.logWarn(pkg.ComponentTXQ, "firmware teardown failed", "txq", id, "error", ferr)
		}
		return 0, err
	}

	a.logInfo(pkg.ComponentTXQ, "transmit queue bound", "evq", evq, "txq", id, "tag", tag)
	return id, nil
}

// FlushTXQ asks the firmware to flush txq and starts watching evq for the
// completion. It returns once the request is accepted; the handler's
// TxQueueFlushed reports completion.
//
// Outstanding flushes are counted per event queue, not per transmit queue.
func (a *Adapter) FlushTXQ(ctx context.Context, evq, txq int) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	q, err := a.table.evq(evq)
	if err != nil {
		return err
	}
	x, err := a.table.txq(txq)
	if err != nil {
		return err
	}

	q.mu.Lock()
	live := q.initialized && q.flushing.Load() >= 0
	q.mu.Unlock()
	if !live {
		return fmt.Errorf("%w: evq %d not enabled", pkg.ErrInvalidState, evq)
	}
	x.mu.Lock()
	owner := x.evq
	x.mu.Unlock()
	if owner != evq {
		return fmt.Errorf("%w: txq %d not bound to evq %d", pkg.ErrInvalidState, txq, evq)
	}

	if err := a.rpc.FiniTXQ(ctx, txq); err != nil {
		a.logWarn(pkg.ComponentTXQ, "flush rejected", "evq", evq, "txq", txq, "error", err)
		return fmt.Errorf("flush txq %d: %w", txq, err)
	}

	q.mu.Lock()
	if !q.initialized || q.flushing.Load() < 0 {
		q.mu.Unlock()
		a.logWarn(pkg.ComponentTXQ, "flush accepted while event queue disabling", "evq", evq, "txq", txq)
		return nil
	}
	pending := q.flushing.Add(1)
	scanner := q.scanner
	x.mu.Lock()
	if x.evq == evq {
		x.flushing = true
	}
	x.mu.Unlock()
	q.mu.Unlock()

	scanner.Schedule(0)

	a.logDebug(pkg.ComponentTXQ, "flush requested", "evq", evq, "txq", txq, "pending", pending)
	return nil
}

// InitRXQ is accepted without hardware action; receive queues are shared
// and managed outside this layer.
func (a *Adapter) InitRXQ(ctx context.Context, evq int) error {
	return a.checkOpen()
}

// FlushRXQ is not supported by this adapter family.
func (a *Adapter) FlushRXQ(ctx context.Context, rxq int) error {
	return fmt.Errorf("%w: receive queue flush", pkg.ErrNotSupported)
}

// CTPIOAddr returns the bus address of txq's CTPIO aperture and records it
// on the queue.
func (a *Adapter) CTPIOAddr(ctx context.Context, txq int) (uint64, error) {
	if err := a.checkOpen(); err != nil {
		return 0, err
	}
	x, err := a.table.txq(txq)
	if err != nil {
		return 0, err
	}

	v, err := a.rpc.GetParam(ctx, mcdi.ParamCTPIOWindow, txq)
	if err != nil {
		return 0, fmt.Errorf("ctpio window of txq %d: %w", txq, err)
	}
	w := v.Window()
	if w.Size != CTPIOWindowSize {
		return 0, fmt.Errorf("%w: CTPIO window of %#x bytes", pkg.ErrNotSupported, w.Size)
	}

	x.mu.Lock()
	x.ctpio = w.Base
	x.mu.Unlock()
	return w.Base, nil
}
