package nic

import (
	"github.com/ardnew/softnic/pkg"
)

// scanFlushes looks for a TX flush completion on q's event ring.
//
// The whole ring is scanned from its base and nothing is consumed. A match
// is attributed to the pending count regardless of which queue flushed, so
// with several flushes outstanding one event can satisfy more than one of
// them. The scan repeats every FlushRetryDelay until the count drains or
// the queue is disabled.
func (a *Adapter) scanFlushes(q *evqEntry) {
	a.stats.flushScans.Add(1)

	if q.flushing.Load() < 0 {
		return
	}

	q.mu.Lock()
	ring := q.ring
	scanner := q.scanner
	q.mu.Unlock()
	if scanner == nil {
		return
	}

	txq, found := 0, false
	for i := 0; i < ring.Len(); i++ {
		if id, ok := ring.Load(i).TXFlushed(); ok {
			txq, found = id, true
			break
		}
	}

	if found {
		a.txqFlushed(q, txq)
		remaining := q.completeFlush()
		if remaining < 0 {
			return
		}
		if remaining == 0 {
			a.logDebug(pkg.ComponentFlush, "all flushes complete", "evq", q.id)
			return
		}
	}

	a.stats.flushRetries.Add(1)
	a.logWarn(pkg.ComponentFlush, "no TX flush found, scheduling delayed work",
		"evq", q.id, "found", found, "pending", q.flushing.Load())
	scanner.Schedule(a.class.FlushRetryDelay)
}

// txqFlushed releases txq from q and notifies the event handler.
func (a *Adapter) txqFlushed(q *evqEntry, txq int) {
	a.stats.flushCompletions.Add(1)

	if err := a.table.Unbind(q.id, txq); err != nil {
		a.logDebug(pkg.ComponentFlush, "flushed queue not bound here", "evq", q.id, "txq", txq, "error", err)
	} else {
		a.logDebug(pkg.ComponentFlush, "transmit queue flushed", "evq", q.id, "txq", txq)
	}

	if h := a.eventHandler(); h != nil {
		h.TxQueueFlushed(a, txq)
	}
}
