package nic

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/ardnew/softnic/hal"
	"github.com/ardnew/softnic/pkg"
	"github.com/ardnew/softnic/pkg/config"
	"github.com/ardnew/softnic/pkg/work"
)

// Unbound is the owner of a transmit queue not bound to any event queue.
const Unbound = -1

// NoTXQ is the transmit capability of an event queue that has none.
const NoTXQ = config.NoTXQ

// flushSentinel is the pending flush count of an event queue being disabled.
const flushSentinel = -1

type evqEntry struct {
	id  int
	txq int // transmit capability, fixed at attach

	// life serializes enable and disable. It is never taken by the scanner.
	life sync.Mutex

	mu          sync.Mutex
	initialized bool
	capacity    int
	ring        hal.Ring
	bound       uint64 // transmit queues bound to this event queue
	scanner     *work.Delayed

	// flushing counts outstanding TX flushes, or holds flushSentinel.
	// Increments and the sentinel store happen under mu.
	flushing atomic.Int32
}

// completeFlush decrements the pending flush count unless it is zero or
// the sentinel. It returns the resulting count.
func (q *evqEntry) completeFlush() int32 {
	for {
		v := q.flushing.Load()
		if v <= 0 {
			return v
		}
		if q.flushing.CompareAndSwap(v, v-1) {
			return v - 1
		}
	}
}

type txqEntry struct {
	id int

	mu       sync.Mutex
	evq      int
	label    uint32
	flushing bool
	ctpio    uint64
}

func (t *txqEntry) reset() {
	t.evq = Unbound
	t.label = 0
	t.flushing = false
	t.ctpio = 0
}

// EVQInfo is a snapshot of an event queue.
type EVQInfo struct {
	ID             int
	Initialized    bool
	Capacity       int
	TXQ            int    // transmit capability, or NoTXQ
	BoundTXQs      uint64 // bit i set when transmit queue i is bound
	PendingFlushes int32  // negative while disabling
	ScanPending    bool
}

// TXQInfo is a snapshot of a transmit queue.
type TXQInfo struct {
	ID        int
	EVQ       int // owner, or Unbound
	Label     uint32
	Flushing  bool
	CTPIOAddr uint64 // zero until looked up
}

// Table is the fixed inventory of an adapter's hardware queues.
//
// Each entry has its own lock; there is no table-wide lock. When both are
// needed the event queue is locked before the transmit queue.
type Table struct {
	evqs []*evqEntry
	txqs []*txqEntry
}

func newTable(class config.Class) *Table {
	t := &Table{
		evqs: make([]*evqEntry, class.EVQs),
		txqs: make([]*txqEntry, class.TXQs),
	}
	for i := range t.evqs {
		t.evqs[i] = &evqEntry{id: i, txq: class.TXQ(i)}
	}
	for i := range t.txqs {
		t.txqs[i] = &txqEntry{id: i, evq: Unbound}
	}
	return t
}

// EVQs returns the number of hardware event queues.
func (t *Table) EVQs() int { return len(t.evqs) }

// TXQs returns the number of hardware transmit queues.
func (t *Table) TXQs() int { return len(t.txqs) }

func (t *Table) evq(id int) (*evqEntry, error) {
	if id < 0 || id >= len(t.evqs) {
		return nil, fmt.Errorf("%w: evq %d", pkg.ErrNotFound, id)
	}
	return t.evqs[id], nil
}

func (t *Table) txq(id int) (*txqEntry, error) {
	if id < 0 || id >= len(t.txqs) {
		return nil, fmt.Errorf("%w: txq %d", pkg.ErrNotFound, id)
	}
	return t.txqs[id], nil
}

// GetEVQ returns a snapshot of event queue id.
func (t *Table) GetEVQ(id int) (EVQInfo, error) {
	q, err := t.evq(id)
	if err != nil {
		return EVQInfo{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	info := EVQInfo{
		ID:             q.id,
		Initialized:    q.initialized,
		Capacity:       q.capacity,
		TXQ:            q.txq,
		BoundTXQs:      q.bound,
		PendingFlushes: q.flushing.Load(),
	}
	if q.scanner != nil {
		info.ScanPending = q.scanner.Pending()
	}
	return info, nil
}

// GetTXQ returns a snapshot of transmit queue id.
func (t *Table) GetTXQ(id int) (TXQInfo, error) {
	x, err := t.txq(id)
	if err != nil {
		return TXQInfo{}, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	return TXQInfo{
		ID:        x.id,
		EVQ:       x.evq,
		Label:     x.label,
		Flushing:  x.flushing,
		CTPIOAddr: x.ctpio,
	}, nil
}

// Bind records transmit queue txq as reporting to event queue evq.
func (t *Table) Bind(evq, txq int) error {
	return t.bind(evq, txq, 0)
}

func (t *Table) bind(evq, txq int, label uint32) error {
	q, err := t.evq(evq)
	if err != nil {
		return err
	}
	x, err := t.txq(txq)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.initialized {
		return fmt.Errorf("%w: evq %d not initialized", pkg.ErrInvalidState, evq)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.evq != Unbound {
		return fmt.Errorf("%w: txq %d bound to evq %d", pkg.ErrBusy, txq, x.evq)
	}
	x.reset()
	x.evq = evq
	x.label = label
	q.bound |= 1 << txq
	return nil
}

// Unbind releases transmit queue txq from event queue evq.
func (t *Table) Unbind(evq, txq int) error {
	q, err := t.evq(evq)
	if err != nil {
		return err
	}
	x, err := t.txq(txq)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.evq != evq {
		return fmt.Errorf("%w: txq %d not bound to evq %d", pkg.ErrInvalidState, txq, evq)
	}
	x.reset()
	q.bound &^= 1 << txq
	return nil
}

// unbindAll releases every transmit queue bound to q. q.mu must be held.
func (t *Table) unbindAll(q *evqEntry) int {
	n := bits.OnesCount64(q.bound)
	for m := q.bound; m != 0; m &= m - 1 {
		x := t.txqs[bits.TrailingZeros64(m)]
		x.mu.Lock()
		x.reset()
		x.mu.Unlock()
	}
	q.bound = 0
	return n
}
