package nic

import (
	"fmt"

	"github.com/ardnew/softnic/pkg"
)

// VIConstraints describes what a caller needs from a VI slot.
type VIConstraints struct {
	WantTXQ bool // the VI will transmit
}

// AcceptVIConstraints reports whether VI slot low satisfies c.
//
// Hardware event queues occupy [0,N). A VI that transmits needs one of
// those with a transmit queue; a VI that does not must take a dummy slot at
// or above N. order is accepted for interface compatibility and ignored.
func (a *Adapter) AcceptVIConstraints(low int, order uint, c VIConstraints) bool {
	n := a.table.EVQs()
	txq := NoTXQ
	if low >= 0 && low < n {
		txq = a.table.evqs[low].txq
	}
	a.logDebug(pkg.ComponentAdapter, "vi constraints",
		"want_txq", c.WantTXQ, "low", low, "order", order, "evqs", n, "txq", txq)

	if c.WantTXQ {
		return low >= 0 && low < n && txq != NoTXQ
	}
	return low >= n
}

// FindVI returns the first free VI slot aligned to 1<<order that
// satisfies c, and claims it until ReleaseVI.
func (a *Adapter) FindVI(c VIConstraints, order uint) (int, error) {
	if err := a.checkOpen(); err != nil {
		return 0, err
	}
	step := 1 << order
	if step <= 0 || step > a.class.VIs {
		return 0, fmt.Errorf("%w: order %d", pkg.ErrInvalidArgument, order)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for slot := 0; slot < a.class.VIs; slot += step {
		if _, taken := a.claimed[slot]; taken {
			continue
		}
		if !a.AcceptVIConstraints(slot, order, c) {
			continue
		}
		if slot < a.table.EVQs() {
			if info, _ := a.table.GetEVQ(slot); info.Initialized {
				continue
			}
		}
		a.claimed[slot] = struct{}{}
		return slot, nil
	}
	return 0, fmt.Errorf("%w: no VI slot for %+v", pkg.ErrBusy, c)
}

// ReleaseVI returns a slot claimed by FindVI.
func (a *Adapter) ReleaseVI(slot int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.claimed[slot]; !ok {
		return fmt.Errorf("%w: vi %d not claimed", pkg.ErrNotFound, slot)
	}
	delete(a.claimed, slot)
	return nil
}
