package nic

import (
	"fmt"
	"net"

	"github.com/ardnew/softnic/pkg"
)

// FilterSpec describes a receive filter.
type FilterSpec struct {
	EtherType uint16
	VLAN      int // -1 for any
	Protocol  uint8
	LocalIP   net.IP
	LocalPort uint16
	LocalMAC  net.HardwareAddr
}

// FilterInfo describes an installed filter.
type FilterInfo struct {
	RXQ   int
	Flags uint32
}

// Receive filtering is owned by the net driver on this family; the insert
// and remove hooks succeed so callers need no special case.

// FilterInsert accepts spec without installing anything.
func (a *Adapter) FilterInsert(spec FilterSpec) (int, error) {
	a.logDebug(pkg.ComponentAdapter, "filter insert ignored", "ethertype", spec.EtherType)
	return 0, nil
}

// FilterRemove does nothing.
func (a *Adapter) FilterRemove(id int) {}

// FilterRedirect is not supported.
func (a *Adapter) FilterRedirect(id int, spec FilterSpec) error {
	return fmt.Errorf("%w: filter redirect", pkg.ErrNotSupported)
}

// FilterQuery is not supported.
func (a *Adapter) FilterQuery(id int) (FilterInfo, error) {
	return FilterInfo{}, fmt.Errorf("%w: filter query", pkg.ErrNotSupported)
}

// MulticastBlock is not supported.
func (a *Adapter) MulticastBlock(block bool) error {
	return fmt.Errorf("%w: multicast block", pkg.ErrNotSupported)
}

// UnicastBlock is not supported.
func (a *Adapter) UnicastBlock(block bool) error {
	return fmt.Errorf("%w: unicast block", pkg.ErrNotSupported)
}
