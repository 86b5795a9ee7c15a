package nic

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/ardnew/softnic/hal"
	"github.com/ardnew/softnic/hal/mcdi"
	"github.com/ardnew/softnic/pkg"
	"github.com/ardnew/softnic/pkg/config"
)

// Flags is the set of features an adapter advertises.
type Flags uint32

// Adapter feature flags.
const (
	FlagTXCTPIO Flags = 1 << iota
	FlagCTPIOOnly
	FlagHWRXTimestamping
	FlagHWTXTimestamping
	FlagRXShared
	FlagRXFilterIPLocal
	FlagRXFilterIPFull
	FlagVLANFilters
	FlagRXFilterEthertype
	FlagHWMulticastReplication
	FlagSharedPD
	FlagRXFilterEthLocal
	FlagRXFilterEthLocalVLAN
	FlagPhysContigEVQ
	FlagEVQIRQ
	FlagLLCT
)

var flagNames = []string{
	"tx-ctpio",
	"ctpio-only",
	"hw-rx-timestamping",
	"hw-tx-timestamping",
	"rx-shared",
	"rx-filter-ip-local",
	"rx-filter-ip-full",
	"vlan-filters",
	"rx-filter-ethertype",
	"hw-multicast-replication",
	"shared-pd",
	"rx-filter-eth-local",
	"rx-filter-eth-local-vlan",
	"phys-contig-evq",
	"evq-irq",
	"llct",
}

// hardwareFlags is advertised by every adapter of this family.
const hardwareFlags = FlagTXCTPIO | FlagCTPIOOnly |
	FlagHWRXTimestamping | FlagHWTXTimestamping |
	FlagRXShared |
	FlagRXFilterIPLocal | FlagRXFilterIPFull |
	FlagVLANFilters | FlagRXFilterEthertype |
	FlagHWMulticastReplication | FlagSharedPD |
	FlagRXFilterEthLocal | FlagRXFilterEthLocalVLAN |
	FlagPhysContigEVQ | FlagEVQIRQ | FlagLLCT

// Has reports whether all of want are set.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// Names returns the name of each set flag.
func (f Flags) Names() []string {
	var names []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return names
}

// String returns the set flags joined by '|'.
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Names(), "|")
}

// EventHandler receives notifications from the adapter.
type EventHandler interface {
	// TxQueueFlushed is called from the flush scanner when a flush
	// completion for txq is observed. The queue has already been released
	// from the table. The handler runs on the scanner's goroutine and must
	// not disable the event queue synchronously.
	TxQueueFlushed(a *Adapter, txq int)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(a *Adapter, txq int)

// TxQueueFlushed implements EventHandler.
func (f EventHandlerFunc) TxQueueFlushed(a *Adapter, txq int) { f(a, txq) }

// Adapter is one NIC instance and the owner of its queue table.
type Adapter struct {
	id    uuid.UUID
	class config.Class
	rpc   *mcdi.Client
	dma   hal.DMAProvider
	clk   clock.Clock
	table *Table
	stats stats

	mu      sync.RWMutex
	mac     net.HardwareAddr
	flags   Flags
	handler EventHandler
	claimed map[int]struct{} // VI slots handed out by FindVI
	closed  bool

	collector *collector
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClock sets the clock used to schedule flush scans.
func WithClock(c clock.Clock) Option {
	return func(a *Adapter) { a.clk = c }
}

// WithEventHandler sets the handler before hardware init.
func WithEventHandler(h EventHandler) Option {
	return func(a *Adapter) { a.handler = h }
}

// WithID sets the adapter instance id. A random id is used otherwise.
func WithID(id uuid.UUID) Option {
	return func(a *Adapter) { a.id = id }
}

// New attaches an adapter of the given class. Firmware commands go over t
// and event rings are mapped through dma.
func New(class config.Class, t hal.Transport, dma hal.DMAProvider, opts ...Option) (*Adapter, error) {
	if err := class.Validate(); err != nil {
		return nil, err
	}
	if t == nil || dma == nil {
		return nil, fmt.Errorf("%w: transport and DMA provider are required", pkg.ErrInvalidArgument)
	}

	a := &Adapter{
		id:      uuid.New(),
		class:   class,
		dma:     dma,
		clk:     clock.RealClock{},
		table:   newTable(class),
		claimed: make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.rpc = mcdi.NewClient(t, mcdi.WithObserver(a.stats.observeRPC))
	a.collector = newCollector(a)

	a.logInfo(pkg.ComponentAdapter, "adapter attached",
		"class", class.Name, "evqs", class.EVQs, "txqs", class.TXQs, "vis", class.VIs)
	return a, nil
}

// ID returns the adapter instance id.
func (a *Adapter) ID() uuid.UUID { return a.id }

// Class returns the adapter's class configuration.
func (a *Adapter) Class() config.Class { return a.class }

// Table returns the adapter's queue table.
func (a *Adapter) Table() *Table { return a.table }

// InitHardware records the MAC address and event handler and advertises
// the family's feature flags.
func (a *Adapter) InitHardware(mac net.HardwareAddr, h EventHandler) error {
	if len(mac) != 6 {
		return fmt.Errorf("%w: MAC address %q", pkg.ErrInvalidArgument, mac)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return pkg.ErrDetached
	}
	a.mac = append(net.HardwareAddr(nil), mac...)
	if h != nil {
		a.handler = h
	}
	a.flags |= hardwareFlags

	a.logInfo(pkg.ComponentAdapter, "hardware initialized", "mac", a.mac.String(), "flags", a.flags)
	return nil
}

// ReleaseHardware undoes InitHardware. There is no hardware state to tear down.
func (a *Adapter) ReleaseHardware() {
	a.logDebug(pkg.ComponentAdapter, "hardware released")
}

// MAC returns the adapter's MAC address.
func (a *Adapter) MAC() net.HardwareAddr {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append(net.HardwareAddr(nil), a.mac...)
}

// Flags returns the advertised feature flags.
func (a *Adapter) Flags() Flags {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.flags
}

func (a *Adapter) eventHandler() EventHandler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.handler
}

func (a *Adapter) checkOpen() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return pkg.ErrDetached
	}
	return nil
}

// Close disables every initialized event queue and detaches the adapter.
// Later lifecycle calls fail with pkg.ErrDetached.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	var g errgroup.Group
	for _, q := range a.table.evqs {
		g.Go(func() error {
			return a.disableEVQ(ctx, q)
		})
	}
	err := g.Wait()

	a.logInfo(pkg.ComponentAdapter, "adapter detached")
	return err
}

func (a *Adapter) withID(args []any) []any {
	return append([]any{"adapter", a.id.String()}, args...)
}

func (a *Adapter) logDebug(c pkg.Component, msg string, args ...any) {
	pkg.LogDebug(c, msg, a.withID(args)...)
}

func (a *Adapter) logInfo(c pkg.Component, msg string, args ...any) {
	pkg.LogInfo(c, msg, a.withID(args)...)
}

func (a *Adapter) logWarn(c pkg.Component, msg string, args ...any) {
	pkg.LogWarn(c, msg, a.withID(args)...)
}
