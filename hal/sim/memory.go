package sim

import (
	"fmt"
	"sync"

	"github.com/ardnew/softnic/hal"
	"github.com/ardnew/softnic/pkg"
)

// memBase is the first synthetic bus address handed out by Memory.
const memBase = 0x1_0000_0000

// Memory is an in-process DMA provider. Regions are page-aligned host
// allocations with synthetic, contiguous bus addresses; Map translates a bus
// address back to the allocation 1:1.
type Memory struct {
	mu      sync.Mutex
	next    uint64
	regions map[uint64][]byte // keyed by base bus address
}

// NewMemory returns an empty provider.
func NewMemory() *Memory {
	return &Memory{
		next:    memBase,
		regions: make(map[uint64][]byte),
	}
}

// Alloc implements hal.DMAProvider.
func (m *Memory) Alloc(size int) (hal.DMARegion, error) {
	if size <= 0 {
		return hal.DMARegion{}, fmt.Errorf("%w: alloc of %d bytes", pkg.ErrInvalidArgument, size)
	}
	pages := (size + hal.NICPageSize - 1) / hal.NICPageSize
	buf, err := allocPages(pages * hal.NICPageSize)
	if err != nil {
		return hal.DMARegion{}, fmt.Errorf("%w: %v", pkg.ErrInsufficientMemory, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	base := m.next
	// leave a hole so adjacent regions never look contiguous
	m.next += uint64(pages+1) * hal.NICPageSize
	m.regions[base] = buf

	r := hal.DMARegion{Addrs: make([]uint64, pages), Size: size}
	for i := range r.Addrs {
		r.Addrs[i] = base + uint64(i)*hal.NICPageSize
	}
	return r, nil
}

// Free implements hal.DMAProvider.
func (m *Memory) Free(r hal.DMARegion) error {
	m.mu.Lock()
	buf, ok := m.regions[r.Base()]
	delete(m.regions, r.Base())
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: no region at %#x", pkg.ErrNotFound, r.Base())
	}
	return freePages(buf)
}

// Map implements hal.DMAProvider.
func (m *Memory) Map(addr uint64, size int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for base, buf := range m.regions {
		if addr < base || addr >= base+uint64(len(buf)) {
			continue
		}
		off := int(addr - base)
		if size < 0 || off+size > len(buf) {
			return nil, fmt.Errorf("%w: %d bytes at %#x overruns region", pkg.ErrInvalidArgument, size, addr)
		}
		return buf[off : off+size : off+size], nil
	}
	return nil, fmt.Errorf("%w: bus address %#x", pkg.ErrNotFound, addr)
}

// Regions returns the number of live allocations.
func (m *Memory) Regions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.regions)
}
