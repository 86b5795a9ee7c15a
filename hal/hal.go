package hal

import (
	"context"
)

// NICPageSize is the granularity of DMA region addresses.
const NICPageSize = 4096

// Transport is the synchronous command channel to the adapter firmware.
type Transport interface {
	// Call sends command cmd with payload in and blocks until the firmware
	// responds. Response data is written to out.
	//
	// A non-negative result is the command's return value, for example the
	// id of an allocated queue. A negative result is a firmware status code.
	// A non-nil error means the channel itself failed.
	Call(ctx context.Context, cmd uint32, in, out []byte) (int, error)
}

// DMARegion describes memory the adapter may access by DMA.
//
// Addrs holds the bus address of each NIC page in the region. Size is the
// number of usable bytes; when zero the region is assumed to span every page.
type DMARegion struct {
	Addrs []uint64
	Size  int
}

// Bytes returns the usable size of the region.
func (r DMARegion) Bytes() int {
	if r.Size > 0 {
		return r.Size
	}
	return len(r.Addrs) * NICPageSize
}

// Contiguous reports whether consecutive pages are adjacent on the bus.
func (r DMARegion) Contiguous() bool {
	for i := 1; i < len(r.Addrs); i++ {
		if r.Addrs[i]-r.Addrs[i-1] != NICPageSize {
			return false
		}
	}
	return true
}

// Base returns the bus address of the first page, or zero for an empty region.
func (r DMARegion) Base() uint64 {
	if len(r.Addrs) == 0 {
		return 0
	}
	return r.Addrs[0]
}

// DMAProvider supplies physically contiguous memory and translates bus
// addresses back to CPU-accessible memory.
//
// Adapters of this family use a 1:1 mapping, so Map never remaps.
type DMAProvider interface {
	// Alloc returns a contiguous region of at least size bytes.
	Alloc(size int) (DMARegion, error)

	// Free releases a region returned by Alloc.
	Free(r DMARegion) error

	// Map returns the memory backing size bytes at bus address addr.
	Map(addr uint64, size int) ([]byte, error)
}
