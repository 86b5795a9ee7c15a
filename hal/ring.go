package hal

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/ardnew/softnic/pkg"
)

// Ring is a view of event ring memory shared with the adapter. Entries are
// read and written with 64-bit atomic operations; the ring itself holds no
// indices.
type Ring struct {
	words []uint64
}

// NewRing views mem as a ring of entries events. mem must be 8-byte aligned
// and at least entries*EventSize bytes long; entries must be a power of two.
func NewRing(mem []byte, entries int) (Ring, error) {
	if entries <= 0 || entries&(entries-1) != 0 {
		return Ring{}, fmt.Errorf("%w: ring of %d entries", pkg.ErrInvalidArgument, entries)
	}
	if len(mem) < entries*EventSize {
		return Ring{}, fmt.Errorf("%w: %d bytes for %d entries",
			pkg.ErrInsufficientMemory, len(mem), entries)
	}
	p := unsafe.Pointer(unsafe.SliceData(mem))
	if uintptr(p)%8 != 0 {
		return Ring{}, fmt.Errorf("%w: ring memory not 8-byte aligned", pkg.ErrInvalidArgument)
	}
	return Ring{words: unsafe.Slice((*uint64)(p), entries)}, nil
}

// Len returns the number of entries.
func (r Ring) Len() int {
	return len(r.words)
}

// Load returns entry i modulo the ring size.
func (r Ring) Load(i int) Event {
	return Event(atomic.LoadUint64(&r.words[i&(len(r.words)-1)]))
}

// Store writes entry i modulo the ring size.
func (r Ring) Store(i int, e Event) {
	atomic.StoreUint64(&r.words[i&(len(r.words)-1)], uint64(e))
}
