package hal

// EventSize is the size of one event ring entry in bytes.
const EventSize = 8

// Event is one 64-bit event ring entry as written by the adapter.
type Event uint64

// EventField locates a bit field within an Event.
type EventField struct {
	LBN   uint // lowest bit number
	Width uint
}

// Event fields.
var (
	FieldEventType    = EventField{LBN: 60, Width: 4}
	FieldPhase        = EventField{LBN: 59, Width: 1}
	FieldCtrlSubtype  = EventField{LBN: 53, Width: 6}
	FieldFlushType    = EventField{LBN: 16, Width: 4}
	FieldFlushQueueID = EventField{LBN: 0, Width: 16}
	FieldTXQueueID    = EventField{LBN: 0, Width: 16}
	FieldTXSequence   = EventField{LBN: 16, Width: 16}
)

// Event types.
const (
	EventTypeRX      = 0
	EventTypeTX      = 1
	EventTypeControl = 2
)

// Control event subtypes.
const (
	CtrlSubtypeError    = 0
	CtrlSubtypeTimeSync = 1
	CtrlSubtypeFlush    = 2
)

// Flush types carried by a flush control event.
const (
	FlushTypeTX = 0
	FlushTypeRX = 1
)

func (f EventField) mask() uint64 {
	return (uint64(1)<<f.Width - 1) << f.LBN
}

// Field extracts f from e.
func (e Event) Field(f EventField) uint64 {
	return (uint64(e) & f.mask()) >> f.LBN
}

// With returns e with field f set to v. Bits of v beyond the field width
// are discarded.
func (e Event) With(f EventField, v uint64) Event {
	m := f.mask()
	return Event(uint64(e)&^m | (v<<f.LBN)&m)
}

// TXFlushed reports whether e is a transmit flush completion and, if so,
// which queue flushed.
func (e Event) TXFlushed() (txq int, ok bool) {
	if e.Field(FieldEventType) != EventTypeControl ||
		e.Field(FieldCtrlSubtype) != CtrlSubtypeFlush ||
		e.Field(FieldFlushType) != FlushTypeTX {
		return 0, false
	}
	return int(e.Field(FieldFlushQueueID)), true
}

// NewFlushEvent builds a flush completion control event.
func NewFlushEvent(flushType int, qid int, phase uint64) Event {
	return Event(0).
		With(FieldEventType, EventTypeControl).
		With(FieldCtrlSubtype, CtrlSubtypeFlush).
		With(FieldFlushType, uint64(flushType)).
		With(FieldFlushQueueID, uint64(qid)).
		With(FieldPhase, phase)
}

// NewTXEvent builds a transmit completion event.
func NewTXEvent(qid int, seq uint16, phase uint64) Event {
	return Event(0).
		With(FieldEventType, EventTypeTX).
		With(FieldTXQueueID, uint64(qid)).
		With(FieldTXSequence, uint64(seq)).
		With(FieldPhase, phase)
}
