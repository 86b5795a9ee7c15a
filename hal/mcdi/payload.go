package mcdi

import "encoding/binary"

// Payload sizes in bytes.
const (
	EVQParamsSize    = 32
	TXQParamsSize    = 12
	QueueIDSize      = 4
	ParamRequestSize = 8
	ParamValueSize   = 32
)

var le = binary.LittleEndian

// EVQParams is the INIT_EVQ request.
type EVQParams struct {
	QID               uint32
	Entries           uint32
	PageAddr          uint64 // Bus address of the first ring page
	PageOffset        uint32
	Size              uint32 // Ring size in bytes
	SubscribeTimeSync bool
	UnsolCredit       uint32
}

const evqFlagTimeSync = 1 << 0

// MarshalTo writes p to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (p *EVQParams) MarshalTo(buf []byte) int {
	if len(buf) < EVQParamsSize {
		return 0
	}
	le.PutUint32(buf[0:], p.QID)
	le.PutUint32(buf[4:], p.Entries)
	le.PutUint64(buf[8:], p.PageAddr)
	le.PutUint32(buf[16:], p.PageOffset)
	le.PutUint32(buf[20:], p.Size)
	var flags uint32
	if p.SubscribeTimeSync {
		flags |= evqFlagTimeSync
	}
	le.PutUint32(buf[24:], flags)
	le.PutUint32(buf[28:], p.UnsolCredit)
	return EVQParamsSize
}

// ParseEVQParams decodes an INIT_EVQ request.
// Returns false if data is not exactly EVQParamsSize bytes.
func ParseEVQParams(data []byte, out *EVQParams) bool {
	if len(data) != EVQParamsSize {
		return false
	}
	out.QID = le.Uint32(data[0:])
	out.Entries = le.Uint32(data[4:])
	out.PageAddr = le.Uint64(data[8:])
	out.PageOffset = le.Uint32(data[16:])
	out.Size = le.Uint32(data[20:])
	out.SubscribeTimeSync = le.Uint32(data[24:])&evqFlagTimeSync != 0
	out.UnsolCredit = le.Uint32(data[28:])
	return true
}

// TXQParams is the INIT_TXQ request and response.
type TXQParams struct {
	EVQ   uint32 // Event queue the TXQ reports to
	QID   uint32 // Requested transmit queue
	Label uint32 // Caller tag echoed in completions
}

// MarshalTo writes p to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (p *TXQParams) MarshalTo(buf []byte) int {
	if len(buf) < TXQParamsSize {
		return 0
	}
	le.PutUint32(buf[0:], p.EVQ)
	le.PutUint32(buf[4:], p.QID)
	le.PutUint32(buf[8:], p.Label)
	return TXQParamsSize
}

// ParseTXQParams decodes an INIT_TXQ payload.
// Returns false if data is not exactly TXQParamsSize bytes.
func ParseTXQParams(data []byte, out *TXQParams) bool {
	if len(data) != TXQParamsSize {
		return false
	}
	out.EVQ = le.Uint32(data[0:])
	out.QID = le.Uint32(data[4:])
	out.Label = le.Uint32(data[8:])
	return true
}

// PutQueueID writes the FINI_EVQ/FINI_TXQ request for qid.
func PutQueueID(buf []byte, qid uint32) int {
	if len(buf) < QueueIDSize {
		return 0
	}
	le.PutUint32(buf, qid)
	return QueueIDSize
}

// ParseQueueID decodes a FINI_EVQ/FINI_TXQ request.
func ParseQueueID(data []byte) (uint32, bool) {
	if len(data) != QueueIDSize {
		return 0, false
	}
	return le.Uint32(data), true
}

// ParamRequest selects a parameter and, for per-queue parameters, the queue.
type ParamRequest struct {
	Param Param
	QID   uint32
}

// MarshalTo writes r to buf.
func (r *ParamRequest) MarshalTo(buf []byte) int {
	if len(buf) < ParamRequestSize {
		return 0
	}
	le.PutUint32(buf[0:], uint32(r.Param))
	le.PutUint32(buf[4:], r.QID)
	return ParamRequestSize
}

// ParseParamRequest decodes the leading ParamRequestSize bytes of data.
func ParseParamRequest(data []byte, out *ParamRequest) bool {
	if len(data) < ParamRequestSize {
		return false
	}
	out.Param = Param(le.Uint32(data[0:]))
	out.QID = le.Uint32(data[4:])
	return true
}

// ParamValue is the value of a parameter. Its words are interpreted per
// parameter; use the accessors below.
type ParamValue [4]uint64

// MarshalTo writes v to buf.
func (v *ParamValue) MarshalTo(buf []byte) int {
	if len(buf) < ParamValueSize {
		return 0
	}
	for i, w := range v {
		le.PutUint64(buf[i*8:], w)
	}
	return ParamValueSize
}

// ParseParamValue decodes a parameter value.
func ParseParamValue(data []byte, out *ParamValue) bool {
	if len(data) < ParamValueSize {
		return false
	}
	for i := range out {
		out[i] = le.Uint64(data[i*8:])
	}
	return true
}

// NICResources is the queue id ranges reported by ParamNICResources.
// Limits are inclusive.
type NICResources struct {
	EVQMin, EVQLim uint32
	TXQMin, TXQLim uint32
}

// NICResources interprets v as ParamNICResources.
func (v ParamValue) NICResources() NICResources {
	return NICResources{
		EVQMin: uint32(v[0]),
		EVQLim: uint32(v[1]),
		TXQMin: uint32(v[2]),
		TXQLim: uint32(v[3]),
	}
}

// Window is a bus address range reported by ParamEVQWindow (Size is the
// per-VI stride) or ParamCTPIOWindow.
type Window struct {
	Base uint64
	Size uint64
}

// Window interprets v as an address window.
func (v ParamValue) Window() Window {
	return Window{Base: v[0], Size: v[1]}
}

// Scalar interprets v as a single value, such as the variant or revision.
func (v ParamValue) Scalar() uint64 {
	return v[0]
}

// ResourcesValue encodes r as a parameter value.
func ResourcesValue(r NICResources) ParamValue {
	return ParamValue{uint64(r.EVQMin), uint64(r.EVQLim), uint64(r.TXQMin), uint64(r.TXQLim)}
}

// WindowValue encodes w as a parameter value.
func WindowValue(w Window) ParamValue {
	return ParamValue{w.Base, w.Size}
}
