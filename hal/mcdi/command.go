package mcdi

import "fmt"

// Command is a firmware command code.
type Command uint32

// Commands understood by the queue layer.
const (
	CmdInitEVQ  Command = 0x80
	CmdInitTXQ  Command = 0x82
	CmdFiniEVQ  Command = 0x83
	CmdFiniTXQ  Command = 0x85
	CmdGetParam Command = 0x1000 // auxiliary bus parameter query
	CmdSetParam Command = 0x1001
)

// String returns the command mnemonic.
func (c Command) String() string {
	switch c {
	case CmdInitEVQ:
		return "INIT_EVQ"
	case CmdInitTXQ:
		return "INIT_TXQ"
	case CmdFiniEVQ:
		return "FINI_EVQ"
	case CmdFiniTXQ:
		return "FINI_TXQ"
	case CmdGetParam:
		return "GET_PARAM"
	case CmdSetParam:
		return "SET_PARAM"
	default:
		return fmt.Sprintf("CMD_%#x", uint32(c))
	}
}

// InLen returns the request payload size for c, or -1 if c is unknown.
func (c Command) InLen() int {
	switch c {
	case CmdInitEVQ:
		return EVQParamsSize
	case CmdInitTXQ:
		return TXQParamsSize
	case CmdFiniEVQ, CmdFiniTXQ:
		return QueueIDSize
	case CmdGetParam:
		return ParamRequestSize
	case CmdSetParam:
		return ParamRequestSize + ParamValueSize
	default:
		return -1
	}
}

// OutLen returns the response payload size for c, or -1 if c is unknown.
func (c Command) OutLen() int {
	switch c {
	case CmdInitEVQ, CmdFiniEVQ, CmdFiniTXQ, CmdSetParam:
		return 0
	case CmdInitTXQ:
		return TXQParamsSize
	case CmdGetParam:
		return ParamValueSize
	default:
		return -1
	}
}

// Param identifies an adapter parameter for GET_PARAM and SET_PARAM.
type Param uint32

// Parameters exposed by the adapter.
const (
	ParamVariant      Param = 1 // firmware variant letter
	ParamRevision     Param = 2
	ParamNICResources Param = 3 // queue id ranges
	ParamEVQWindow    Param = 4 // per-VI doorbell window
	ParamCTPIOWindow  Param = 5 // CTPIO aperture of one TXQ
)

// String returns the parameter name.
func (p Param) String() string {
	switch p {
	case ParamVariant:
		return "variant"
	case ParamRevision:
		return "revision"
	case ParamNICResources:
		return "nic_resources"
	case ParamEVQWindow:
		return "evq_window"
	case ParamCTPIOWindow:
		return "ctpio_window"
	default:
		return fmt.Sprintf("param(%d)", uint32(p))
	}
}
