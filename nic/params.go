package nic

import (
	"context"
	"fmt"

	"github.com/ardnew/softnic/hal/mcdi"
	"github.com/ardnew/softnic/pkg"
	"github.com/ardnew/softnic/pkg/config"
)

// MaxSharedRXQs is the number of shared receive queues a VI may attach to.
const MaxSharedRXQs = 8

// DesignParam names one adapter design parameter.
type DesignParam uint

// Design parameters.
const (
	DPRXSuperbufBytes DesignParam = iota
	DPRXFrameOffset
	DPTXApertureBytes
	DPTXFIFOBytes
	DPTimestampSubnanoBits
	DPUnsolCreditSeqMask
)

// CompatDefaults are the values older clients assume for parameters they
// do not know about.
var CompatDefaults = config.Design{
	RXSuperbufBytes:      1 << 20,
	RXFrameOffset:        16,
	TXApertureBytes:      0x1000,
	TXFIFOBytes:          0x8000,
	TimestampSubnanoBits: 2,
	UnsolCreditSeqMask:   0x7f,
}

// DesignParams is a design parameter query. The caller marks the
// parameters it understands with Know; the adapter fills those in.
type DesignParams struct {
	known  uint32
	Values config.Design
}

// Know marks params as understood by the caller.
func (p *DesignParams) Know(params ...DesignParam) {
	for _, dp := range params {
		p.known |= 1 << dp
	}
}

// Knows reports whether the caller understands dp.
func (p *DesignParams) Knows(dp DesignParam) bool {
	return p.known&(1<<dp) != 0
}

// DesignParameters answers a design parameter query. A parameter the
// caller does not know is accepted only if the adapter's value equals the
// compatibility default; otherwise the query fails with pkg.ErrNotSupported.
func (a *Adapter) DesignParameters(dp *DesignParams) error {
	have := a.class.Design
	for _, f := range []struct {
		param DesignParam
		name  string
		dst   *uint64
		value uint64
		def   uint64
	}{
		{DPRXSuperbufBytes, "rx_superbuf_bytes", &dp.Values.RXSuperbufBytes, have.RXSuperbufBytes, CompatDefaults.RXSuperbufBytes},
		{DPRXFrameOffset, "rx_frame_offset", &dp.Values.RXFrameOffset, have.RXFrameOffset, CompatDefaults.RXFrameOffset},
		{DPTXApertureBytes, "tx_aperture_bytes", &dp.Values.TXApertureBytes, have.TXApertureBytes, CompatDefaults.TXApertureBytes},
		{DPTXFIFOBytes, "tx_fifo_bytes", &dp.Values.TXFIFOBytes, have.TXFIFOBytes, CompatDefaults.TXFIFOBytes},
		{DPTimestampSubnanoBits, "timestamp_subnano_bits", &dp.Values.TimestampSubnanoBits, have.TimestampSubnanoBits, CompatDefaults.TimestampSubnanoBits},
		{DPUnsolCreditSeqMask, "unsol_credit_seq_mask", &dp.Values.UnsolCreditSeqMask, have.UnsolCreditSeqMask, CompatDefaults.UnsolCreditSeqMask},
	} {
		switch {
		case dp.Knows(f.param):
			*f.dst = f.value
		case f.value != f.def:
			return fmt.Errorf("%w: %s is %d, caller assumes %d", pkg.ErrNotSupported, f.name, f.value, f.def)
		}
	}
	return nil
}

// VIIORegion returns the doorbell window of VI instance.
func (a *Adapter) VIIORegion(ctx context.Context, instance int) (addr uint64, size int, err error) {
	if instance < a.class.VIMin || instance >= a.class.VIMin+a.class.VIs {
		return 0, 0, fmt.Errorf("%w: vi instance %d", pkg.ErrNotFound, instance)
	}
	v, err := a.rpc.GetParam(ctx, mcdi.ParamEVQWindow, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("evq window: %w", err)
	}
	w := v.Window()
	return w.Base + uint64(instance-a.class.VIMin)*w.Size, int(w.Size), nil
}

// TranslateDMAAddrs converts bus addresses to device addresses. Adapters of
// this family map 1:1, so src is copied. It returns the number converted.
func (a *Adapter) TranslateDMAAddrs(dst, src []uint64) int {
	return copy(dst, src)
}

// MaxSharedRXQs returns the number of shared receive queues a VI may use.
func (a *Adapter) MaxSharedRXQs() int {
	return MaxSharedRXQs
}
