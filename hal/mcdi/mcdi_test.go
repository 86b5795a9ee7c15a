package mcdi

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softnic/pkg"
)

type call struct {
	cmd uint32
	in  []byte
}

// scriptTransport records requests and answers with a fixed result.
type scriptTransport struct {
	calls []call
	rc    int
	err   error
	reply []byte
}

func (s *scriptTransport) Call(_ context.Context, cmd uint32, in, out []byte) (int, error) {
	s.calls = append(s.calls, call{cmd: cmd, in: append([]byte(nil), in...)})
	copy(out, s.reply)
	return s.rc, s.err
}

func TestEVQParams_RoundTrip(t *testing.T) {
	p := EVQParams{
		QID:               3,
		Entries:           512,
		PageAddr:          0x1_0000_2000,
		Size:              512 * 8,
		SubscribeTimeSync: true,
		UnsolCredit:       127,
	}
	var buf [EVQParamsSize]byte
	require.Equal(t, EVQParamsSize, p.MarshalTo(buf[:]))
	assert.Equal(t, 0, p.MarshalTo(buf[:EVQParamsSize-1]))

	var got EVQParams
	require.True(t, ParseEVQParams(buf[:], &got))
	assert.Equal(t, p, got)
	assert.False(t, ParseEVQParams(buf[:EVQParamsSize-1], &got))
}

func TestTXQParams_Layout(t *testing.T) {
	p := TXQParams{EVQ: 1, QID: 2, Label: 0xabcd}
	var buf [TXQParamsSize]byte
	p.MarshalTo(buf[:])
	assert.Equal(t, []byte{1, 0, 0, 0, 2, 0, 0, 0, 0xcd, 0xab, 0, 0}, buf[:])
}

func TestParamValue_Accessors(t *testing.T) {
	r := NICResources{EVQMin: 0, EVQLim: 7, TXQMin: 0, TXQLim: 15}
	assert.Equal(t, r, ResourcesValue(r).NICResources())

	w := Window{Base: 0xfe000000, Size: 0x1000}
	assert.Equal(t, w, WindowValue(w).Window())
	assert.EqualValues(t, 'T', ParamValue{'T'}.Scalar())
}

func TestCommand_Lengths(t *testing.T) {
	assert.Equal(t, 40, CmdSetParam.InLen())
	assert.Equal(t, TXQParamsSize, CmdInitTXQ.OutLen())
	assert.Equal(t, -1, Command(0x99).InLen())
	assert.Equal(t, "CMD_0x99", Command(0x99).String())
}

func TestClient_InitEVQ(t *testing.T) {
	tr := &scriptTransport{}
	c := NewClient(tr)

	require.NoError(t, c.InitEVQ(context.Background(), EVQParams{QID: 2, Entries: 4, Size: 32}))
	require.Len(t, tr.calls, 1)
	assert.EqualValues(t, CmdInitEVQ, tr.calls[0].cmd)

	var got EVQParams
	require.True(t, ParseEVQParams(tr.calls[0].in, &got))
	assert.EqualValues(t, 2, got.QID)
	assert.EqualValues(t, 4, got.Entries)
}

func TestClient_InitTXQReturnsID(t *testing.T) {
	tr := &scriptTransport{rc: 7}
	c := NewClient(tr)

	id, err := c.InitTXQ(context.Background(), TXQParams{EVQ: 0, QID: 0, Label: 9})
	require.NoError(t, err)
	assert.Equal(t, 7, id)
}

func TestClient_FirmwareStatus(t *testing.T) {
	tr := &scriptTransport{rc: int(pkg.StatusBusy)}
	var observed []error
	c := NewClient(tr, WithObserver(func(cmd Command, err error) {
		assert.Equal(t, CmdFiniTXQ, cmd)
		observed = append(observed, err)
	}))

	err := c.FiniTXQ(context.Background(), 5)
	require.ErrorIs(t, err, pkg.ErrDevice)
	require.ErrorIs(t, err, pkg.ErrBusy)

	var de *pkg.DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "FINI_TXQ", de.Op)
	assert.Equal(t, pkg.StatusBusy, de.Status)
	require.Len(t, observed, 1)
	assert.Equal(t, err, observed[0])
}

func TestClient_ChannelError(t *testing.T) {
	tr := &scriptTransport{err: io.ErrUnexpectedEOF}
	c := NewClient(tr)

	err := c.FiniEVQ(context.Background(), 1)
	require.ErrorIs(t, err, pkg.ErrDevice)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestClient_LengthMismatch(t *testing.T) {
	tr := &scriptTransport{}
	c := NewClient(tr)

	tests := []struct {
		name string
		cmd  Command
		in   []byte
		out  []byte
	}{
		{"short init evq", CmdInitEVQ, make([]byte, EVQParamsSize-1), nil},
		{"long fini txq", CmdFiniTXQ, make([]byte, 8), nil},
		{"missing txq response", CmdInitTXQ, make([]byte, TXQParamsSize), nil},
		{"unexpected response", CmdFiniEVQ, make([]byte, QueueIDSize), make([]byte, 4)},
		{"unknown command", Command(0x42), nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Do(context.Background(), tt.cmd, tt.in, tt.out)
			require.ErrorIs(t, err, pkg.ErrInvalidArgument)
		})
	}
	assert.Empty(t, tr.calls, "no command may reach the transport")
}

func TestClient_GetParam(t *testing.T) {
	reply := make([]byte, ParamValueSize)
	v := WindowValue(Window{Base: 0x8000, Size: 0x1000})
	v.MarshalTo(reply)
	tr := &scriptTransport{reply: reply}
	c := NewClient(tr)

	got, err := c.GetParam(context.Background(), ParamCTPIOWindow, 3)
	require.NoError(t, err)
	assert.Equal(t, Window{Base: 0x8000, Size: 0x1000}, got.Window())

	var req ParamRequest
	require.True(t, ParseParamRequest(tr.calls[0].in, &req))
	assert.Equal(t, ParamCTPIOWindow, req.Param)
	assert.EqualValues(t, 3, req.QID)
}

func TestClient_SetParamNotSupported(t *testing.T) {
	tr := &scriptTransport{rc: int(pkg.StatusNoSys)}
	c := NewClient(tr)

	err := c.SetParam(context.Background(), ParamRevision, 0, ParamValue{2})
	require.ErrorIs(t, err, pkg.ErrNotSupported)
	require.Len(t, tr.calls, 1)
	assert.Len(t, tr.calls[0].in, ParamRequestSize+ParamValueSize)
}
