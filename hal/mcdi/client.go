package mcdi

import (
	"context"
	"fmt"

	"github.com/ardnew/softnic/hal"
	"github.com/ardnew/softnic/pkg"
)

// Observer is told the outcome of every command dispatched by a Client.
// err is nil on success.
type Observer func(cmd Command, err error)

// Client issues typed firmware commands over a transport.
// It is safe for concurrent use if the transport is.
type Client struct {
	transport hal.Transport
	observe   Observer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithObserver registers fn to be called after each dispatched command.
func WithObserver(fn Observer) ClientOption {
	return func(c *Client) { c.observe = fn }
}

// NewClient returns a client using t.
func NewClient(t hal.Transport, opts ...ClientOption) *Client {
	c := &Client{transport: t}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do dispatches cmd with raw payloads after checking their lengths against
// the command's layout. A mismatch fails with pkg.ErrInvalidArgument
// without reaching the transport. Firmware and channel failures are
// returned as *pkg.DeviceError.
func (c *Client) Do(ctx context.Context, cmd Command, in, out []byte) (int, error) {
	if want := cmd.InLen(); want < 0 || len(in) != want {
		return 0, fmt.Errorf("%w: %s request is %d bytes, want %d",
			pkg.ErrInvalidArgument, cmd, len(in), want)
	}
	if want := cmd.OutLen(); len(out) != want {
		return 0, fmt.Errorf("%w: %s response buffer is %d bytes, want %d",
			pkg.ErrInvalidArgument, cmd, len(out), want)
	}

	rc, err := c.transport.Call(ctx, uint32(cmd), in, out)
	switch {
	case err != nil:
		err = &pkg.DeviceError{Op: cmd.String(), Status: pkg.StatusIO, Err: err}
	case rc < 0:
		err = &pkg.DeviceError{Op: cmd.String(), Status: pkg.Status(rc)}
	}

	if c.observe != nil {
		c.observe(cmd, err)
	}
	if err != nil {
		pkg.LogDebug(pkg.ComponentRPC, "command failed", "cmd", cmd.String(), "error", err)
		return 0, err
	}
	pkg.LogDebug(pkg.ComponentRPC, "command complete", "cmd", cmd.String(), "rc", rc)
	return rc, nil
}

// InitEVQ creates an event queue.
func (c *Client) InitEVQ(ctx context.Context, p EVQParams) error {
	var in [EVQParamsSize]byte
	p.MarshalTo(in[:])
	_, err := c.Do(ctx, CmdInitEVQ, in[:], nil)
	return err
}

// FiniEVQ destroys an event queue.
func (c *Client) FiniEVQ(ctx context.Context, qid int) error {
	var in [QueueIDSize]byte
	PutQueueID(in[:], uint32(qid))
	_, err := c.Do(ctx, CmdFiniEVQ, in[:], nil)
	return err
}

// InitTXQ creates a transmit queue and returns the id the firmware assigned.
func (c *Client) InitTXQ(ctx context.Context, p TXQParams) (int, error) {
	var in, out [TXQParamsSize]byte
	p.MarshalTo(in[:])
	return c.Do(ctx, CmdInitTXQ, in[:], out[:])
}

// FiniTXQ asks the firmware to flush a transmit queue. Success means the
// request was accepted; completion is reported later by a flush event.
func (c *Client) FiniTXQ(ctx context.Context, qid int) error {
	var in [QueueIDSize]byte
	PutQueueID(in[:], uint32(qid))
	_, err := c.Do(ctx, CmdFiniTXQ, in[:], nil)
	return err
}

// GetParam reads parameter p, scoped to queue qid where relevant.
func (c *Client) GetParam(ctx context.Context, p Param, qid int) (ParamValue, error) {
	var in [ParamRequestSize]byte
	var out [ParamValueSize]byte
	req := ParamRequest{Param: p, QID: uint32(qid)}
	req.MarshalTo(in[:])

	var v ParamValue
	if _, err := c.Do(ctx, CmdGetParam, in[:], out[:]); err != nil {
		return v, err
	}
	ParseParamValue(out[:], &v)
	return v, nil
}

// SetParam writes parameter p.
func (c *Client) SetParam(ctx context.Context, p Param, qid int, v ParamValue) error {
	var in [ParamRequestSize + ParamValueSize]byte
	req := ParamRequest{Param: p, QID: uint32(qid)}
	req.MarshalTo(in[:])
	v.MarshalTo(in[ParamRequestSize:])
	_, err := c.Do(ctx, CmdSetParam, in[:], nil)
	return err
}
