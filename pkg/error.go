package pkg

import (
	"errors"
	"fmt"
)

// Queue management errors.
var (
	// ErrNotFound indicates a queue or VI id outside the adapter's table.
	ErrNotFound = errors.New("queue not found")

	// ErrInvalidArgument indicates a malformed request, such as a transmit
	// queue requested against an event queue without transmit capability.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientMemory indicates a DMA region too small for the request.
	ErrInsufficientMemory = errors.New("insufficient memory")

	// ErrDevice indicates a firmware RPC failure. Errors returned for
	// firmware failures are *DeviceError values that match ErrDevice.
	ErrDevice = errors.New("device error")

	// ErrNotSupported indicates an operation this adapter family does not implement.
	ErrNotSupported = errors.New("not supported")

	// ErrBusy indicates the queue or slot is already in use.
	ErrBusy = errors.New("resource busy")

	// ErrInvalidState indicates the queue is not in a state that permits the operation.
	ErrInvalidState = errors.New("invalid queue state")

	// ErrDetached indicates the adapter has been closed.
	ErrDetached = errors.New("adapter detached")
)

// DeviceError reports a failed firmware command.
type DeviceError struct {
	Op     string // Command that failed
	Status Status // Firmware status code (negative)
	Err    error  // Transport error, if the channel itself failed
}

// Error implements error.
func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrDevice, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s (%d)", ErrDevice, e.Op, e.Status, int(e.Status))
}

// Is reports whether target is ErrDevice or the sentinel for e.Status.
func (e *DeviceError) Is(target error) bool {
	if target == ErrDevice {
		return true
	}
	return e.Err == nil && target != nil && target == e.Status.Error()
}

// Unwrap returns the underlying transport error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Status is a firmware command status code. Successful commands return a
// non-negative value; failures use the negative codes below.
type Status int32

// Firmware status values.
const (
	StatusOK       Status = 0
	StatusNoEntry  Status = -2  // No such queue
	StatusIO       Status = -5  // Channel failure
	StatusNoMemory Status = -12 // Allocation failed
	StatusBusy     Status = -16 // Queue already initialized or no free slot
	StatusNoDevice Status = -19 // Parameter mismatch
	StatusInvalid  Status = -22 // Malformed or out-of-range request
	StatusRange    Status = -34 // Result outside the adapter's table
	StatusNoSys    Status = -38 // Command not implemented
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoEntry:
		return "no entry"
	case StatusIO:
		return "i/o error"
	case StatusNoMemory:
		return "no memory"
	case StatusBusy:
		return "busy"
	case StatusNoDevice:
		return "no device"
	case StatusInvalid:
		return "invalid"
	case StatusRange:
		return "out of range"
	case StatusNoSys:
		return "not implemented"
	default:
		if s > 0 {
			return "ok"
		}
		return "unknown"
	}
}

// Error returns the sentinel error closest to the status, or nil for success.
func (s Status) Error() error {
	switch {
	case s >= 0:
		return nil
	case s == StatusNoEntry:
		return ErrNotFound
	case s == StatusNoMemory:
		return ErrInsufficientMemory
	case s == StatusBusy:
		return ErrBusy
	case s == StatusInvalid:
		return ErrInvalidArgument
	case s == StatusNoSys:
		return ErrNotSupported
	default:
		return ErrDevice
	}
}
