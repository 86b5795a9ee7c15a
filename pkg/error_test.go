package pkg

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusOK, "ok"},
		{Status(7), "ok"},
		{StatusNoEntry, "no entry"},
		{StatusIO, "i/o error"},
		{StatusNoMemory, "no memory"},
		{StatusBusy, "busy"},
		{StatusNoDevice, "no device"},
		{StatusInvalid, "invalid"},
		{StatusRange, "out of range"},
		{StatusNoSys, "not implemented"},
		{Status(-99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("Status(%d).String() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestStatus_Error(t *testing.T) {
	tests := []struct {
		status  Status
		wantErr error
	}{
		{StatusOK, nil},
		{Status(3), nil},
		{StatusNoEntry, ErrNotFound},
		{StatusNoMemory, ErrInsufficientMemory},
		{StatusBusy, ErrBusy},
		{StatusInvalid, ErrInvalidArgument},
		{StatusNoSys, ErrNotSupported},
		{StatusIO, ErrDevice},
		{StatusRange, ErrDevice},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			err := tt.status.Error()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Status.Error() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Status.Error() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDeviceError(t *testing.T) {
	err := fmt.Errorf("enable evq 2: %w", &DeviceError{Op: "INIT_EVQ", Status: StatusBusy})

	if !errors.Is(err, ErrDevice) {
		t.Error("DeviceError should match ErrDevice")
	}
	if !errors.Is(err, ErrBusy) {
		t.Error("DeviceError with StatusBusy should match ErrBusy")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("DeviceError with StatusBusy should not match ErrNotFound")
	}

	var de *DeviceError
	if !errors.As(err, &de) {
		t.Fatal("errors.As failed")
	}
	if de.Status != StatusBusy {
		t.Errorf("Status = %v, want %v", de.Status, StatusBusy)
	}
	if !strings.Contains(err.Error(), "INIT_EVQ") {
		t.Errorf("message %q missing command", err.Error())
	}
}

func TestDeviceError_Transport(t *testing.T) {
	err := &DeviceError{Op: "FINI_TXQ", Status: StatusIO, Err: io.ErrClosedPipe}

	if !errors.Is(err, ErrDevice) {
		t.Error("transport DeviceError should match ErrDevice")
	}
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Error("transport DeviceError should unwrap to the channel error")
	}
	if !strings.Contains(err.Error(), io.ErrClosedPipe.Error()) {
		t.Errorf("message %q missing transport error", err.Error())
	}
}

func TestSentinelErrors(t *testing.T) {
	errs := []error{
		ErrNotFound,
		ErrInvalidArgument,
		ErrInsufficientMemory,
		ErrDevice,
		ErrNotSupported,
		ErrBusy,
		ErrInvalidState,
		ErrDetached,
	}

	for i, err1 := range errs {
		if err1 == nil {
			t.Errorf("error %d is nil", i)
			continue
		}
		for j, err2 := range errs {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("error %d and %d are equal", i, j)
			}
		}
	}
}
