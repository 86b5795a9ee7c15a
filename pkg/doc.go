// Package pkg provides shared utilities for the softnic queue layer.
//
// This package contains common functionality used by the adapter core,
// the firmware RPC client, and the simulated device, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for the queue management error taxonomy
//   - Firmware status codes and the [DeviceError] type
//   - Component identifiers for log filtering
//
// # Logging
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentEVQ, "event queue enabled", "evq", 3)
//
// # Errors
//
// Firmware failures are reported as *DeviceError, which matches both
// [ErrDevice] and the sentinel for its status:
//
//	if errors.Is(err, pkg.ErrDevice) {
//	    var de *pkg.DeviceError
//	    errors.As(err, &de)
//	    log.Printf("firmware rejected %s: %s", de.Op, de.Status)
//	}
package pkg
