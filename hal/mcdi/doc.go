// Package mcdi encodes the firmware commands used to manage adapter queues.
//
// Each [Command] has a fixed request and response layout. Payloads are
// little-endian structs with MarshalTo and Parse functions in the style of
// a wire codec; no struct is ever overlaid on raw memory.
//
// [Client] wraps a [github.com/ardnew/softnic/hal.Transport] with typed
// calls. It checks payload lengths before dispatch and turns negative
// firmware results into *pkg.DeviceError. It never retries.
//
//	c := mcdi.NewClient(transport)
//	txq, err := c.InitTXQ(ctx, mcdi.TXQParams{EVQ: 0, QID: 0, Label: 1})
package mcdi
