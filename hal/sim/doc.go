// Package sim implements a simulated adapter for testing the queue layer
// without hardware.
//
// [Device] processes firmware commands in memory and implements
// hal.Transport. [Memory] is a page-backed DMA provider whose bus
// addresses map 1:1 onto host memory, so the event rings the device writes
// are the same bytes the adapter scans.
//
// # Behaviour
//
//   - INIT_TXQ allocates transmit queues linearly, ignoring the requested
//     id, so transmit and event queue ids usually differ.
//   - Each transmit queue gets a 4 KiB CTPIO aperture filled with 0xff and
//     a transmit engine that wakes every [TXInterval], consumes a frame
//     written to the aperture and posts a TX completion event.
//   - FINI_TXQ stops the engine and posts a TX flush completion to the
//     owning event ring before returning.
//   - SET_PARAM is not implemented.
//
// # Fault Injection
//
//	dev.FailNext(mcdi.CmdFiniTXQ, pkg.StatusIO) // next FINI_TXQ fails
//	dev.SetDropFlushEvents(true)                // flushes never complete
package sim
