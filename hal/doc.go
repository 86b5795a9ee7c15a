// Package hal defines the collaborators the queue layer drives but does
// not implement.
//
// # Interface Overview
//
//   - [Transport] carries firmware commands. It is synchronous and never
//     retries; retry policy belongs to the caller.
//   - [DMAProvider] hands out page-backed, physically contiguous memory
//     for event rings and maps bus addresses back to host memory.
//   - [DMARegion] is the page list passed when enabling an event queue.
//
// The [github.com/ardnew/softnic/hal/mcdi] package encodes the command
// payloads carried over a Transport. The [github.com/ardnew/softnic/hal/sim]
// package implements both interfaces in memory for tests and the CLI.
//
// # Implementing a Transport
//
//	type pipe struct{ dev *os.File }
//
//	func (p *pipe) Call(ctx context.Context, cmd uint32, in, out []byte) (int, error) {
//	    // Write the request, then block for the response.
//	    return 0, nil
//	}
package hal
