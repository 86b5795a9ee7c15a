// Command softnicctl drives a simulated CTPIO adapter through the queue
// lifecycle: event queues are enabled, transmit queues created, loaded and
// flushed, and flush completions collected from the event rings.
//
// Usage:
//
//	softnicctl [--config class.yaml] [-v] [--log-format json] <command>
//
// Commands:
//
//	class   print the adapter class and its queue table
//	run     run the lifecycle against the simulator
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardnew/softnic/cmd/softnicctl/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "softnicctl:", err)
		stop()
		os.Exit(1)
	}
}
