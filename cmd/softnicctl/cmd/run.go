package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/softnic/hal"
	"github.com/ardnew/softnic/hal/sim"
	"github.com/ardnew/softnic/nic"
	"github.com/ardnew/softnic/pkg"
	"github.com/ardnew/softnic/pkg/prof"
)

type runOptions struct {
	evqs        int
	entries     int
	frames      int
	timeout     time.Duration
	dropFlush   bool
	metricsAddr string
	hold        bool
	profile     prof.Config
}

// lane is one event queue with the transmit queue reporting to it.
type lane struct {
	evq int
	txq int
}

func newRunCommand(opts *options) *cobra.Command {
	ro := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the queue lifecycle against the simulator",
		Long: `run attaches an adapter to the simulator, claims transmit-capable VIs,
enables their event queues and creates one transmit queue on each. It
sends frames through each queue, flushes them and waits for every flush
completion before tearing the queues down.

Examples:
  softnicctl run --evqs 4 --frames 10
  softnicctl run --drop-flush --timeout 1s -v
  softnicctl run --metrics-addr :9100 --hold`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ro.run(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&ro.evqs, "evqs", "n", 2, "event queues to enable")
	f.IntVar(&ro.entries, "entries", 512, "entries per event ring")
	f.IntVar(&ro.frames, "frames", 3, "frames to send on each transmit queue")
	f.DurationVar(&ro.timeout, "timeout", 5*time.Second, "time allowed for transmit and flush completion")
	f.BoolVar(&ro.dropFlush, "drop-flush", false, "have the simulator drop flush completion events")
	f.StringVar(&ro.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.BoolVar(&ro.hold, "hold", false, "keep serving metrics until interrupted")
	f.StringVar(&ro.profile.CPU, "cpuprofile", "", "write a CPU profile (needs -tags profile)")
	f.StringVar(&ro.profile.Heap, "heapprofile", "", "write a heap profile on exit (needs -tags profile)")
	f.BoolVar(&ro.profile.Contention, "contention", false, "sample lock contention for /debug/pprof")
	return cmd
}

func (ro *runOptions) run(ctx context.Context, out io.Writer, opts *options) error {
	class := opts.class

	session, err := prof.Start(ro.profile)
	if err != nil {
		return fmt.Errorf("start profile: %w", err)
	}
	defer func() {
		if err := session.Stop(); err != nil {
			pkg.LogWarn(pkg.ComponentAdapter, "write profile", "error", err)
		}
	}()

	dev, err := sim.New(class)
	if err != nil {
		return err
	}
	defer dev.Close()
	dev.SetDropFlushEvents(ro.dropFlush)

	flushed := make(chan int, class.TXQs)
	handler := nic.EventHandlerFunc(func(_ *nic.Adapter, txq int) { flushed <- txq })

	a, err := nic.New(class, dev, dev.Memory(), nic.WithEventHandler(handler))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			pkg.LogWarn(pkg.ComponentAdapter, "close adapter", "error", err)
		}
	}()

	if err := a.InitHardware(net.HardwareAddr{0x00, 0x0f, 0x53, 0x00, 0x00, 0x01}, nil); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s %s\n", headFmt("adapter"), a.ID(), dimFmt(class.Name))
	fmt.Fprintf(out, "  flags %s\n", a.Flags())

	if ro.metricsAddr != "" {
		addr, stop, err := serveMetrics(a, ro.metricsAddr)
		if err != nil {
			return err
		}
		defer stop()
		fmt.Fprintf(out, "  metrics on http://%s/metrics\n", addr)
	}

	lanes, err := ro.open(ctx, out, a, dev)
	if err != nil {
		return err
	}

	if err := ro.transmit(ctx, dev, lanes); err != nil {
		return err
	}
	for _, l := range lanes {
		fmt.Fprintf(out, "  txq %d sent %d frames\n", l.txq, dev.Packets(l.txq))
	}

	flushErr := ro.flush(ctx, out, a, lanes, flushed)

	for _, l := range lanes {
		if err := a.DisableEVQ(ctx, l.evq); err != nil {
			return err
		}
		if err := a.ReleaseVI(l.evq); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "%s %d event queues\n", headFmt("disabled"), len(lanes))

	if ro.hold && ro.metricsAddr != "" {
		fmt.Fprintln(out, dimFmt("holding; interrupt to exit"))
		<-ctx.Done()
	}
	return flushErr
}

// open claims a VI for each lane, enables its event queue and creates the
// transmit queue.
func (ro *runOptions) open(ctx context.Context, out io.Writer, a *nic.Adapter, dev *sim.Device) ([]lane, error) {
	var lanes []lane
	for len(lanes) < ro.evqs {
		evq, err := a.FindVI(nic.VIConstraints{WantTXQ: true}, 0)
		if errors.Is(err, pkg.ErrBusy) {
			fmt.Fprintf(out, "  %s only %d transmit VIs available\n", warnFmt("note"), len(lanes))
			break
		}
		if err != nil {
			return nil, err
		}

		region, err := dev.Memory().Alloc(ro.entries * hal.EventSize)
		if err != nil {
			return nil, err
		}
		if err := a.EnableEVQ(ctx, nic.EVQParams{EVQ: evq, Entries: ro.entries, Region: region}); err != nil {
			return nil, err
		}
		txq, err := a.InitTXQ(ctx, evq, uint32(evq))
		if err != nil {
			return nil, err
		}
		ctpio, err := a.CTPIOAddr(ctx, txq)
		if err != nil {
			return nil, err
		}

		lanes = append(lanes, lane{evq: evq, txq: txq})
		fmt.Fprintf(out, "  evq %d %s txq %d  ctpio %#x\n", evq, okFmt("->"), txq, ctpio)
	}
	if len(lanes) == 0 {
		return nil, fmt.Errorf("%w: no transmit-capable VI", pkg.ErrBusy)
	}
	return lanes, nil
}

// transmit sends ro.frames frames on every lane, waiting for the simulator
// to consume each one before writing the next.
func (ro *runOptions) transmit(ctx context.Context, dev *sim.Device, lanes []lane) error {
	ctx, cancel := context.WithTimeout(ctx, ro.timeout)
	defer cancel()

	frame := make([]byte, 64)
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range lanes {
		g.Go(func() error {
			for i := 0; i < ro.frames; i++ {
				buf := append([]byte(nil), frame...)
				buf[0] = byte(i)
				if err := dev.Transmit(l.txq, buf); err != nil {
					return err
				}
				if err := waitPackets(ctx, dev, l.txq, i+1); err != nil {
					return fmt.Errorf("txq %d: %w", l.txq, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func waitPackets(ctx context.Context, dev *sim.Device, txq, want int) error {
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for dev.Packets(txq) < want {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

// flush flushes every lane's transmit queue and waits for the completions.
func (ro *runOptions) flush(ctx context.Context, out io.Writer, a *nic.Adapter, lanes []lane, flushed <-chan int) error {
	waiting := make(map[int]bool, len(lanes))
	for _, l := range lanes {
		if err := a.FlushTXQ(ctx, l.evq, l.txq); err != nil {
			return err
		}
		waiting[l.txq] = true
	}

	deadline := time.NewTimer(ro.timeout)
	defer deadline.Stop()
	for len(waiting) > 0 {
		select {
		case txq := <-flushed:
			delete(waiting, txq)
			fmt.Fprintf(out, "  txq %d %s\n", txq, okFmt("flushed"))
		case <-deadline.C:
			for _, l := range lanes {
				if !waiting[l.txq] {
					continue
				}
				info, _ := a.Table().GetEVQ(l.evq)
				fmt.Fprintf(out, "  txq %d %s (evq %d pending %d)\n",
					l.txq, errFmt("no completion"), l.evq, info.PendingFlushes)
			}
			return fmt.Errorf("%d flush completions outstanding after %s", len(waiting), ro.timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// serveMetrics exposes the adapter's collector over HTTP. It returns the
// bound address and a function that shuts the server down.
func serveMetrics(a *nic.Adapter, addr string) (string, func(), error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(a); err != nil {
		return "", nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	prof.Register(mux)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			pkg.LogWarn(pkg.ComponentAdapter, "metrics server", "error", err)
		}
	}()

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
