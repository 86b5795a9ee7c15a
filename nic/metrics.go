package nic

import (
	"errors"
	"math/bits"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ardnew/softnic/hal/mcdi"
	"github.com/ardnew/softnic/pkg"
)

type rpcKey struct {
	cmd    string
	result string
}

// stats holds the adapter's counters. Gauges are read from the table at
// scrape time.
type stats struct {
	mu  sync.Mutex
	rpc map[rpcKey]uint64

	flushScans       atomic.Uint64
	flushRetries     atomic.Uint64
	flushCompletions atomic.Uint64
	finiFailures     atomic.Uint64
}

func (s *stats) observeRPC(cmd mcdi.Command, err error) {
	result := "ok"
	var de *pkg.DeviceError
	switch {
	case err == nil:
	case errors.As(err, &de) && de.Err != nil:
		result = "transport"
	case errors.As(err, &de):
		result = de.Status.String()
	default:
		result = "error"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rpc == nil {
		s.rpc = make(map[rpcKey]uint64)
	}
	s.rpc[rpcKey{cmd: cmd.String(), result: result}]++
}

// collector implements prometheus.Collector, reading the queue table on
// each scrape.
type collector struct {
	a *Adapter

	evqInitialized     *prometheus.Desc
	evqPendingFlushes  *prometheus.Desc
	evqBoundTXQs       *prometheus.Desc
	rpcCallsTotal      *prometheus.Desc
	flushScansTotal    *prometheus.Desc
	flushRetriesTotal  *prometheus.Desc
	flushCompleteTotal *prometheus.Desc
	finiFailuresTotal  *prometheus.Desc
}

func newCollector(a *Adapter) *collector {
	labels := prometheus.Labels{"adapter": a.id.String()}
	return &collector{
		a: a,

		evqInitialized: prometheus.NewDesc(
			"softnic_evq_initialized",
			"Whether the event queue is initialized (1) or not (0).",
			[]string{"evq"}, labels,
		),
		evqPendingFlushes: prometheus.NewDesc(
			"softnic_evq_pending_flushes",
			"Outstanding TX flushes on the event queue; -1 while disabling.",
			[]string{"evq"}, labels,
		),
		evqBoundTXQs: prometheus.NewDesc(
			"softnic_evq_bound_txqs",
			"Transmit queues bound to the event queue.",
			[]string{"evq"}, labels,
		),
		rpcCallsTotal: prometheus.NewDesc(
			"softnic_rpc_calls_total",
			"Firmware commands issued, by command and result.",
			[]string{"command", "result"}, labels,
		),
		flushScansTotal: prometheus.NewDesc(
			"softnic_flush_scans_total",
			"Flush scanner runs.",
			nil, labels,
		),
		flushRetriesTotal: prometheus.NewDesc(
			"softnic_flush_retries_total",
			"Flush scans that rescheduled.",
			nil, labels,
		),
		flushCompleteTotal: prometheus.NewDesc(
			"softnic_flush_completions_total",
			"TX flush completions observed.",
			nil, labels,
		),
		finiFailuresTotal: prometheus.NewDesc(
			"softnic_evq_fini_failures_total",
			"Event queue teardowns the firmware rejected.",
			nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.evqInitialized
	ch <- c.evqPendingFlushes
	ch <- c.evqBoundTXQs
	ch <- c.rpcCallsTotal
	ch <- c.flushScansTotal
	ch <- c.flushRetriesTotal
	ch <- c.flushCompleteTotal
	ch <- c.finiFailuresTotal
}

// Collect implements prometheus.Collector.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	a := c.a
	for id := 0; id < a.table.EVQs(); id++ {
		info, err := a.table.GetEVQ(id)
		if err != nil {
			continue
		}
		evq := strconv.Itoa(id)
		initialized := 0.0
		if info.Initialized {
			initialized = 1
		}
		ch <- prometheus.MustNewConstMetric(c.evqInitialized, prometheus.GaugeValue, initialized, evq)
		ch <- prometheus.MustNewConstMetric(c.evqPendingFlushes, prometheus.GaugeValue, float64(info.PendingFlushes), evq)
		ch <- prometheus.MustNewConstMetric(c.evqBoundTXQs, prometheus.GaugeValue, float64(bits.OnesCount64(info.BoundTXQs)), evq)
	}

	a.stats.mu.Lock()
	for k, n := range a.stats.rpc {
		ch <- prometheus.MustNewConstMetric(c.rpcCallsTotal, prometheus.CounterValue, float64(n), k.cmd, k.result)
	}
	a.stats.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(c.flushScansTotal, prometheus.CounterValue, float64(a.stats.flushScans.Load()))
	ch <- prometheus.MustNewConstMetric(c.flushRetriesTotal, prometheus.CounterValue, float64(a.stats.flushRetries.Load()))
	ch <- prometheus.MustNewConstMetric(c.flushCompleteTotal, prometheus.CounterValue, float64(a.stats.flushCompletions.Load()))
	ch <- prometheus.MustNewConstMetric(c.finiFailuresTotal, prometheus.CounterValue, float64(a.stats.finiFailures.Load()))
}

// Describe implements prometheus.Collector.
func (a *Adapter) Describe(ch chan<- *prometheus.Desc) { a.collector.Describe(ch) }

// Collect implements prometheus.Collector.
func (a *Adapter) Collect(ch chan<- prometheus.Metric) { a.collector.Collect(ch) }
