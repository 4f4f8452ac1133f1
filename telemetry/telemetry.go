// Package telemetry provides opt-in Prometheus instrumentation for the
// simulator. It is safe to call from the per-cycle hot path: when
// disabled, all public functions are no-ops behind a single atomic
// load. Counters aggregate across routers; per-port breakdowns stay in
// the in-process monitors to keep label cardinality bounded.
package telemetry

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the telemetry module.
//
// MetricsAddr, when non-empty, starts a dedicated HTTP server that
// serves /metrics. If Prometheus is already exposed elsewhere, leave
// it empty and register promhttp yourself.
type Config struct {
	Enabled     bool
	MetricsAddr string // e.g. ":9090"; empty disables the endpoint
}

var (
	modEnabled atomic.Bool

	flitTraversalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nocsim_flit_traversals_total",
		Help: "Total flits forwarded through a crossbar",
	})
	bufferReadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nocsim_buffer_reads_total",
		Help: "Total flit reads from input VC buffers",
	})
	bufferWritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nocsim_buffer_writes_total",
		Help: "Total flit writes into input VC buffers",
	})
	creditsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nocsim_credits_total",
		Help: "Total credits returned upstream",
	})
	packetsRetiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nocsim_packets_retired_total",
		Help: "Total packets fully received at their destination",
	})
	packetLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nocsim_packet_latency_cycles",
		Help:    "Distribution of packet latencies in cycles",
		Buckets: []float64{4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048},
	})
)

func init() {
	// Register eagerly. Harmless when no endpoint is exposed.
	prometheus.MustRegister(flitTraversalsTotal, bufferReadsTotal,
		bufferWritesTotal, creditsTotal, packetsRetiredTotal, packetLatency)
}

// Enable configures the module. Safe to call multiple times: each call
// replaces the enabled flag, and each enabled call with a MetricsAddr
// starts another endpoint; endpoints already started keep running.
func Enable(cfg Config) {
	modEnabled.Store(cfg.Enabled)
	if cfg.Enabled && cfg.MetricsAddr != "" {
		startMetricsEndpoint(cfg.MetricsAddr)
	}
}

// Enabled reports whether telemetry is active.
func Enabled() bool { return modEnabled.Load() }

// ObserveTraversal records one crossbar traversal.
func ObserveTraversal() {
	if !modEnabled.Load() {
		return
	}
	flitTraversalsTotal.Inc()
}

// ObserveBufferRead records one read from an input VC buffer.
func ObserveBufferRead() {
	if !modEnabled.Load() {
		return
	}
	bufferReadsTotal.Inc()
}

// ObserveBufferWrite records one write into an input VC buffer.
func ObserveBufferWrite() {
	if !modEnabled.Load() {
		return
	}
	bufferWritesTotal.Inc()
}

// ObserveCredit records one credit returned upstream.
func ObserveCredit() {
	if !modEnabled.Load() {
		return
	}
	creditsTotal.Inc()
}

// ObservePacketRetired records a packet arriving whole at its
// destination, with its latency in cycles.
func ObservePacketRetired(latency uint64) {
	if !modEnabled.Load() {
		return
	}
	packetsRetiredTotal.Inc()
	packetLatency.Observe(float64(latency))
}

// startMetricsEndpoint exposes /metrics on addr in a background
// goroutine.
func startMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
