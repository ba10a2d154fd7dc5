// Package metrics exposes RDTP's run counters as Prometheus metrics. A run
// always accumulates them; an HTTP exposition endpoint is only started when
// the caller asks for one.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Role labels the two sides of a transfer.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// Registry owns RDTP's Prometheus collectors for a single run.
type Registry struct {
	reg          *prometheus.Registry
	bytesTotal   *prometheus.CounterVec
	retransTotal prometheus.Counter
	framesTotal  *prometheus.CounterVec
	throughput   prometheus.Gauge
}

// New creates a fresh, unregistered-elsewhere Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rdtp_bytes_total",
			Help: "Total payload bytes transferred.",
		}, []string{"role"}),
		retransTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rdtp_retransmits_total",
			Help: "Total DATA frame retransmissions performed by the sender.",
		}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rdtp_frames_total",
			Help: "Total frames sent or received, by type.",
		}, []string{"type"}),
		throughput: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rdtp_throughput_bytes_per_second",
			Help: "Throughput of the most recently completed run.",
		}),
	}
	reg.MustRegister(m.bytesTotal, m.retransTotal, m.framesTotal, m.throughput)
	return m
}

// AddBytes accumulates payload bytes transferred by role.
func (m *Registry) AddBytes(role Role, n uint64) {
	m.bytesTotal.WithLabelValues(string(role)).Add(float64(n))
}

// AddRetransmits accumulates sender-side retransmission counts.
func (m *Registry) AddRetransmits(n uint64) {
	m.retransTotal.Add(float64(n))
}

// ObserveFrame records one frame of the given type crossing the wire.
func (m *Registry) ObserveFrame(frameType string) {
	m.framesTotal.WithLabelValues(frameType).Inc()
}

// SetThroughput records bytes transferred over elapsed wall-clock time.
func (m *Registry) SetThroughput(bytes uint64, elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	m.throughput.Set(float64(bytes) / elapsed.Seconds())
}

// ServeUntil starts a promhttp exposition server on addr and runs it until
// ctx is cancelled. Intended to be run in its own goroutine by the caller.
func (m *Registry) ServeUntil(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
