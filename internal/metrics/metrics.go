// Package metrics exposes connection state as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bennjii/reseda"
)

// Metrics holds the connection collectors on a private registry.
type Metrics struct {
	Transitions    *prometheus.CounterVec
	Attempts       prometheus.Counter
	Failures       prometheus.Counter
	Connected      prometheus.Gauge
	State          prometheus.Gauge
	ConnectSeconds prometheus.Histogram

	registry *prometheus.Registry

	mu     sync.Mutex
	lastID string
}

// New creates the collectors and registers them, plus the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reseda_status_transitions_total",
			Help: "Connection status snapshots published, by state.",
		}, []string{"state"}),
		Attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reseda_connection_attempts_total",
			Help: "Connection attempts started.",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reseda_connection_failures_total",
			Help: "Connection attempts or teardowns that ended in the error state.",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reseda_connected",
			Help: "1 while the tunnel is connected.",
		}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reseda_connection_state",
			Help: "Current connection state code.",
		}),
		ConnectSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reseda_connect_duration_seconds",
			Help:    "Time from connect request to verified connection.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.Transitions,
		m.Attempts,
		m.Failures,
		m.Connected,
		m.State,
		m.ConnectSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe updates the collectors from a published status snapshot.
func (m *Metrics) Observe(st reseda.ConnectionStatus) {
	m.Transitions.WithLabelValues(st.State.String()).Inc()
	m.State.Set(float64(st.State))
	if st.Connected {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
	if st.State == reseda.Error {
		m.Failures.Inc()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st.ConnectionID != "" && st.ConnectionID != m.lastID &&
		(st.State == reseda.Connecting || st.State == reseda.Connected) {
		m.Attempts.Inc()
	}
	if st.ConnectionID != "" {
		m.lastID = st.ConnectionID
	}
}

// ObserveConnectDuration records how long an attempt took to connect.
func (m *Metrics) ObserveConnectDuration(d time.Duration) {
	m.ConnectSeconds.Observe(d.Seconds())
}
