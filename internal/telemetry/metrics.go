package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recipeshare"

// Metrics holds the collectors of one node. Each node owns its registry so
// several nodes can live in one process (tests, examples).
type Metrics struct {
	Registry *prometheus.Registry

	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	GossipMessages  *prometheus.CounterVec
	Peers           prometheus.Gauge
	Sessions        prometheus.Gauge
}

func New() *Metrics {
	startTime := time.Now()
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of bridge commands by result.",
			},
			[]string{"command", "result"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Latency of bridge commands.",
				// 100us .. ~1.6s
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
			},
			[]string{"command"},
		),
		GossipMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gossip_messages_total",
				Help:      "Gossip messages handled by kind.",
			},
			[]string{"kind"},
		),
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Peers in the gossip mesh view.",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Open command connections.",
		}),
	}
	uptime := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Node uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
	m.Registry.MustRegister(m.CommandsTotal, m.CommandDuration, m.GossipMessages, m.Peers, m.Sessions, uptime)
	return m
}

// Handler exposes the registry. Mount it with r.Handle("/metrics", m.Handler()).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveCommand records one handled bridge command.
func (m *Metrics) ObserveCommand(command, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, result).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(took.Seconds())
}

// GossipMessage counts a handled gossip message of the given kind.
func (m *Metrics) GossipMessage(kind string) {
	if m == nil {
		return
	}
	m.GossipMessages.WithLabelValues(kind).Inc()
}

// SetPeers records the current size of the mesh view.
func (m *Metrics) SetPeers(n int) {
	if m == nil {
		return
	}
	m.Peers.Set(float64(n))
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.Sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.Sessions.Dec()
}
