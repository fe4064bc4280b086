package relayserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "sparse_relay"

// Metrics holds the relay collectors. They live on their own registry so
// several servers can coexist in one process (tests).
type Metrics struct {
	registry *prometheus.Registry

	connections      prometheus.Gauge
	registeredPeers  prometheus.Gauge
	frames           *prometheus.CounterVec
	relayed          prometheus.Counter
	deliveryFailures *prometheus.CounterVec
	protocolErrors   *prometheus.CounterVec
	overflows        *prometheus.CounterVec
	mailboxEntries   prometheus.Gauge
}

// NewMetrics creates and registers the relay collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections",
			Help:      "Live WebSocket connections.",
		}),
		registeredPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "registered_peers",
			Help:      "Connections that completed registration.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_total",
			Help:      "Decoded inbound frames by kind.",
		}, []string{"kind"}),
		relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "relayed_total",
			Help:      "Ciphertext frames placed in a recipient outbox.",
		}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "delivery_failures_total",
			Help:      "Send frames answered with delivery_failed, by reason.",
		}, []string{"reason"}),
		protocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "protocol_errors_total",
			Help:      "Rejected inbound frames by error code.",
		}, []string{"code"}),
		overflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "overflows_total",
			Help:      "Outbox overflows by policy applied.",
		}, []string{"policy"}),
		mailboxEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "mailbox_entries",
			Help:      "Messages waiting in the fallback mailbox.",
		}),
	}
	m.registry.MustRegister(
		m.connections,
		m.registeredPeers,
		m.frames,
		m.relayed,
		m.deliveryFailures,
		m.protocolErrors,
		m.overflows,
		m.mailboxEntries,
	)
	return m
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
