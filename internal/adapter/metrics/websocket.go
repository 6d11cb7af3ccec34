package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds hub and connection metrics.
type WebSocketMetrics struct {
	ActiveConnections  prometheus.Gauge
	MessagesPublished  *prometheus.CounterVec
	SlowClientsEvicted prometheus.Counter
	InboundMessages    *prometheus.CounterVec
	InvalidMessages    prometheus.Counter
	BootstrapFailures  prometheus.Counter
	RejectedUpgrades   prometheus.Counter
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of connections currently registered for broadcasts.",
		}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_published_total",
			Help:      "Total number of broadcasts fanned out, by message type.",
		}, []string{"type"}),
		SlowClientsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_clients_evicted_total",
			Help:      "Total number of connections dropped because a send failed.",
		}),
		InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "inbound_messages_total",
			Help:      "Total number of client messages handled, by action.",
		}, []string{"action"}),
		InvalidMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "invalid_messages_total",
			Help:      "Total number of client messages ignored as malformed or unknown.",
		}),
		BootstrapFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "bootstrap_failures_total",
			Help:      "Total number of joins whose initial snapshot could not be read.",
		}),
		RejectedUpgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_upgrades_total",
			Help:      "Total number of upgrade requests refused by the connection limit.",
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.MessagesPublished,
		m.SlowClientsEvicted,
		m.InboundMessages,
		m.InvalidMessages,
		m.BootstrapFailures,
		m.RejectedUpgrades,
	)
	return m
}
