package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messaging metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifichat_messages_sent_total",
			Help: "Total chat messages submitted",
		},
		[]string{"mode"}, // "direct" or "relay"
	)

	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wifichat_messages_received_total",
			Help: "Total chat messages delivered to the UI",
		},
	)

	EnvelopesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifichat_envelopes_received_total",
			Help: "Total envelopes decoded",
		},
		[]string{"category"},
	)

	MalformedEnvelopes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wifichat_malformed_envelopes_total",
			Help: "Total received payloads that failed to decode",
		},
	)

	AcksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifichat_acks_received_total",
			Help: "Total acknowledgements received",
		},
		[]string{"result"}, // "matched", "echo" or "unknown"
	)

	PendingAcks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wifichat_pending_acks",
			Help: "Chat messages awaiting acknowledgement",
		},
	)

	// Connection metrics
	ConnectedPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wifichat_connected_peers",
			Help: "Peers in the server's channel table",
		},
	)

	KnownPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wifichat_known_peers",
			Help: "Addresses in the peer registry",
		},
	)

	RoleChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifichat_role_changes_total",
			Help: "Total role transitions",
		},
		[]string{"role"},
	)

	ConnectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifichat_connection_errors_total",
			Help: "Total connection failures",
		},
		[]string{"kind"}, // "bind", "connect", "broken", "selector"
	)

	// Relay metrics
	RelayAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifichat_relay_attempts_total",
			Help: "Total direct link attempts during relay sweeps",
		},
		[]string{"result"}, // "delivered" or "failed"
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifichat_http_requests_total",
			Help: "Total HTTP requests to the UI bridge",
		},
		[]string{"method", "path", "status"},
	)

	WebClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wifichat_web_clients",
			Help: "Connected websocket clients",
		},
	)
)
