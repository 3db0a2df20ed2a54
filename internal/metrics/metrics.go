package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Relay metrics
	RelayConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gugudan_relay_connected",
			Help: "1 while the supervisor socket is open",
		},
	)

	RelayConnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gugudan_relay_connect_attempts_total",
			Help: "Total supervisor socket dial attempts",
		},
	)

	RelayDisconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gugudan_relay_disconnects_total",
			Help: "Total socket terminations",
		},
		[]string{"reason"}, // "close" or "error"
	)

	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gugudan_relay_frames_received_total",
			Help: "Total inbound frames by message type",
		},
		[]string{"type"},
	)

	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gugudan_relay_frames_dropped_total",
			Help: "Total inbound frames dropped as malformed",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gugudan_relay_messages_sent_total",
			Help: "Total user messages written to the socket",
		},
	)

	BufferedMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gugudan_relay_buffered_messages",
			Help: "Messages currently held in the relay buffer",
		},
	)

	// Liveness metrics
	ServiceUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gugudan_service_up",
			Help: "Result of the last health probe (1 up, 0 down)",
		},
		[]string{"service"},
	)

	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gugudan_health_probe_duration_seconds",
			Help:    "Health probe latency",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"service"},
	)

	// Bridge HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gugudan_http_requests_total",
			Help: "Total bridge HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)
