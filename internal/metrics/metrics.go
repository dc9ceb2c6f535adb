// Package metrics provides Prometheus metrics for procproxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive is a gauge of currently running connections.
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "procproxy",
			Name:      "connections_active",
			Help:      "Number of currently active controller-side connections",
		},
	)

	// ConnectionsTotal counts connections that completed the handshake.
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "procproxy",
			Name:      "connections_total",
			Help:      "Total number of connections that completed the handshake",
		},
	)

	// HandshakeRejectionsTotal counts handshake failures by reason.
	HandshakeRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procproxy",
			Name:      "handshake_rejections_total",
			Help:      "Total handshake rejections by reason",
		},
		[]string{"reason"},
	)

	// CommandsTotal counts commands dispatched by opcode and result.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procproxy",
			Name:      "commands_total",
			Help:      "Total commands dispatched by opcode and result",
		},
		[]string{"opcode", "result"},
	)

	// CommandSeconds measures command round-trip latency.
	CommandSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "procproxy",
			Name:      "command_seconds",
			Help:      "Command round-trip latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 12),
		},
		[]string{"opcode"},
	)

	// BytesTotal counts bytes transferred by direction.
	BytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procproxy",
			Name:      "bytes_total",
			Help:      "Total bytes transferred by direction",
		},
		[]string{"direction"},
	)
)

// Result constants for command metrics.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Direction constants for byte metrics.
const (
	DirectionIn  = "input"
	DirectionOut = "stdout"
	DirectionErr = "stderr"
)

// RecordHandshakeRejection records a handshake rejection by reason.
func RecordHandshakeRejection(reason string) {
	HandshakeRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordConnectionAccepted records a connection completing its handshake.
func RecordConnectionAccepted() {
	ConnectionsActive.Inc()
	ConnectionsTotal.Inc()
}

// RecordConnectionClosed records a connection's lifecycle ending.
func RecordConnectionClosed() {
	ConnectionsActive.Dec()
}

// RecordCommand records a completed command's opcode, result, and latency.
func RecordCommand(opcode, result string, seconds float64) {
	CommandsTotal.WithLabelValues(opcode, result).Inc()
	CommandSeconds.WithLabelValues(opcode).Observe(seconds)
}

// RecordBytes records bytes transferred in a given direction.
func RecordBytes(direction string, n int) {
	BytesTotal.WithLabelValues(direction).Add(float64(n))
}
