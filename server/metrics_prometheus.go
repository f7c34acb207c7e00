package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics is a MetricsCollector backed by client_golang counters
// and histograms. Register it with a prometheus.Registerer before wiring it
// into the server via WithMetricsCollector.
type PrometheusMetrics struct {
	commands      *prometheus.CounterVec
	commandTiming *prometheus.HistogramVec
	transferBytes *prometheus.CounterVec
	connections   *prometheus.CounterVec
	authAttempts  *prometheus.CounterVec
}

// NewPrometheusMetrics constructs and registers the FTP server's metrics
// against reg. Pass prometheus.DefaultRegisterer for the global registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftpd",
			Name:      "commands_total",
			Help:      "Total FTP commands processed, by verb and outcome.",
		}, []string{"cmd", "result"}),
		commandTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ftpd",
			Name:      "command_duration_seconds",
			Help:      "FTP command handling latency, by verb.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"cmd"}),
		transferBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftpd",
			Name:      "transfer_bytes_total",
			Help:      "Total bytes transferred, by operation.",
		}, []string{"operation"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftpd",
			Name:      "connections_total",
			Help:      "Total connection attempts, by outcome.",
		}, []string{"reason"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftpd",
			Name:      "auth_attempts_total",
			Help:      "Total authentication attempts, by outcome.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.commands, m.commandTiming, m.transferBytes, m.connections, m.authAttempts)
	return m
}

func (m *PrometheusMetrics) RecordCommand(cmd string, success bool, duration time.Duration) {
	result := "ok"
	if !success {
		result = "error"
	}
	m.commands.WithLabelValues(cmd, result).Inc()
	m.commandTiming.WithLabelValues(cmd).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordTransfer(operation string, bytes int64, _ time.Duration) {
	m.transferBytes.WithLabelValues(operation).Add(float64(bytes))
}

func (m *PrometheusMetrics) RecordConnection(accepted bool, reason string) {
	if accepted {
		reason = "accepted"
	}
	m.connections.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) RecordAuthentication(success bool, _ string) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.authAttempts.WithLabelValues(result).Inc()
}
