// Package metrics provides Prometheus metrics for Aegis.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for Aegis.
type Metrics struct {
	// Authentication metrics
	AuthAttempts *prometheus.CounterVec

	// Admin edit metrics
	EditCommands *prometheus.CounterVec

	// Config metrics
	ConfigVersion prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.AuthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_auth_attempts_total",
			Help: "Total number of request authentication attempts",
		},
		[]string{"scheme", "outcome"},
	)

	m.EditCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_edit_commands_total",
			Help: "Total number of security config edit requests",
		},
		[]string{"section", "status"},
	)

	m.ConfigVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aegis_security_config_version",
			Help: "Version of the currently persisted security config",
		},
	)

	m.registry.MustRegister(
		m.AuthAttempts,
		m.EditCommands,
		m.ConfigVersion,
	)
	return m
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
