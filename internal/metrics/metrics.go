// Package metrics defines the Prometheus collectors exported by the server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultSuccess            = "success"
	ResultPartial            = "partial"
	ResultInvalid            = "invalid"
	ResultDuplicate          = "duplicate"
	ResultInvalidCredentials = "invalid_credentials"
	ResultError              = "error"
)

// Metrics holds the collectors for the account service.
type Metrics struct {
	registry      *prometheus.Registry
	registrations *prometheus.CounterVec
	logins        *prometheus.CounterVec
	passwordHash  *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "authserver",
				Name:      "registrations_total",
				Help:      "Registration attempts by result.",
			},
			[]string{"result"},
		),
		logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "authserver",
				Name:      "logins_total",
				Help:      "Login attempts by result.",
			},
			[]string{"result"},
		),
		passwordHash: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "authserver",
				Name:      "password_hash_seconds",
				Help:      "Time spent deriving or verifying password hashes.",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"op"},
		),
	}

	m.registry.MustRegister(
		m.registrations,
		m.logins,
		m.passwordHash,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registration counts one registration attempt.
func (m *Metrics) Registration(result string) {
	m.registrations.WithLabelValues(result).Inc()
}

// Login counts one login attempt.
func (m *Metrics) Login(result string) {
	m.logins.WithLabelValues(result).Inc()
}

// ObservePasswordHash records the duration of a hash operation.
func (m *Metrics) ObservePasswordHash(op string, d time.Duration) {
	m.passwordHash.WithLabelValues(op).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
