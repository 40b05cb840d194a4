// Package metrics provides Prometheus instrumentation for the license server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the Prometheus namespace for all license server metrics
	Namespace = "licsrv"

	// Label names
	LabelVerdict    = "verdict"
	LabelProduct    = "product"
	LabelStatus     = "status"
	LabelMethod     = "method"
	LabelRoute      = "route"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds the server collectors. Each instance owns its registry so
// tests can build servers side by side.
type Metrics struct {
	registry *prometheus.Registry

	// VerificationsTotal counts verification outcomes by verdict
	VerificationsTotal *prometheus.CounterVec

	// IssuedTotal counts issuance attempts by product and status
	IssuedTotal *prometheus.CounterVec

	// RevocationsTotal counts revocations, including automatic ones
	RevocationsTotal prometheus.Counter

	// HTTPRequestsTotal counts HTTP requests by method, route and status code
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration tracks HTTP request latency in seconds
	HTTPRequestDuration *prometheus.HistogramVec

	// RateLimited counts requests rejected by the rate limiter
	RateLimited prometheus.Counter
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		VerificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "verifications_total",
				Help:      "Total number of license verifications by verdict",
			},
			[]string{LabelVerdict},
		),
		IssuedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "licenses_issued_total",
				Help:      "Total number of license issuance attempts by product and status",
			},
			[]string{LabelProduct, LabelStatus},
		),
		RevocationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "revocations_total",
				Help:      "Total number of license revocations",
			},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by method, route and status code",
			},
			[]string{LabelMethod, LabelRoute, LabelStatusCode},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{LabelMethod, LabelRoute},
		),
		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "http",
				Name:      "rate_limited_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
		),
	}
}

// RecordVerification increments the counter for verdict
func (m *Metrics) RecordVerification(verdict string) {
	m.VerificationsTotal.WithLabelValues(verdict).Inc()
}

// RecordIssue increments the issuance counter for product
func (m *Metrics) RecordIssue(product string, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.IssuedTotal.WithLabelValues(product, status).Inc()
}

// TrackRateLimitClients exposes the number of clients the rate limiter holds
// a bucket for. It may be called once per Metrics.
func (m *Metrics) TrackRateLimitClients(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "rate_limit_clients",
			Help:      "Number of clients tracked by the rate limiter",
		},
		func() float64 { return float64(count()) },
	))
}

// Registry returns the registry the collectors live in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
