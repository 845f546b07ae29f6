// Package metrics exposes Prometheus counters for the login pipeline and the
// HTTP surface. A nil *Metrics is valid and records nothing.
package metrics

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kaizen"

// Metrics holds every collector owned by one process.
type Metrics struct {
	registry *prometheus.Registry

	logins            *prometheus.CounterVec
	lockouts          prometheus.Counter
	expiryFlips       prometheus.Counter
	refreshes         *prometheus.CounterVec
	signatureFailures *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInflight prometheus.Gauge
}

// New builds a registry with the process and Go runtime collectors plus the
// kaizen collectors.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "License login attempts by outcome, reason and source.",
		}, []string{"outcome", "reason", "source"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lockouts_total",
			Help:      "Lockouts triggered by repeated failures from one prefix and IP.",
		}),
		expiryFlips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "license_expiry_flips_total",
			Help:      "Active licenses flipped to expired on read.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_refreshes_total",
			Help:      "Session refresh exchanges by result.",
		}, []string{"result"}),
		signatureFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signature_failures_total",
			Help:      "Rejected internal calls by reason.",
		}, []string{"reason"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_inflight_requests",
			Help:      "Requests currently being served.",
		}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
		m.logins, m.lockouts, m.expiryFlips, m.refreshes, m.signatureFailures,
		m.httpRequests, m.httpDuration, m.httpInflight,
	} {
		if err := register(m.registry, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// register adds c to reg, tolerating a collector that is already present.
func register(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBStats exports connection pool gauges for a database handle.
func (m *Metrics) RegisterDBStats(name string, stats func() sql.DBStats) error {
	if m == nil {
		return nil
	}
	return register(m.registry, newDBStatsCollector(name, stats))
}

// LoginAttempt counts one audited login.
func (m *Metrics) LoginAttempt(outcome, reason, source string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome, reason, source).Inc()
}

// Lockout counts a lockout being set.
func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

// ExpiryFlip counts a lazy active to expired transition.
func (m *Metrics) ExpiryFlip() {
	if m == nil {
		return
	}
	m.expiryFlips.Inc()
}

// Refresh counts a refresh exchange; result is ok or a failure status.
func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

// SignatureFailure counts a rejected internal call.
func (m *Metrics) SignatureFailure(reason string) {
	if m == nil {
		return
	}
	m.signatureFailures.WithLabelValues(reason).Inc()
}

// RequestStarted marks a request in flight and returns the func that
// records its completion.
func (m *Metrics) RequestStarted() func(method, route string, status int) {
	if m == nil {
		return func(string, string, int) {}
	}
	start := time.Now()
	m.httpInflight.Inc()
	return func(method, route string, status int) {
		m.httpInflight.Dec()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	}
}
