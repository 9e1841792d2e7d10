package secretkeeper

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors.  A nil *Metrics is valid and records nothing.
type Metrics struct {
	AuthAttemptsTotal   *prometheus.CounterVec
	AccountsCreated     *prometheus.CounterVec
	SecretOpsTotal      *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretkeeper_auth_attempts_total",
				Help: "Authentication attempts by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		AccountsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretkeeper_accounts_created_total",
				Help: "Accounts created by mechanism",
			},
			[]string{"mechanism"},
		),
		SecretOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretkeeper_secret_operations_total",
				Help: "Secret collection operations by kind and outcome",
			},
			[]string{"op", "outcome"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretkeeper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "secretkeeper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	registry.MustRegister(
		m.AuthAttemptsTotal,
		m.AccountsCreated,
		m.SecretOpsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *Metrics) authAttempt(strategy string, err error) {
	if m == nil {
		return
	}
	m.AuthAttemptsTotal.WithLabelValues(strategy, outcome(err)).Inc()
}

func (m *Metrics) accountCreated(mechanism string) {
	if m == nil {
		return
	}
	m.AccountsCreated.WithLabelValues(mechanism).Inc()
}

func (m *Metrics) secretOp(op string, err error) {
	if m == nil {
		return
	}
	m.SecretOpsTotal.WithLabelValues(op, outcome(err)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Instrument records count and latency for a named route
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
