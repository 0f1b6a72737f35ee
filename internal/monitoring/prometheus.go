package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. It implements
// security.MetricsRecorder so the access controller can count
// authentication outcomes without importing this package.
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec
	apiErrorsTotal       *prometheus.CounterVec
	authAttemptsTotal    *prometheus.CounterVec
	lockoutsTotal        prometheus.Counter
	rateLimitedTotal     *prometheus.CounterVec
	apiKeysIssuedTotal   prometheus.Counter
	apiKeysRevokedTotal  prometheus.Counter
	dataPushesTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers the metric set
func NewMetrics() *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
			[]string{"method", "endpoint"},
		),
		apiErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"endpoint", "error_type"},
		),
		authAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_attempts_total",
				Help: "Authentication attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		lockoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "auth_lockouts_total",
				Help: "Total number of tripped lockouts",
			},
		),
		rateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limited_total",
				Help: "Requests rejected by the rate limiter, by endpoint class",
			},
			[]string{"class"},
		),
		apiKeysIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "api_keys_issued_total",
				Help: "Total number of API keys issued",
			},
		),
		apiKeysRevokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "api_keys_revoked_total",
				Help: "Total number of API keys revoked",
			},
		),
		dataPushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "data_pushes_total",
				Help: "Dashboard data pushes by section",
			},
			[]string{"section"},
		),
	}

	prometheus.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		m.apiErrorsTotal,
		m.authAttemptsTotal,
		m.lockoutsTotal,
		m.rateLimitedTotal,
		m.apiKeysIssuedTotal,
		m.apiKeysRevokedTotal,
		m.dataPushesTotal,
	)

	return m
}

// MetricsMiddleware creates a Prometheus metrics middleware
func (m *Metrics) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		m.httpRequestsInFlight.WithLabelValues(c.Request.Method, path).Inc()
		defer m.httpRequestsInFlight.WithLabelValues(c.Request.Method, path).Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)

		if c.Writer.Status() >= 400 {
			errorType := "client_error"
			if c.Writer.Status() >= 500 {
				errorType = "server_error"
			}
			m.apiErrorsTotal.WithLabelValues(path, errorType).Inc()
		}
	}
}

// PrometheusHandler returns the Prometheus metrics handler
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// RecordAuthAttempt counts one authentication attempt
func (m *Metrics) RecordAuthAttempt(method, outcome string) {
	m.authAttemptsTotal.WithLabelValues(method, outcome).Inc()
}

// RecordLockout counts one tripped lockout
func (m *Metrics) RecordLockout() {
	m.lockoutsTotal.Inc()
}

// RecordRateLimited counts one rate-limited rejection
func (m *Metrics) RecordRateLimited(class string) {
	m.rateLimitedTotal.WithLabelValues(class).Inc()
}

// RecordKeyIssued counts one issued API key
func (m *Metrics) RecordKeyIssued() {
	m.apiKeysIssuedTotal.Inc()
}

// RecordKeyRevoked counts one revoked API key
func (m *Metrics) RecordKeyRevoked() {
	m.apiKeysRevokedTotal.Inc()
}

// RecordDataPush counts one dashboard data push
func (m *Metrics) RecordDataPush(section string) {
	m.dataPushesTotal.WithLabelValues(section).Inc()
}
