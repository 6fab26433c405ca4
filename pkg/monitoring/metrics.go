package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Authentication metrics
	authAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"operation", "result"},
	)

	tokenRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Total number of token refresh attempts",
		},
		[]string{"result"},
	)

	viewSwitchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "view_switches_total",
			Help: "Total number of view switch attempts",
		},
		[]string{"target", "result"},
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_requests_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"path"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of active portal sessions",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		authAttemptsTotal,
		tokenRefreshesTotal,
		viewSwitchesTotal,
		rateLimitedTotal,
		sessionsActive,
	)
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, statusCode int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAuthAttempt records an authentication attempt
func RecordAuthAttempt(operation string, success bool) {
	authAttemptsTotal.WithLabelValues(operation, resultLabel(success)).Inc()
}

// RecordTokenRefresh records a token refresh attempt
func RecordTokenRefresh(success bool) {
	tokenRefreshesTotal.WithLabelValues(resultLabel(success)).Inc()
}

// RecordViewSwitch records a view switch attempt
func RecordViewSwitch(target string, success bool) {
	viewSwitchesTotal.WithLabelValues(target, resultLabel(success)).Inc()
}

// RecordRateLimited records a request rejected by the rate limiter
func RecordRateLimited(path string) {
	rateLimitedTotal.WithLabelValues(path).Inc()
}

// SessionOpened increments the active session gauge
func SessionOpened() {
	sessionsActive.Inc()
}

// SessionClosed decrements the active session gauge
func SessionClosed() {
	sessionsActive.Dec()
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
