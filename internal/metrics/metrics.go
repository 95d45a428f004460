package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder defines the interface for recording application metrics.
// Implementations include Metrics (Prometheus-based) and NoopMetrics (no-op).
type Recorder interface {
	// Grant engine / token lifecycle
	RecordTokenIssued(grantType string, duration time.Duration)
	RecordGrantRejected(grantType, errorCode string)
	RecordTokenRefresh(success bool)
	RecordTokenRevoked(reason string)

	// Authentication gate
	RecordBearerAuth(result string) // success, missing, invalid
	RecordLogin(success bool)
	RecordLogout()

	// Permission rules
	RecordPermissionDenied(rule string)
}

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	TokensIssuedTotal       *prometheus.CounterVec
	GrantsRejectedTotal     *prometheus.CounterVec
	TokensRefreshedTotal    *prometheus.CounterVec
	TokensRevokedTotal      *prometheus.CounterVec
	TokenGenerationDuration *prometheus.HistogramVec

	BearerAuthTotal *prometheus.CounterVec
	LoginTotal      *prometheus.CounterVec
	LogoutTotal     prometheus.Counter

	PermissionDeniedTotal *prometheus.CounterVec

	// HTTP request metrics, used directly by HTTPMetricsMiddleware
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag.
// Uses sync.Once so Prometheus metrics are only registered once.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

func initMetrics() *Metrics {
	return &Metrics{
		TokensIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{"grant_type"},
		),
		GrantsRejectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_grants_rejected_total",
				Help: "Total number of rejected grant requests",
			},
			[]string{"grant_type", "error"},
		),
		TokensRefreshedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_refreshed_total",
				Help: "Total number of token refresh attempts",
			},
			[]string{"result"}, // success, error
		),
		TokensRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_revoked_total",
				Help: "Total number of tokens revoked",
			},
			[]string{"reason"}, // user_request, rotation, logout, sweep
		),
		TokenGenerationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oauth_token_generation_duration_seconds",
				Help:    "Time taken to issue tokens",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"grant_type"},
		),

		BearerAuthTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_bearer_total",
				Help: "Total number of bearer token authentication attempts",
			},
			[]string{"result"}, // success, missing, invalid
		),
		LoginTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_login_total",
				Help: "Total number of login attempts",
			},
			[]string{"result"}, // success, failure
		),
		LogoutTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "auth_logout_total",
				Help: "Total number of logouts",
			},
		),

		PermissionDeniedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authz_permission_denied_total",
				Help: "Total number of permission rule denials",
			},
			[]string{"rule"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),
	}
}

func (m *Metrics) RecordTokenIssued(grantType string, duration time.Duration) {
	m.TokensIssuedTotal.WithLabelValues(grantType).Inc()
	m.TokenGenerationDuration.WithLabelValues(grantType).Observe(duration.Seconds())
}

func (m *Metrics) RecordGrantRejected(grantType, errorCode string) {
	m.GrantsRejectedTotal.WithLabelValues(grantType, errorCode).Inc()
}

func (m *Metrics) RecordTokenRefresh(success bool) {
	result := resultError
	if success {
		result = resultSuccess
	}
	m.TokensRefreshedTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordTokenRevoked(reason string) {
	m.TokensRevokedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordBearerAuth(result string) {
	m.BearerAuthTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordLogin(success bool) {
	result := resultFailure
	if success {
		result = resultSuccess
	}
	m.LoginTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordLogout() {
	m.LogoutTotal.Inc()
}

func (m *Metrics) RecordPermissionDenied(rule string) {
	m.PermissionDeniedTotal.WithLabelValues(rule).Inc()
}
