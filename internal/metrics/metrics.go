// ABOUTME: Prometheus collectors for passkey ceremonies and HTTP traffic
// ABOUTME: Package-level metrics guarded by an atomic enable switch

package metrics

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all cortado metrics
	Namespace = "cortado"

	// Label names
	LabelCeremony   = "ceremony"
	LabelResult     = "result"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Result values
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// CeremoniesTotal counts completed passkey ceremonies by kind and result.
	// Use RecordCeremony to increment this counter with the appropriate labels.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of completed passkey ceremonies by kind and result",
		},
		[]string{LabelCeremony, LabelResult},
	)

	// HTTPRequestsTotal counts HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks HTTP request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// SessionsActive tracks the number of live authenticated sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions_active",
			Help:      "Number of live authenticated sessions",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default; the server disables them when the
	// config says so.
	enabled.Store(true)
}

// RecordCeremony records the outcome of a passkey ceremony.
//
// The ceremony label is one of "registration", "login", "add_credential";
// result is ResultSuccess or ResultFailure.
func RecordCeremony(ceremony, result string) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(ceremony, result).Inc()
}

// RecordHTTPRequest records an HTTP request with its status code and duration.
func RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// IncrementActiveSessions bumps the live-session gauge after a ceremony
// establishes a session.
func IncrementActiveSessions() {
	if !enabled.Load() {
		return
	}
	SessionsActive.Inc()
}

// DecrementActiveSessions drops the live-session gauge on logout.
func DecrementActiveSessions() {
	if !enabled.Load() {
		return
	}
	SessionsActive.Dec()
}

// Enable turns metrics collection on.
func Enable() {
	enabled.Store(true)
}

// Disable turns metrics collection off. Useful for testing or when the
// metrics endpoint is not served.
func Disable() {
	enabled.Store(false)
}

// IsEnabled reports whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
