package emrcore

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle,
// coalescing, session expiry and asset decryption. It is safe for concurrent
// use. All methods are no-ops on a nil collector.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	attemptsTotal *prometheus.CounterVec
	retriesTotal  *prometheus.CounterVec

	coalescedTotal *prometheus.CounterVec

	slowRequestsTotal *prometheus.CounterVec

	unauthorizedTotal prometheus.Counter

	errorsTotal *prometheus.CounterVec

	decryptionsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	mc := &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emrcore_requests_total",
				Help: "Total number of API calls completed, after retries",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emrcore_request_duration_seconds",
				Help:    "Duration of API calls in seconds, including retries and backoff",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "emrcore_requests_in_flight",
				Help: "Number of API calls currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emrcore_attempts_total",
				Help: "Total number of HTTP attempts sent",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emrcore_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		coalescedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emrcore_coalesced_total",
				Help: "Total number of GET calls served by a shared in-flight or recent call",
			},
			[]string{"method", "endpoint"},
		),
		slowRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emrcore_slow_requests_total",
				Help: "Total number of attempts slower than the slow-request threshold",
			},
			[]string{"method", "endpoint"},
		),
		unauthorizedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "emrcore_session_expired_total",
				Help: "Total number of 401 responses that cleared the session token",
			},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emrcore_errors_total",
				Help: "Total number of errors returned to callers",
			},
			[]string{"type", "method", "endpoint"},
		),
		decryptionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emrcore_asset_decryptions_total",
				Help: "Total number of asset fetches by outcome and cipher backend",
			},
			[]string{"outcome", "backend"},
		),
	}
	mc.registry, _ = registry.(*prometheus.Registry)

	return mc
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordAttempt counts one HTTP attempt on the wire.
func (mc *MetricsCollector) RecordAttempt(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.attemptsTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordRetry increments retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordCoalescedHit counts a call that joined a shared call.
func (mc *MetricsCollector) RecordCoalescedHit(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.coalescedTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordSlowRequest counts an attempt over the slow threshold.
func (mc *MetricsCollector) RecordSlowRequest(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.slowRequestsTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordUnauthorized counts a session expiry.
func (mc *MetricsCollector) RecordUnauthorized() {
	if mc == nil {
		return
	}

	mc.unauthorizedTotal.Inc()
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}

// RecordDecryption counts an asset fetch outcome ("plain", "decrypted" or an
// error type) for the cipher backend in use.
func (mc *MetricsCollector) RecordDecryption(outcome, backend string) {
	if mc == nil {
		return
	}

	mc.decryptionsTotal.WithLabelValues(outcome, backend).Inc()
}

// GetRegistry exposes the underlying prometheus registry. It is nil when the
// collector was built on a registerer that is not a *prometheus.Registry.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}
