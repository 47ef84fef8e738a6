package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WebMetrics provides observability for the web adapter.
//
// This interface is optional - if not provided to the web adapter, a no-op
// implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics := metrics.NewWebMetrics()
//	adapter := web.New(config, metrics)
//
//	// Without metrics (no-op)
//	adapter := web.New(config, nil)
type WebMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - route: "view", "update", "login", "login_cb" or "logout"
	//   - method: HTTP method
	//   - status: HTTP status written
	//   - duration: Time taken to process the request
	RecordRequest(route, method string, status int, duration time.Duration)

	// RecordRequestStart increments the in-flight request gauge.
	RecordRequestStart()

	// RecordRequestEnd decrements the in-flight request gauge.
	RecordRequestEnd()

	// RecordRateLimited counts a request rejected by the rate limiter.
	RecordRateLimited()

	// RecordLogin counts a login callback by outcome ("success" or "failure").
	RecordLogin(outcome string)
}

// webMetrics is the Prometheus implementation of WebMetrics.
type webMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	rateLimited      prometheus.Counter
	logins           *prometheus.CounterVec
}

// NewWebMetrics creates a new Prometheus-backed WebMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewWebMetrics() WebMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &webMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosite_http_requests_total",
				Help: "Total number of HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittosite_http_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.005, // 5ms
					0.01,  // 10ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
				},
			},
			[]string{"route"},
		),
		requestsInFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittosite_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),
		rateLimited: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittosite_http_rate_limited_total",
				Help: "Total number of HTTP requests rejected by the rate limiter",
			},
		),
		logins: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosite_logins_total",
				Help: "Total number of login callbacks by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *webMetrics) RecordRequest(route, method string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *webMetrics) RecordRequestStart() {
	m.requestsInFlight.Inc()
}

func (m *webMetrics) RecordRequestEnd() {
	m.requestsInFlight.Dec()
}

func (m *webMetrics) RecordRateLimited() {
	m.rateLimited.Inc()
}

func (m *webMetrics) RecordLogin(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}
