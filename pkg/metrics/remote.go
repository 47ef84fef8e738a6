package metrics

import (
	"time"

	"github.com/marmos91/dittosite/pkg/remote"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// remoteMetrics is the Prometheus implementation of remote.Metrics.
//
// This implementation collects metrics about calls to the author's file store:
//   - Call counts by operation and outcome
//   - Call latency by operation
type remoteMetrics struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
}

// NewRemoteMetrics creates a new Prometheus-backed remote.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes remote.InstrumentedClient to use its no-op implementation.
func NewRemoteMetrics() remote.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &remoteMetrics{
		callsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosite_remote_calls_total",
				Help: "Total number of remote store calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		callDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittosite_remote_call_duration_seconds",
				Help: "Duration of remote store calls in seconds",
				Buckets: []float64{
					0.01,  // 10ms
					0.025, // 25ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
					10.0,  // 10s
				},
			},
			[]string{"operation"},
		),
	}
}

// ObserveCall implements remote.Metrics.ObserveCall
func (m *remoteMetrics) ObserveCall(op, outcome string, duration time.Duration) {
	m.callsTotal.WithLabelValues(op, outcome).Inc()
	m.callDuration.WithLabelValues(op).Observe(duration.Seconds())
}
