package metrics

import (
	"github.com/marmos91/dittosite/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// cacheMetrics is the Prometheus implementation of cache.Metrics.
//
// It counts lookups per resource kind (content, link, thumbnail, listing)
// split by hit or miss, and store errors that forced a fall back to the
// remote.
type cacheMetrics struct {
	lookups     *prometheus.CounterVec
	storeErrors *prometheus.CounterVec
}

// NewCacheMetrics creates a new Prometheus-backed cache.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes the cache to use its built-in no-op implementation.
func NewCacheMetrics() cache.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &cacheMetrics{
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosite_cache_lookups_total",
				Help: "Total number of cache lookups by kind and result",
			},
			[]string{"kind", "result"},
		),
		storeErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosite_cache_store_errors_total",
				Help: "Total number of cache store failures by kind",
			},
			[]string{"kind"},
		),
	}
}

// ObserveLookup implements cache.Metrics.ObserveLookup
func (m *cacheMetrics) ObserveLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(kind, result).Inc()
}

// ObserveStoreError implements cache.Metrics.ObserveStoreError
func (m *cacheMetrics) ObserveStoreError(kind string) {
	m.storeErrors.WithLabelValues(kind).Inc()
}
