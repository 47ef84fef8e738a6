// Package metrics holds the Prometheus collectors of the site: cache lookups,
// remote store calls and web requests, plus the server that exposes them.
//
// Collection is opt-in. Until InitRegistry runs, every constructor returns
// nil and the consuming package falls back to its own no-op sink
// (cache.WithMetrics, remote.NewInstrumentedClient and web.New all accept
// nil), so the hot paths never test for an enabled flag.
//
//	metrics.InitRegistry()
//	client := remote.NewInstrumentedClient(inner, metrics.NewRemoteMetrics())
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry enables collection. Later calls are no-ops.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the process registry, or nil while collection is
// disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	return registry != nil
}
