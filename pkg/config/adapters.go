package config

import (
	"github.com/marmos91/dittosite/pkg/adapter"
	"github.com/marmos91/dittosite/pkg/adapter/web"
	"github.com/marmos91/dittosite/pkg/cache"
)

// CreateAdapters creates the protocol adapters from the configuration.
//
// Parameters:
//   - cfg: The complete DittoSite configuration
//   - m: Metrics collectors from InitializeMetrics
//
// Returns:
//   - []adapter.Adapter: Adapters ready to be added to the server
func CreateAdapters(cfg *Config, m *MetricsResult) []adapter.Adapter {
	webAdapter := web.New(cfg.HTTP, m.WebMetrics,
		web.WithCacheOptions(cache.WithMetrics(m.CacheMetrics)),
	)

	return []adapter.Adapter{webAdapter}
}
