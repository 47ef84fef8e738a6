package config

import (
	"github.com/marmos91/dittosite/pkg/cache"
	"github.com/marmos91/dittosite/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// WebMetrics is the collector for the web adapter (nil if disabled)
	WebMetrics metrics.WebMetrics

	// CacheMetrics is the collector for per-request caches (nil if disabled)
	CacheMetrics cache.Metrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed collectors for the web adapter and cache
//
// If metrics are disabled every field is nil and components fall back to
// their no-op collectors.
//
// Must run before InitializeRegistry so the remote client is instrumented.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	// Initialize global Prometheus registry
	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port:            cfg.Metrics.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	return &MetricsResult{
		Server:       server,
		WebMetrics:   metrics.NewWebMetrics(),
		CacheMetrics: metrics.NewCacheMetrics(),
	}
}
