package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittosite/pkg/adapter/web"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are handled by the store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyHTTPDefaults(&cfg.HTTP, &cfg.Server)
	applyCacheDefaults(&cfg.Cache)
	applyRemoteDefaults(&cfg.Remote)
	applyIdentityDefaults(&cfg.Identity, &cfg.Remote)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyHTTPDefaults sets web adapter defaults. The server-wide switches are
// copied into the adapter config since they are not part of the http section.
func applyHTTPDefaults(cfg *web.Config, server *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = server.ShutdownTimeout
	}
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = "dittosite_session"
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 2 * cfg.RateLimit.RequestsPerSecond
	}

	cfg.Debug = server.Debug
	cfg.TimeMetric = server.TimeMetric
}

// applyCacheDefaults sets cache store defaults.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	// Initialize maps if nil
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.Bbolt == nil {
		cfg.Bbolt = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	// Apply defaults for all backend types (for config file generation)
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = "/tmp/dittosite-cache"
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "/tmp/dittosite-badger"
	}
	if _, ok := cfg.Bbolt["path"]; !ok {
		cfg.Bbolt["path"] = "/tmp/dittosite-cache.db"
	}
}

// applyRemoteDefaults sets remote defaults.
func applyRemoteDefaults(cfg *RemoteConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.AccountID == "" {
		switch cfg.Type {
		case "memory":
			cfg.AccountID = "author"
		case "s3":
			cfg.AccountID = s3AccountID(cfg.S3)
		}
	}
	if cfg.LinkTTL == 0 {
		cfg.LinkTTL = 4 * time.Hour
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
}

// s3AccountID mirrors the account id the S3 remote derives from its bucket
// and key prefix, so the author defaults to the bucket owner.
func s3AccountID(options map[string]any) string {
	bucket, _ := options["bucket"].(string)
	if bucket == "" {
		return ""
	}
	prefix, _ := options["key_prefix"].(string)
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return "s3:" + bucket + "/" + prefix
}

// applyIdentityDefaults makes the remote's account the author unless one is
// named explicitly.
func applyIdentityDefaults(cfg *IdentityConfig, remote *RemoteConfig) {
	if cfg.AuthorUID == "" {
		cfg.AuthorUID = remote.AccountID
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
