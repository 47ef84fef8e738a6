package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/dittosite/pkg/adapter/web"
)

// Config represents the complete DittoSite configuration.
//
// The configuration is organized into the following sections:
//   - Logging: Log level, format and destination
//   - Server: Server-wide settings (shutdown timeout, debug mode)
//   - HTTP: Web adapter settings (port, timeouts, sessions, rate limit)
//   - Cache: Key-value store backing the metadata cache and server state
//   - Remote: The cloud file store holding the site content
//   - Identity: Author account and login provider
//   - Metrics: Prometheus endpoint
//
// Configuration sources (in order of precedence, highest to lowest):
//  1. Environment variables (DITTOSITE_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// HTTP configures the web adapter
	HTTP web.Config `mapstructure:"http" yaml:"http"`

	// Cache specifies the key-value store configuration
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Remote specifies the content store configuration
	Remote RemoteConfig `mapstructure:"remote" yaml:"remote"`

	// Identity specifies the author account and login provider
	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`

	// Metrics contains metrics collection and exposure settings
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Debug exposes error details and the ?md=1 metadata dump, and renders
	// missing includes as visible errors.
	Debug bool `mapstructure:"debug" yaml:"debug"`

	// TimeMetric logs the duration of every request at INFO level.
	TimeMetric bool `mapstructure:"time_metric" yaml:"time_metric"`
}

// CacheConfig specifies the key-value store backing the cache layer.
//
// The same store holds cached directory metadata, temporary links and the
// author's access token. Each backend type has its own option map, decoded
// by the corresponding factory.
type CacheConfig struct {
	// Type specifies which backend to use
	// Valid values: memory, filesystem, badger, bbolt, s3
	Type string `mapstructure:"type" validate:"required,oneof=memory filesystem badger bbolt s3" yaml:"type"`

	// Memory contains in-memory store options (currently none)
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// Filesystem contains filesystem store options (path, compress)
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem,omitempty"`

	// Badger contains BadgerDB options (db_path, in_memory, block_cache_mb, index_cache_mb)
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`

	// Bbolt contains bbolt options (path, bucket, timeout)
	Bbolt map[string]any `mapstructure:"bbolt" yaml:"bbolt,omitempty"`

	// S3 contains managed cache service options (endpoint, region, bucket, ...)
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
}

// RemoteConfig specifies the cloud file store holding the site.
type RemoteConfig struct {
	// Type specifies which remote implementation to use
	// Valid values: memory, s3
	Type string `mapstructure:"type" validate:"required,oneof=memory s3" yaml:"type"`

	// AccountID is the account the remote is bound to. It becomes the
	// author account when identity.author_uid is empty.
	AccountID string `mapstructure:"account_id" yaml:"account_id"`

	// LinkTTL is the lifetime of temporary direct links
	LinkTTL time.Duration `mapstructure:"link_ttl" validate:"gte=0" yaml:"link_ttl"`

	// Memory contains in-memory remote options (seed_path)
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// S3 contains S3 remote options
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
}

// IdentityConfig specifies who the author is and how viewers log in.
type IdentityConfig struct {
	// AuthorUID is the account id of the site's author.
	// Default: remote.account_id
	AuthorUID string `mapstructure:"author_uid" yaml:"author_uid"`

	// OIDC configures an OpenID Connect provider. With no issuer every
	// login succeeds as the author (development only).
	OIDC OIDCConfig `mapstructure:"oidc" yaml:"oidc"`
}

// OIDCConfig holds OpenID Connect client settings.
type OIDCConfig struct {
	Issuer       string `mapstructure:"issuer" yaml:"issuer"`
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`

	// RedirectURL overrides the callback URL derived from the request
	RedirectURL string `mapstructure:"redirect_url" yaml:"redirect_url"`
}

// MetricsConfig controls Prometheus metrics collection and exposure.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment variables, and defaults.
//
// If configPath is empty, it looks for config.yaml in the default location
// ($XDG_CONFIG_HOME/dittosite or ~/.config/dittosite). A missing file is not
// an error: the defaults are used.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file (optional)
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables
	v.SetEnvPrefix("DITTOSITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the config file, ignoring "not found" errors.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is reported as a PathError
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses $XDG_CONFIG_HOME/dittosite if XDG_CONFIG_HOME is set,
// otherwise ~/.config/dittosite.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittosite")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/dittosite"
	}

	return filepath.Join(home, ".config", "dittosite")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
