package web

import (
	"fmt"
	"net/url"
	"time"
)

// RateLimitConfig bounds requests per client address.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client. 0 disables limiting.
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`

	// Burst is the number of requests a client may make at once.
	Burst uint `mapstructure:"burst" yaml:"burst"`
}

// Config holds configuration parameters for the web adapter.
//
// Default values (applied by New if zero):
//   - Port: 8080
//   - ReadTimeout: 30s
//   - WriteTimeout: 60s
//   - IdleTimeout: 2m
//   - ShutdownTimeout: 30s
//   - SessionCookie: "dittosite_session"
//   - SessionTTL: 30 days
//   - RateLimit.Burst: 2x RequestsPerSecond when limiting is enabled
type Config struct {
	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`

	// PublicURL is the externally visible base URL (scheme and host) used to
	// build the login callback. Empty derives it from each request.
	PublicURL string `mapstructure:"public_url" yaml:"public_url"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"min=0" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"min=0" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"min=0" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0" yaml:"shutdown_timeout"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`

	// SessionSecret signs session cookies. Empty generates a random secret
	// at startup, which logs everyone out on restart.
	SessionSecret string `mapstructure:"session_secret" yaml:"session_secret"`

	// SessionCookie is the cookie name carrying the session.
	SessionCookie string `mapstructure:"session_cookie" yaml:"session_cookie"`

	// SessionTTL is how long a session stays valid.
	SessionTTL time.Duration `mapstructure:"session_ttl" validate:"min=0" yaml:"session_ttl"`

	// SecureCookie marks the session cookie Secure (HTTPS only).
	SecureCookie bool `mapstructure:"secure_cookie" yaml:"secure_cookie"`

	// Debug exposes error details, missing includes and the ?md=1 metadata
	// dump. Set from server.debug.
	Debug bool `mapstructure:"-" yaml:"-"`

	// TimeMetric logs the duration of every request at INFO. Set from
	// server.time_metric.
	TimeMetric bool `mapstructure:"-" yaml:"-"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.SessionCookie == "" {
		c.SessionCookie = "dittosite_session"
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 30 * 24 * time.Hour
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 2 * c.RateLimit.RequestsPerSecond
	}
}

// validate checks the configuration after defaults are applied.
func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("invalid timeouts: must be >= 0")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.PublicURL != "" {
		u, err := url.Parse(c.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid public URL %q: need scheme and host", c.PublicURL)
		}
	}
	return nil
}
