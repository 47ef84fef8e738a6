package config

import (
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Identity.AuthorUID == "" {
		return fmt.Errorf("identity: author_uid is required (or set remote.account_id)")
	}

	if cfg.HTTP.PublicURL != "" {
		u, err := url.Parse(cfg.HTTP.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("http: public_url %q must include scheme and host", cfg.HTTP.PublicURL)
		}
	}

	oidc := cfg.Identity.OIDC
	if oidc.Issuer != "" && oidc.ClientID == "" {
		return fmt.Errorf("identity.oidc: client_id is required when issuer is set")
	}

	// The metrics endpoint cannot share the site's port
	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.HTTP.Port {
		return fmt.Errorf("metrics: port %d is already used by http", cfg.Metrics.Port)
	}

	if cfg.Remote.Type == "s3" {
		if _, ok := cfg.Remote.S3["bucket"]; !ok {
			return fmt.Errorf("remote.s3: bucket is required")
		}
	}
	if cfg.Cache.Type == "s3" {
		if _, ok := cfg.Cache.S3["bucket"]; !ok {
			return fmt.Errorf("cache.s3: bucket is required")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
