package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittosite/internal/logger"
	"github.com/marmos91/dittosite/pkg/identity"
	"github.com/marmos91/dittosite/pkg/metrics"
	"github.com/marmos91/dittosite/pkg/registry"
)

// InitializeRegistry creates a fully configured Registry from the provided configuration.
//
// This function orchestrates the complete initialization process:
//  1. Creates the cache store and registers it as registry.StoreCache
//  2. Creates the remote client bound to the author's account
//  3. Creates the identity manager (login provider plus author token store)
//
// On failure, anything already opened is closed.
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	reg, err := config.InitializeRegistry(ctx, cfg)
//	if err != nil {
//	    log.Fatalf("Failed to initialize registry: %v", err)
//	}
func InitializeRegistry(ctx context.Context, cfg *Config) (*registry.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	logger.Debug("Initializing registry from configuration")

	reg := registry.NewRegistry()

	// ========================================================================
	// Step 1: Cache store
	// ========================================================================

	store, err := CreateCacheStore(ctx, &cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache store: %w", err)
	}
	if err := reg.RegisterStore(registry.StoreCache, store); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to register cache store: %w", err)
	}
	logger.Debug("Cache store %q registered (type: %s)", registry.StoreCache, cfg.Cache.Type)

	// ========================================================================
	// Step 2: Remote
	// ========================================================================

	client, err := CreateRemote(ctx, &cfg.Remote, metrics.NewRemoteMetrics())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create remote: %w", err), reg.Close())
	}
	reg.SetRemote(client)

	// ========================================================================
	// Step 3: Identity
	// ========================================================================

	provider, err := createProvider(ctx, cfg)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create identity provider: %w", err), reg.Close())
	}
	reg.SetIdentity(identity.NewManager(cfg.Identity.AuthorUID, store, client, provider))

	logger.Info("Registry initialized: author=%s cache=%s remote=%s",
		cfg.Identity.AuthorUID, cfg.Cache.Type, cfg.Remote.Type)
	return reg, nil
}

// createProvider returns the OIDC provider when an issuer is configured.
// Without one, every login succeeds as the author.
func createProvider(ctx context.Context, cfg *Config) (identity.Provider, error) {
	oidc := cfg.Identity.OIDC
	if oidc.Issuer != "" {
		return identity.NewOIDCProvider(ctx, identity.OIDCConfig{
			IssuerURL:    oidc.Issuer,
			ClientID:     oidc.ClientID,
			ClientSecret: oidc.ClientSecret,
			RedirectURL:  oidc.RedirectURL,
		})
	}

	logger.Warn("No OIDC issuer configured: every login is accepted as author %q", cfg.Identity.AuthorUID)
	return &identity.LocalProvider{
		UID:         cfg.Identity.AuthorUID,
		DisplayName: cfg.Identity.AuthorUID,
	}, nil
}
