package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/marmos91/dittosite/internal/logger"
)

// OIDCConfig holds OpenID Connect provider configuration.
type OIDCConfig struct {
	IssuerURL    string // e.g. https://accounts.example.com
	ClientID     string
	ClientSecret string

	// RedirectURL overrides the callback URL derived from the request.
	RedirectURL string
}

// OIDCProvider logs viewers in with an OpenID Connect authorization code flow.
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
	oauth    oauth2.Config
}

// NewOIDCProvider discovers the issuer and returns a provider.
// Returns nil if IssuerURL is empty (OIDC disabled).
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider init: %w", err)
	}

	logger.Info("OIDC provider initialized: issuer=%s client_id=%s", cfg.IssuerURL, cfg.ClientID)

	return &OIDCProvider{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

func (p *OIDCProvider) config(callbackURL string) *oauth2.Config {
	cfg := p.oauth
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = callbackURL
	}
	return &cfg
}

func (p *OIDCProvider) AuthURL(state, callbackURL string) string {
	return p.config(callbackURL).AuthCodeURL(state)
}

func (p *OIDCProvider) Exchange(ctx context.Context, code, callbackURL string) (*Token, error) {
	tok, err := p.config(callbackURL).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oidc exchange: %w", err)
	}

	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return nil, fmt.Errorf("oidc exchange: no id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("oidc verify: %w", err)
	}

	var claims struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
		Name              string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse oidc claims: %w", err)
	}

	// Display name: prefer name, fall back to preferred_username, then email
	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}
	if name == "" {
		name = claims.Email
	}

	return &Token{
		UID:         claims.Sub,
		DisplayName: name,
		Secret:      tok.AccessToken,
		Expiry:      tok.Expiry,
	}, nil
}
