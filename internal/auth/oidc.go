package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCProvider signs users in with any OpenID Connect issuer.
type OIDCProvider struct {
	name     string
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDCProvider discovers issuer and configures the code flow for clientID.
func NewOIDCProvider(ctx context.Context, issuer, clientID, clientSecret, redirectURL string) (*OIDCProvider, error) {
	discovered, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc issuer %s: %w", issuer, err)
	}

	config := oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     discovered.Endpoint(),
		RedirectURL:  redirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}
	return NewOIDCProviderWithVerifier("oidc", config, discovered.Verifier(&oidc.Config{ClientID: clientID})), nil
}

// NewOIDCProviderWithVerifier builds a provider from an explicit endpoint and verifier.
func NewOIDCProviderWithVerifier(name string, config oauth2.Config, verifier *oidc.IDTokenVerifier) *OIDCProvider {
	return &OIDCProvider{name: name, config: config, verifier: verifier}
}

func (p *OIDCProvider) Name() string { return p.name }

func (p *OIDCProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Verify exchanges the code and verifies the returned id_token.
func (p *OIDCProvider) Verify(ctx context.Context, code string) (ExternalIdentity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return ExternalIdentity{}, fmt.Errorf("%w: exchange code: %v", ErrProviderRejected, err)
	}

	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return ExternalIdentity{}, fmt.Errorf("%w: no id_token in response", ErrProviderRejected)
	}

	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return ExternalIdentity{}, fmt.Errorf("%w: verify id_token: %v", ErrProviderRejected, err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified *bool  `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return ExternalIdentity{}, fmt.Errorf("%w: decode claims: %v", ErrProviderRejected, err)
	}
	if claims.Email == "" {
		return ExternalIdentity{}, fmt.Errorf("%w: id_token has no email", ErrProviderRejected)
	}
	// Issuers that omit the claim are trusted for their email.
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return ExternalIdentity{}, fmt.Errorf("%w: email %s is not verified", ErrProviderRejected, claims.Email)
	}

	return ExternalIdentity{Subject: idToken.Subject, Email: claims.Email}, nil
}
