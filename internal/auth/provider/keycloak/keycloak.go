package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"identity-service/internal/auth"
	"identity-service/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const providerName = "keycloak"

// Provider implements OAuth + OIDC authentication against Keycloak.
// It returns assertion facts only; no account/session decisions are made here.
type Provider struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
}

// New initializes a Keycloak OIDC provider using discovery.
// issuer must be the realm issuer URL, e.g.
// http://keycloak:8080/realms/identity. publicBaseURL is the browser-facing
// Keycloak origin used for the authorization redirect.
func New(
	ctx context.Context,
	issuer string,
	clientID string,
	redirectURL string,
	publicBaseURL string,
) (*Provider, error) {

	if issuer == "" || clientID == "" || redirectURL == "" || publicBaseURL == "" {
		return nil, errors.New("keycloak oauth config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init keycloak oidc provider: %w", err)
	}

	verifier := oidcProvider.Verifier(&oidc.Config{
		ClientID: clientID,
	})

	ep := oidcProvider.Endpoint()
	authURL, err := publicAuthURL(issuer, publicBaseURL)
	if err != nil {
		return nil, err
	}
	ep.AuthURL = authURL

	oauthCfg := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Endpoint:    ep,
		Scopes: []string{
			oidc.ScopeOpenID,
			"email",
			"profile",
		},
	}

	return &Provider{
		oauthConfig: oauthCfg,
		verifier:    verifier,
	}, nil
}

// publicAuthURL rebases the realm's authorization endpoint onto the public origin.
func publicAuthURL(issuer, publicBaseURL string) (string, error) {
	u, err := url.Parse(issuer)
	if err != nil || u.Path == "" {
		return "", fmt.Errorf("keycloak issuer %q has no realm path", issuer)
	}
	return strings.TrimRight(publicBaseURL, "/") + strings.TrimRight(u.Path, "/") + "/protocol/openid-connect/auth", nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return providerName
}

// AuthCodeURL builds the OAuth authorization URL with PKCE parameters.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode exchanges the authorization code and returns the assertion.
// This method MUST NOT create accounts, sessions, or perform linking logic.
func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*auth.Assertion, error) {

	token, err := p.oauthConfig.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		logger.Error("keycloak token exchange failed", map[string]any{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("keycloak token exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("keycloak did not return id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		logger.Error("keycloak id_token verification failed", map[string]any{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("keycloak id_token verification failed: %w", err)
	}

	var claims struct {
		Subject           string `json:"sub"`
		Email             string `json:"email"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
		Picture           string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("keycloak id_token claims parse failed: %w", err)
	}

	extra := map[string]any{}
	if err := idToken.Claims(&extra); err != nil {
		return nil, fmt.Errorf("keycloak id_token claims parse failed: %w", err)
	}

	if claims.Subject == "" || claims.Email == "" {
		return nil, errors.New("keycloak id_token missing required claims")
	}

	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}

	a := &auth.Assertion{
		Provider:  providerName,
		UID:       claims.Subject,
		Email:     claims.Email,
		Name:      name,
		AvatarURL: claims.Picture,
		Extra:     extra,
	}

	logger.Info("keycloak oidc verified", map[string]any{
		"issuer":             idToken.Issuer,
		"subject_present":    a.UID != "",
		"email_present":      a.Email != "",
		"email_verified":     a.ExtraFlag("email_verified"),
		"preferred_username": claims.PreferredUsername,
		"audience":           idToken.Audience,
		"expiry_unix":        idToken.Expiry.Unix(),
	})

	return a, nil
}
