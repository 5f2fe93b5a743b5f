package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// GoogleIssuer is the OIDC discovery issuer for Google accounts.
const GoogleIssuer = "https://accounts.google.com"

// GoogleConfig carries the client registration for the Google provider.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Issuer       string // overridable for tests
	Timeout      time.Duration
}

// Configured reports whether a client registration is present.
func (c GoogleConfig) Configured() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

type googleProvider struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	timeout     time.Duration
}

// NewGoogleProvider runs OIDC discovery against the issuer and returns a
// Provider that validates Google ID tokens.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (Provider, error) {
	if !cfg.Configured() {
		return nil, errors.New("google provider: client id and secret are required")
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, errors.New("google provider: redirect url is required")
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = GoogleIssuer
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if ctx == nil {
		ctx = context.Background()
	}
	discoveryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	discovered, err := oidc.NewProvider(discoveryCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("google provider: discovery failed: %w", err)
	}

	return &googleProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     discovered.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		timeout:  timeout,
	}, nil
}

func (p *googleProvider) Begin(ctx context.Context, req BeginAuthRequest) (*BeginAuthResponse, error) {
	if strings.TrimSpace(req.State) == "" {
		return nil, errors.New("google provider: state is required")
	}
	if strings.TrimSpace(req.Nonce) == "" {
		return nil, errors.New("google provider: nonce is required")
	}

	url := p.oauthConfig.AuthCodeURL(req.State, oauth2.SetAuthURLParam("nonce", req.Nonce))
	return &BeginAuthResponse{RedirectURL: url, State: req.State}, nil
}

func (p *googleProvider) Callback(ctx context.Context, req CallbackRequest) (*Identity, error) {
	if req.RawHTTPRequest == nil {
		return nil, errors.New("google provider: request is required")
	}

	query := req.RawHTTPRequest.URL.Query()
	if errStr := query.Get("error"); errStr != "" {
		return nil, fmt.Errorf("google provider: authorization error: %s", errStr)
	}
	code := query.Get("code")
	if code == "" {
		return nil, errors.New("google provider: authorization code missing")
	}

	tokenCtx := ctx
	if tokenCtx == nil {
		tokenCtx = context.Background()
	}
	tokenCtx, cancel := context.WithTimeout(tokenCtx, p.timeout)
	defer cancel()

	token, err := p.oauthConfig.Exchange(tokenCtx, code)
	if err != nil {
		return nil, fmt.Errorf("google provider: exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("google provider: id token missing")
	}

	idToken, err := p.verifier.Verify(tokenCtx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("google provider: verify id token: %w", err)
	}
	if req.ExpectedNonce != "" && idToken.Nonce != req.ExpectedNonce {
		return nil, errors.New("google provider: nonce mismatch")
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("google provider: decode claims: %w", err)
	}

	return identityFromClaims(idToken.Subject, claims), nil
}

func identityFromClaims(subject string, claims map[string]any) *Identity {
	identity := &Identity{
		Provider:      "google",
		Subject:       subject,
		Email:         stringValue(claims, "email"),
		EmailVerified: boolValue(claims, "email_verified"),
		DisplayName:   stringValue(claims, "name"),
	}
	if identity.DisplayName == "" {
		identity.DisplayName = stringValue(claims, "given_name")
	}
	return identity
}

func stringValue(claims map[string]any, key string) string {
	if v, ok := claims[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func boolValue(claims map[string]any, key string) bool {
	if v, ok := claims[key]; ok {
		switch val := v.(type) {
		case bool:
			return val
		case string:
			return strings.EqualFold(val, "true")
		}
	}
	return false
}
