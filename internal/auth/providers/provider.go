package providers

import (
	"context"
	"net/http"
)

// BeginAuthRequest captures contextual information required to begin an external auth flow.
type BeginAuthRequest struct {
	State string
	Nonce string
}

// BeginAuthResponse contains the redirect information required to continue the external auth flow.
type BeginAuthResponse struct {
	RedirectURL string
	State       string
}

// CallbackRequest captures the raw HTTP details posted by an external provider.
type CallbackRequest struct {
	State          string
	ExpectedNonce  string
	RawHTTPRequest *http.Request
}

// Identity represents the verified claims returned from an external
// authentication provider. Subject is the provider-scoped stable id.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
}

// Provider defines the behaviour required for an interactive external authentication provider.
type Provider interface {
	Begin(ctx context.Context, req BeginAuthRequest) (*BeginAuthResponse, error)
	Callback(ctx context.Context, req CallbackRequest) (*Identity, error)
}
