package handlers

import (
	stderrors "errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/neuralninja/authd/internal/auth"
	"github.com/neuralninja/authd/internal/auth/providers"
	"github.com/neuralninja/authd/internal/services"
	"github.com/neuralninja/authd/pkg/crypto"
	"github.com/neuralninja/authd/pkg/errors"
	"github.com/neuralninja/authd/pkg/logger"
	"github.com/neuralninja/authd/pkg/response"
)

const (
	defaultReturnURL = "/"
	defaultErrorURL  = "/signin?error=oauth_failed"
)

// OAuthHandler manages external identity login and callback flows. The
// provider is nil when no credentials are configured; flows then fail
// with an explicit error instead of a broken redirect.
type OAuthHandler struct {
	provider providers.Provider
	codec    *iauth.StateCodec
	bridge   *iauth.Bridge
	auth     *services.AuthService
	log      *zap.Logger
}

func NewOAuthHandler(provider providers.Provider, codec *iauth.StateCodec, bridge *iauth.Bridge, auth *services.AuthService) *OAuthHandler {
	return &OAuthHandler{
		provider: provider,
		codec:    codec,
		bridge:   bridge,
		auth:     auth,
		log:      logger.WithModule("oauth"),
	}
}

// Begin redirects the user to the provider's authorization endpoint.
//
// GET /api/auth/google
func (h *OAuthHandler) Begin(c *gin.Context) {
	if h.provider == nil {
		response.Error(c, errors.ErrOAuthNotConfigured)
		return
	}

	nonce, err := crypto.GenerateToken(32)
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	state, err := h.codec.Encode(iauth.StatePayload{
		Provider:  "google",
		Nonce:     nonce,
		ReturnURL: sanitizeRedirect(c.Query("redirect"), defaultReturnURL),
		ErrorURL:  sanitizeRedirect(c.Query("error_redirect"), defaultErrorURL),
	})
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	resp, err := h.provider.Begin(requestContext(c), providers.BeginAuthRequest{
		State: state,
		Nonce: nonce,
	})
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	c.Redirect(http.StatusFound, resp.RedirectURL)
}

// Callback consumes the provider redirect, links or provisions the
// account and hands the browser back to the application with a token.
// Failures redirect to the error URL captured at Begin so users land on
// a page instead of a JSON body.
//
// GET /api/auth/google/callback
func (h *OAuthHandler) Callback(c *gin.Context) {
	if h.provider == nil {
		response.Error(c, errors.ErrOAuthNotConfigured)
		return
	}

	payload, err := h.codec.Decode(c.Query("state"))
	if err != nil {
		h.redirectWithError(c, defaultErrorURL, "invalid_state", err)
		return
	}

	identity, err := h.provider.Callback(requestContext(c), providers.CallbackRequest{
		State:          c.Query("state"),
		ExpectedNonce:  payload.Nonce,
		RawHTTPRequest: c.Request,
	})
	if err != nil {
		h.redirectWithError(c, payload.ErrorURL, "oauth_failed", err)
		return
	}

	user, err := h.bridge.MaterializeUser(requestContext(c), *identity)
	if err != nil {
		reason := "oauth_failed"
		if stderrors.Is(err, errors.ErrExternalIdentityConflict) {
			reason = "account_conflict"
		}
		h.redirectWithError(c, payload.ErrorURL, reason, err)
		return
	}

	session, err := h.auth.IssueSession(user)
	if err != nil {
		h.redirectWithError(c, payload.ErrorURL, "oauth_failed", err)
		return
	}

	c.Redirect(http.StatusSeeOther, appendToken(payload.ReturnURL, session.Token))
}

func (h *OAuthHandler) redirectWithError(c *gin.Context, target, reason string, err error) {
	h.log.Warn("external login failed",
		zap.String("reason", reason),
		zap.Error(err))

	if target == "" {
		target = defaultErrorURL
	}
	parsed, parseErr := url.Parse(target)
	if parseErr != nil {
		parsed = &url.URL{Path: defaultErrorURL}
	}

	q := parsed.Query()
	q.Set("error", reason)
	parsed.RawQuery = q.Encode()
	c.Redirect(http.StatusSeeOther, parsed.String())
}

// sanitizeRedirect keeps redirects on-site; only absolute paths pass.
func sanitizeRedirect(input, fallback string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return fallback
	}
	if strings.ContainsAny(trimmed, "\r\n") {
		return fallback
	}
	if strings.HasPrefix(trimmed, "//") || !strings.HasPrefix(trimmed, "/") {
		return fallback
	}
	return trimmed
}

func appendToken(redirect, token string) string {
	parsed, err := url.Parse(redirect)
	if err != nil {
		parsed = &url.URL{Path: defaultReturnURL}
	}

	q := parsed.Query()
	q.Set("access_token", token)
	q.Set("token_type", "bearer")
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
