package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/neuralninja/authd/internal/auth"
	"github.com/neuralninja/authd/internal/auth/providers"
	"github.com/neuralninja/authd/internal/database/testutil"
	"github.com/neuralninja/authd/internal/services"
)

type stubProvider struct {
	identity *providers.Identity
	err      error
}

func (p *stubProvider) Begin(_ context.Context, req providers.BeginAuthRequest) (*providers.BeginAuthResponse, error) {
	return &providers.BeginAuthResponse{
		RedirectURL: "https://provider.example.com/auth?state=" + url.QueryEscape(req.State),
		State:       req.State,
	}, nil
}

func (p *stubProvider) Callback(context.Context, providers.CallbackRequest) (*providers.Identity, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.identity, nil
}

func newOAuthRouter(t *testing.T, provider providers.Provider) (*gin.Engine, *iauth.StateCodec, *services.UserService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)
	users, err := services.NewUserService(db)
	require.NoError(t, err)
	otps, err := services.NewOTPService(db)
	require.NoError(t, err)

	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "oauth-test-secret", Issuer: "authd-test"})
	require.NoError(t, err)
	auth, err := services.NewAuthService(users, otps, jwt)
	require.NoError(t, err)

	codec, err := iauth.NewStateCodec([]byte("0123456789abcdef0123456789abcdef"), 10*time.Minute, nil)
	require.NoError(t, err)
	bridge, err := iauth.NewBridge(users)
	require.NoError(t, err)

	handler := NewOAuthHandler(provider, codec, bridge, auth)

	r := gin.New()
	r.GET("/api/auth/google", handler.Begin)
	r.GET("/api/auth/google/callback", handler.Callback)
	return r, codec, users
}

func encodeState(t *testing.T, codec *iauth.StateCodec) string {
	t.Helper()
	state, err := codec.Encode(iauth.StatePayload{
		Provider:  "google",
		Nonce:     "nonce-abc",
		ReturnURL: "/welcome",
		ErrorURL:  "/signin?error=oauth_failed",
	})
	require.NoError(t, err)
	return state
}

func TestOAuthBeginRedirectsToProvider(t *testing.T) {
	r, _, _ := newOAuthRouter(t, &stubProvider{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/google?redirect=/welcome", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")
	require.Contains(t, location, "https://provider.example.com/auth?state=")
}

func TestOAuthCallbackIssuesTokenRedirect(t *testing.T) {
	provider := &stubProvider{identity: &providers.Identity{
		Provider:    "google",
		Subject:     "google-sub-1",
		Email:       "oauth@example.com",
		DisplayName: "OAuth User",
	}}
	r, codec, _ := newOAuthRouter(t, provider)

	state := encodeState(t, codec)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state="+url.QueryEscape(state), nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/welcome", location.Path)
	require.NotEmpty(t, location.Query().Get("access_token"))
	require.Equal(t, "bearer", location.Query().Get("token_type"))
}

func TestOAuthCallbackInvalidStateRedirectsWithError(t *testing.T) {
	r, _, _ := newOAuthRouter(t, &stubProvider{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state=garbage", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "invalid_state", location.Query().Get("error"))
}

func TestOAuthCallbackProviderFailureRedirectsWithError(t *testing.T) {
	r, codec, _ := newOAuthRouter(t, &stubProvider{err: errors.New("exchange failed")})

	state := encodeState(t, codec)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state="+url.QueryEscape(state), nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/signin", location.Path)
	require.Equal(t, "oauth_failed", location.Query().Get("error"))
}

func TestOAuthCallbackIdentityConflictRedirectsWithReason(t *testing.T) {
	provider := &stubProvider{identity: &providers.Identity{
		Provider: "google",
		Subject:  "google-sub-new",
		Email:    "claimed@example.com",
	}}
	r, codec, users := newOAuthRouter(t, provider)

	// The email is already linked to a different provider subject.
	oldSubject := "google-sub-old"
	owner, err := users.Create(context.Background(), services.CreateUserInput{
		Email:       "claimed@example.com",
		DisplayName: "Claimed",
		ExternalID:  &oldSubject,
		Verified:    true,
	})
	require.NoError(t, err)
	require.True(t, owner.HasExternalIdentity())

	state := encodeState(t, codec)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state="+url.QueryEscape(state), nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/signin", location.Path)
	require.Equal(t, "account_conflict", location.Query().Get("error"))
}

func TestSanitizeRedirect(t *testing.T) {
	require.Equal(t, "/welcome", sanitizeRedirect("/welcome", "/"))
	require.Equal(t, "/", sanitizeRedirect("https://evil.example.com", "/"))
	require.Equal(t, "/", sanitizeRedirect("//evil.example.com", "/"))
	require.Equal(t, "/", sanitizeRedirect("", "/"))
	require.Equal(t, "/", sanitizeRedirect("/bad\r\nLocation: x", "/"))
}
