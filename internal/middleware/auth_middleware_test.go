package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/neuralninja/authd/internal/auth"
)

func newTestJWT(t *testing.T) *iauth.JWTService {
	t.Helper()
	jwt, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret: "middleware-test-secret",
		Issuer: "authd-test",
	})
	require.NoError(t, err)
	return jwt
}

func newProtectedRouter(jwt *iauth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", Auth(jwt), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString(CtxUserIDKey),
			"email":   c.GetString(CtxEmailKey),
		})
	})
	return r
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	jwt := newTestJWT(t)
	r := newProtectedRouter(jwt)

	token, err := jwt.GenerateAccessToken("user-1", "user@example.com")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "user-1")
	require.Contains(t, w.Body.String(), "user@example.com")
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	r := newProtectedRouter(newTestJWT(t))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareRejectsMalformedToken(t *testing.T) {
	r := newProtectedRouter(newTestJWT(t))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
}

func TestAuthMiddlewareRejectsForeignSignature(t *testing.T) {
	other, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "other-secret", Issuer: "authd-test"})
	require.NoError(t, err)

	token, err := other.GenerateAccessToken("user-1", "user@example.com")
	require.NoError(t, err)

	r := newProtectedRouter(newTestJWT(t))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}
