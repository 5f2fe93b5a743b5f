package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGoogleConfigConfigured(t *testing.T) {
	require.False(t, GoogleConfig{}.Configured())
	require.False(t, GoogleConfig{ClientID: "id"}.Configured())
	require.True(t, GoogleConfig{ClientID: "id", ClientSecret: "secret"}.Configured())
}

func TestNewGoogleProviderValidatesConfig(t *testing.T) {
	_, err := NewGoogleProvider(context.Background(), GoogleConfig{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "client id and secret")

	_, err = NewGoogleProvider(context.Background(), GoogleConfig{
		ClientID:     "id",
		ClientSecret: "secret",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "redirect url")
}

func TestIdentityFromClaims(t *testing.T) {
	identity := identityFromClaims("sub-1", map[string]any{
		"email":          "Ann@X.com",
		"email_verified": true,
		"name":           "Ann Example",
	})

	require.Equal(t, "google", identity.Provider)
	require.Equal(t, "sub-1", identity.Subject)
	require.Equal(t, "Ann@X.com", identity.Email)
	require.True(t, identity.EmailVerified)
	require.Equal(t, "Ann Example", identity.DisplayName)
}

func TestIdentityFromClaimsFallsBackToGivenName(t *testing.T) {
	identity := identityFromClaims("sub-2", map[string]any{
		"email":          "bob@x.com",
		"email_verified": "true",
		"given_name":     "Bob",
	})

	require.Equal(t, "Bob", identity.DisplayName)
	require.True(t, identity.EmailVerified)
}
