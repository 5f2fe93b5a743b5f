package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var stateKey = []byte("0123456789abcdef0123456789abcdef")

func TestStateCodecRoundTrip(t *testing.T) {
	codec, err := NewStateCodec(stateKey, time.Minute, nil)
	require.NoError(t, err)

	token, err := codec.Encode(StatePayload{
		Provider:  "google",
		Nonce:     "nonce-123",
		ReturnURL: "/dashboard",
		ErrorURL:  "/login?error=oauth",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	payload, err := codec.Decode(token)
	require.NoError(t, err)
	require.Equal(t, "google", payload.Provider)
	require.Equal(t, "nonce-123", payload.Nonce)
	require.Equal(t, "/dashboard", payload.ReturnURL)
	require.Equal(t, "/login?error=oauth", payload.ErrorURL)
	require.False(t, payload.IssuedAt.IsZero())
}

func TestStateCodecRequiresProviderAndNonce(t *testing.T) {
	codec, err := NewStateCodec(stateKey, time.Minute, nil)
	require.NoError(t, err)

	_, err = codec.Encode(StatePayload{Nonce: "n"})
	require.Error(t, err)

	_, err = codec.Encode(StatePayload{Provider: "google"})
	require.Error(t, err)
}

func TestStateCodecRejectsGarbage(t *testing.T) {
	codec, err := NewStateCodec(stateKey, time.Minute, nil)
	require.NoError(t, err)

	_, err = codec.Decode("")
	require.ErrorIs(t, err, ErrStateInvalid)

	_, err = codec.Decode("not-a-valid-token")
	require.ErrorIs(t, err, ErrStateInvalid)
}

func TestStateCodecExpired(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	codec, err := NewStateCodec(stateKey, time.Minute, func() time.Time {
		return current
	})
	require.NoError(t, err)

	token, err := codec.Encode(StatePayload{Provider: "google", Nonce: "n"})
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = codec.Decode(token)
	require.ErrorIs(t, err, ErrStateExpired)
}

func TestStateCodecRejectsShortKey(t *testing.T) {
	_, err := NewStateCodec([]byte("too-short"), time.Minute, nil)
	require.Error(t, err)
}
