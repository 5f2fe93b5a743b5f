package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neuralninja/authd/pkg/crypto"
)

var (
	// ErrStateExpired signals the callback arrived after the state lifetime elapsed.
	ErrStateExpired = errors.New("oauth state: expired")
	// ErrStateInvalid signals the state string could not be authenticated or parsed.
	ErrStateInvalid = errors.New("oauth state: invalid")
)

// StateCodec encodes and decodes the opaque state parameter carried through
// external login round trips. Payloads are AES-GCM encrypted so the callback
// can trust the nonce and redirect targets without server-side storage.
type StateCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// StatePayload captures what the callback needs to validate the response and
// resume the login flow.
type StatePayload struct {
	Provider  string    `json:"p"`
	Nonce     string    `json:"n"`
	ReturnURL string    `json:"r"`
	ErrorURL  string    `json:"e"`
	IssuedAt  time.Time `json:"iat"`
}

// NewStateCodec constructs a StateCodec from a symmetric key and state lifetime.
func NewStateCodec(key []byte, ttl time.Duration, now func() time.Time) (*StateCodec, error) {
	length := len(key)
	if length != 16 && length != 24 && length != 32 {
		return nil, fmt.Errorf("oauth state: key must be 16, 24, or 32 bytes, got %d", length)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &StateCodec{
		key: key,
		ttl: ttl,
		now: now,
	}, nil
}

// Encode encrypts the payload into a compact state string.
func (c *StateCodec) Encode(payload StatePayload) (string, error) {
	payload.Provider = strings.ToLower(strings.TrimSpace(payload.Provider))
	if payload.Provider == "" {
		return "", errors.New("oauth state: provider is required")
	}
	if strings.TrimSpace(payload.Nonce) == "" {
		return "", errors.New("oauth state: nonce is required")
	}
	payload.IssuedAt = c.now().UTC()

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("oauth state: marshal payload: %w", err)
	}

	encoded, err := crypto.Encrypt(raw, c.key)
	if err != nil {
		return "", fmt.Errorf("oauth state: encrypt payload: %w", err)
	}

	return encoded, nil
}

// Decode decrypts and validates a state string, enforcing expiry.
func (c *StateCodec) Decode(token string) (StatePayload, error) {
	var payload StatePayload
	if strings.TrimSpace(token) == "" {
		return payload, ErrStateInvalid
	}

	raw, err := crypto.Decrypt(token, c.key)
	if err != nil {
		return payload, ErrStateInvalid
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, ErrStateInvalid
	}

	if payload.Provider == "" || payload.Nonce == "" || payload.IssuedAt.IsZero() {
		return payload, ErrStateInvalid
	}

	if c.now().UTC().After(payload.IssuedAt.Add(c.ttl)) {
		return payload, ErrStateExpired
	}

	return payload, nil
}
