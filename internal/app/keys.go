package app

import "crypto/sha256"

// deriveKey stretches an arbitrary secret into a 32-byte AES key so
// operators can configure a passphrase of any length.
func deriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}
