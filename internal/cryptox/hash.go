// Package cryptox holds the one-way hashing primitives used by the server:
// digests of opaque credential secrets and bcrypt password hashes.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken returns the hex-encoded SHA-256 digest of an opaque token secret.
// Persistence layers store and index only this digest, never the secret.
func HashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
