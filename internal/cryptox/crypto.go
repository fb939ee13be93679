// Package cryptox holds the hashing primitives used for credentials that must
// never be stored in recoverable form.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	SaltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// NewSalt returns SaltSize random bytes.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

// HashSecret derives an argon2id hash of secret with the given salt. Short
// secrets such as numeric one-time codes rely on the memory cost to make an
// offline guess of the whole space expensive.
func HashSecret(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifySecret reports whether secret hashes to want under salt, in constant time.
func VerifySecret(secret, salt, want []byte) bool {
	got := HashSecret(secret, salt)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// HashToken returns the hex sha256 digest of a high-entropy bearer token,
// which is the form API credentials are looked up by.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
