// Package cryptox implements password hashing for actor credentials.
//
// Passwords are never stored; the database keeps an argon2id verifier and a
// per-actor random salt. Comparison runs in constant time.
package cryptox

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters: one pass over 64 MiB with four lanes, 256-bit output.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyLen       = 32

	// SaltLen is the size of the random per-actor salt in bytes.
	SaltLen = 16
)

// NewSalt returns a fresh random salt for password hashing.
func NewSalt() ([]byte, error) {
	b := make([]byte, SaltLen)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// HashPassword derives the stored verifier for a password and salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, keyLen)
}

// VerifyPassword reports whether password matches the stored verifier.
// The comparison is constant-time.
func VerifyPassword(password, salt, verifier []byte) bool {
	h := HashPassword(password, salt)
	return subtle.ConstantTimeCompare(h, verifier) == 1
}
