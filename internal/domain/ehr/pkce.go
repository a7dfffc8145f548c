package ehr

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	codeVerifierBytes = 32
	stateTokenBytes   = 16
)

// GenerateCodeVerifier produces a fresh PKCE code verifier: 32 random bytes,
// base64url-encoded without padding. Verifiers are single-use secrets.
func GenerateCodeVerifier() (string, error) {
	b := make([]byte, codeVerifierBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DeriveCodeChallenge computes the S256 challenge for a verifier: the SHA-256
// digest of the verifier's bytes, base64url-encoded without padding.
func DeriveCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateStateToken mints the anti-CSRF state round-tripped through the
// authorization redirect. 128 bits of entropy makes reuse across sessions
// cryptographically improbable.
func GenerateStateToken() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
