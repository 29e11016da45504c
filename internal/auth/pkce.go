// Package auth implements the OAuth2 authorization code flow with PKCE
// against the Restream authorization service: challenge generation, the
// code exchange and refresh grants, the token record lifecycle, and the
// loopback callback listener used during interactive login.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// PKCECodes holds a verifier/challenge pair for one authorization attempt.
// A pair is single-use: it is discarded after the code exchange completes,
// successfully or not, and never reused across attempts.
type PKCECodes struct {
	CodeVerifier  string `json:"code_verifier"`
	CodeChallenge string `json:"code_challenge"`
}

// GeneratePKCECodes generates a new pair of PKCE (Proof Key for Code
// Exchange) codes as specified in RFC 7636. The verifier is a
// cryptographically random string and the challenge is its SHA256 hash,
// both URL-safe base64 encoded without padding.
func GeneratePKCECodes() (*PKCECodes, error) {
	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("generate code verifier: %w", err)
	}

	return &PKCECodes{
		CodeVerifier:  codeVerifier,
		CodeChallenge: generateCodeChallenge(codeVerifier),
	}, nil
}

// generateCodeVerifier creates the high-entropy code verifier. 32 random
// bytes encode to the 43 URL-safe characters RFC 7636 sets as the minimum
// verifier length.
func generateCodeVerifier() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("read verifier entropy: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// generateCodeChallenge derives the S256 challenge from a code verifier:
// the SHA256 hash of the verifier's bytes, URL-safe base64 encoded without
// padding.
func generateCodeChallenge(codeVerifier string) string {
	hash := sha256.Sum256([]byte(codeVerifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateState returns a random state parameter binding the authorization
// redirect back to this login attempt.
func GenerateState() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("read state entropy: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
