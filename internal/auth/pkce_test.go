package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
)

func TestGeneratePKCECodes(t *testing.T) {
	codes, err := GeneratePKCECodes()
	if err != nil {
		t.Fatalf("GeneratePKCECodes: %v", err)
	}

	if len(codes.CodeVerifier) < 43 {
		t.Errorf("verifier too short: %d chars, RFC 7636 requires at least 43", len(codes.CodeVerifier))
	}
	if strings.ContainsAny(codes.CodeVerifier, "=+/") {
		t.Errorf("verifier %q contains non URL-safe or padding characters", codes.CodeVerifier)
	}
	if strings.ContainsAny(codes.CodeChallenge, "=+/") {
		t.Errorf("challenge %q contains non URL-safe or padding characters", codes.CodeChallenge)
	}

	hash := sha256.Sum256([]byte(codes.CodeVerifier))
	want := base64.RawURLEncoding.EncodeToString(hash[:])
	if codes.CodeChallenge != want {
		t.Errorf("challenge = %q, want SHA256-derived %q", codes.CodeChallenge, want)
	}
}

func TestGeneratePKCECodesAreUnique(t *testing.T) {
	a, err := GeneratePKCECodes()
	if err != nil {
		t.Fatalf("GeneratePKCECodes: %v", err)
	}
	b, err := GeneratePKCECodes()
	if err != nil {
		t.Fatalf("GeneratePKCECodes: %v", err)
	}
	if a.CodeVerifier == b.CodeVerifier {
		t.Error("two generated verifiers are identical")
	}
}

func TestGenerateCodeChallengeKnownValue(t *testing.T) {
	// RFC 7636 appendix B example pair.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got := generateCodeChallenge(verifier); got != want {
		t.Errorf("generateCodeChallenge(%q) = %q, want %q", verifier, got, want)
	}
}

func TestGenerateState(t *testing.T) {
	state, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState: %v", err)
	}
	if len(state) != 32 {
		t.Errorf("state length = %d, want 32 hex characters", len(state))
	}
	if _, err = hex.DecodeString(state); err != nil {
		t.Errorf("state %q is not valid hex: %v", state, err)
	}

	other, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState: %v", err)
	}
	if state == other {
		t.Error("two generated states are identical")
	}
}
