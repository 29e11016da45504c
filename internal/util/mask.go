package util

import "strings"

// MaskSecret shortens a credential to its first and last few characters so
// logs can correlate keys without disclosing them.
func MaskSecret(secret string) string {
	if len(secret) > 8 {
		return secret[:4] + "..." + secret[len(secret)-4:]
	} else if len(secret) > 4 {
		return secret[:2] + "..." + secret[len(secret)-2:]
	} else if len(secret) > 2 {
		return secret[:1] + "..." + secret[len(secret)-1:]
	}
	return secret
}

// MaskAuthorizationHeader masks an Authorization value while preserving the
// scheme prefix, e.g. "Bearer abcd...wxyz".
func MaskAuthorizationHeader(value string) string {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) < 2 {
		return MaskSecret(value)
	}
	return parts[0] + " " + MaskSecret(parts[1])
}

// MaskSensitiveHeaderValue masks header values that carry credentials.
// Authorization keeps its scheme prefix; anything whose name mentions a
// token, key, or secret is masked whole; other headers pass through.
func MaskSensitiveHeaderValue(key, value string) string {
	lowerKey := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.Contains(lowerKey, "authorization"):
		return MaskAuthorizationHeader(value)
	case strings.Contains(lowerKey, "api-key"),
		strings.Contains(lowerKey, "apikey"),
		strings.Contains(lowerKey, "token"),
		strings.Contains(lowerKey, "secret"):
		return MaskSecret(value)
	default:
		return value
	}
}

// MaskTokenQuery masks the accessToken query parameter in a URL string so
// monitor endpoints can be logged safely.
func MaskTokenQuery(raw string) string {
	idx := strings.Index(raw, "accessToken=")
	if idx < 0 {
		return raw
	}
	start := idx + len("accessToken=")
	end := strings.IndexByte(raw[start:], '&')
	if end < 0 {
		return raw[:start] + MaskSecret(raw[start:])
	}
	return raw[:start] + MaskSecret(raw[start:start+end]) + raw[start+end:]
}
