package auth

import "time"

// expirySkew is subtracted from the recorded expiry when deciding whether a
// token is still usable, covering clock drift and in-flight request latency.
const expirySkew = 5 * time.Minute

// TokenRecord is the outcome of a code exchange or refresh. A zero
// ExpiresAt means the server supplied no expiry and the token never counts
// as expired.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the access token needs replacing.
func (t *TokenRecord) Expired() bool {
	return t.ExpiredAt(time.Now())
}

// ExpiredAt reports whether the access token is expired relative to now,
// applying the safety skew: a token within five minutes of its recorded
// expiry is already treated as expired.
func (t *TokenRecord) ExpiredAt(now time.Time) bool {
	if t == nil || t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(expirySkew).Before(t.ExpiresAt)
}

// CanRefresh reports whether a refresh grant is possible.
func (t *TokenRecord) CanRefresh() bool {
	return t != nil && t.RefreshToken != ""
}
