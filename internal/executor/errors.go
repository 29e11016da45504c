package executor

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthenticationError indicates missing or rejected credentials: an absent
// session, an OAuth endpoint rejection, or a refresh failure that cleared
// the stored session. Callers should treat it as a prompt to re-login.
type AuthenticationError struct {
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string {
	if e == nil || e.Message == "" {
		return "restream: authentication failed"
	}
	return "restream: " + e.Message
}

// Unwrap exposes the underlying cause for diagnostics.
func (e *AuthenticationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// APIError describes a non-2xx response from the API. It keeps the raw body
// so callers can surface server-side validation messages verbatim.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
	URL        string
}

func (e *APIError) Error() string {
	if e == nil {
		return "restream: api error"
	}
	if e.Message != "" {
		return fmt.Sprintf("restream: api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("restream: api error %d", e.StatusCode)
}

// Transient reports whether the status is worth retrying: rate limiting,
// request timeout, or any server-side failure.
func (e *APIError) Transient() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= http.StatusInternalServerError
}

// NetworkError wraps a transport-level failure that never produced an HTTP
// status: refused connections, timeouts, DNS resolution failures.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	if e == nil || e.Err == nil {
		return "restream: network error"
	}
	return fmt.Sprintf("restream: network error: %v", e.Err)
}

// Unwrap exposes the transport error for inspection with errors.As.
func (e *NetworkError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether err may succeed on retry: a transient API
// status or any transport-level failure.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
