package restream

import "github.com/restream-tools/restreamctl/internal/executor"

// Error kinds surfaced by the client. They are defined next to the
// executor so retry classification and the API layer share one set; the
// aliases keep callers on a single import.
type (
	// AuthenticationError means there is no usable session and the caller
	// has to log in again.
	AuthenticationError = executor.AuthenticationError

	// APIError is a non-2xx response from the service.
	APIError = executor.APIError

	// NetworkError wraps a transport failure before any response arrived.
	NetworkError = executor.NetworkError
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool { return executor.IsTransient(err) }
