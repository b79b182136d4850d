package transport

import "errors"

// Errors surfaced by the transport layer. Service-level error codes from the
// M2M response envelope and HTTP status codes both map onto these sentinels
// so callers can classify failures with errors.Is.
var (
	// ErrAuth covers AUTH_INVALID and AUTH_KEY_INVALID: the credentials or
	// the auth token were rejected. Never retried.
	ErrAuth = errors.New("transport: authentication failed")

	// ErrUnauthorized covers AUTH_UNAUTHORIZED: the account lacks access to
	// the requested endpoint.
	ErrUnauthorized = errors.New("transport: account not authorized for endpoint")

	// ErrRateLimit covers RATE_LIMIT: the service throttled the request.
	ErrRateLimit = errors.New("transport: rate limited")

	// ErrDatasetAuth covers DATASET_AUTH: the dataset is not available to
	// the account.
	ErrDatasetAuth = errors.New("transport: dataset not authorized")

	// ErrService covers any other non-empty errorCode in the envelope.
	ErrService = errors.New("transport: service error")

	// ErrServer is returned for HTTP 5xx responses.
	ErrServer = errors.New("transport: server error")

	// ErrNetwork wraps connectivity and timeout failures.
	ErrNetwork = errors.New("transport: network error")

	ErrNotFound  = errors.New("transport: resource not found")
	ErrForbidden = errors.New("transport: access forbidden")
)

// IsTransient reports whether err is worth retrying: connectivity failures,
// server-side 5xx faults, and rate limiting. Authentication and
// authorization failures are always permanent.
func IsTransient(err error) bool {
	switch {
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrServer), errors.Is(err, ErrRateLimit):
		return true
	default:
		return false
	}
}

// codeToError maps an M2M errorCode to a sentinel error, or nil for codes
// that do not indicate a failure.
func codeToError(code string) error {
	switch code {
	case "":
		return nil
	case "AUTH_INVALID", "AUTH_KEY_INVALID":
		return ErrAuth
	case "AUTH_UNAUTHORIZED":
		return ErrUnauthorized
	case "RATE_LIMIT":
		return ErrRateLimit
	case "DATASET_AUTH":
		return ErrDatasetAuth
	default:
		return ErrService
	}
}
