package keyauth

import (
	"fmt"

	"github.com/layer-3/keyauth/core"
)

// APIError is a non-2xx response from a keyauth server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("keyauth: %d %s", e.StatusCode, e.Message)
}

// Unwrap maps the server message back to the core sentinel so callers can
// use errors.Is(err, core.ErrNotAuthorized) and friends.
func (e *APIError) Unwrap() error {
	return sentinels[e.Message]
}

var sentinels = func() map[string]error {
	m := make(map[string]error)
	for _, err := range []error{
		core.ErrMissingUsername,
		core.ErrMissingFields,
		core.ErrInvalidUserID,
		core.ErrChallengeNotFound,
		core.ErrInvalidSignature,
		core.ErrNotAuthorized,
		core.ErrOracleUnavailable,
		core.ErrEventsUnavailable,
		core.ErrInvalidToken,
	} {
		m[err.Error()] = err
	}
	// middleware wording
	m["token expired"] = core.ErrTokenExpired
	m["missing token"] = core.ErrInvalidToken
	return m
}()
