package apiclient

import (
	"errors"
	"fmt"
)

// Error values surfaced by the session client.
var (
	// ErrAuthToken reports an unrecoverable credential problem in a
	// server-render context, where there is no interactive session to sign
	// out of. The caller is expected to redirect to the sign-in entry point.
	ErrAuthToken = errors.New("error with authentication token")

	// ErrRefreshFailed reports that the single refresh attempt covering a
	// queued request failed. The original request was never replayed.
	ErrRefreshFailed = errors.New("credential refresh failed")

	// ErrSignedOut reports that the request hit an unrecoverable auth
	// condition and the client performed a global sign-out.
	ErrSignedOut = errors.New("session signed out")

	ErrInvalidClientConfig = errors.New("invalid client config")
)

// StatusError carries a non-2xx response the client does not recover from.
// The caller decides presentation.
type StatusError struct {
	StatusCode int
	Message    string
}

// Error returns the formatted error message.
func (statusError *StatusError) Error() string {
	if statusError.Message == "" {
		return fmt.Sprintf("request failed with status %d", statusError.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", statusError.StatusCode, statusError.Message)
}
