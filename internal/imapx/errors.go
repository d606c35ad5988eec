package imapx

import (
	"errors"
	"fmt"
	"strings"
)

// AuthError indicates the server rejected the credentials, as opposed
// to a connectivity failure. Callers use it to prompt for a new
// password instead of suggesting a retry.
type AuthError struct {
	Account string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Account, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// isAuthFailure pattern-matches a login error against the responses
// real servers send for bad credentials.
func isAuthFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(strings.ToUpper(msg), "AUTHENTICATIONFAILED") ||
		strings.Contains(msg, "Invalid credentials")
}
