package inbox

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrValidation is matched by every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError rejects a structurally malformed Criteria, Rule or Condition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RemoteError is a mailbox API failure. It is recoverable at the action level.
type RemoteError struct {
	Op     string
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same call may succeed.
func (e *RemoteError) Temporary() bool {
	switch {
	case e.Status == http.StatusTooManyRequests:
		return true
	case e.Status >= http.StatusInternalServerError:
		return true
	case e.Status == 0:
		// transport level failure, no response
		return true
	default:
		return false
	}
}

// AuthError means the credentials are no longer accepted and the user has
// to re-authenticate. Retrying does not help.
type AuthError struct {
	RemoteError
}

func (e *AuthError) Error() string {
	return "re-authentication required: " + e.RemoteError.Error()
}

func (e *AuthError) Unwrap() error { return &e.RemoteError }

// Temporary is always false for auth failures.
func (e *AuthError) Temporary() bool { return false }

// IsAuth reports whether err carries an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTemporary reports whether err carries a retryable RemoteError.
func IsTemporary(err error) bool {
	if IsAuth(err) {
		return false
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Temporary()
	}
	return false
}
