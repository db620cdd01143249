package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidCredentials is the only failure login reports to users
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrSessionEnded is returned when an authorization failure could not be
	// recovered. The store has already been cleared and subscribers notified.
	ErrSessionEnded = errors.New("session ended")
)

// DefaultRegistrationMessage is shown when the backend gives no usable detail
const DefaultRegistrationMessage = "Registration failed. Please check your details."

// SessionEndedError carries why an unrecoverable authorization failure ended the session
type SessionEndedError struct {
	Reason EndReason
	Cause  error
}

func (e *SessionEndedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session ended (%s): %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("session ended (%s)", e.Reason)
}

func (e *SessionEndedError) Is(target error) bool {
	return target == ErrSessionEnded
}

func (e *SessionEndedError) Unwrap() error {
	return e.Cause
}

// LoginError hides backend detail behind ErrInvalidCredentials while keeping
// the cause available to errors.As / logs.
type LoginError struct {
	Cause error
}

func (e *LoginError) Error() string {
	return ErrInvalidCredentials.Error()
}

func (e *LoginError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrInvalidCredentials}
	}
	return []error{ErrInvalidCredentials, e.Cause}
}

// RegistrationError is the most specific validation message the backend gave
type RegistrationError struct {
	StatusCode int
	Message    string
	Cause      error
}

func (e *RegistrationError) Error() string {
	return e.Message
}

func (e *RegistrationError) Unwrap() error {
	return e.Cause
}

// APIError is a non-2xx response other than a recovered authorization failure.
// Body holds the raw response body for display.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsUnauthorized reports whether err is an authorization failure response
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
