package auth

import (
	"errors"
	"fmt"
)

// Common authentication errors.
var (
	// ErrDeclined is returned by an authenticator that does not claim the
	// request; the chain proceeds to the next scheme.
	ErrDeclined = errors.New("request declined")
	// ErrUnauthenticated is the chain's terminal rejection: no scheme
	// claimed the request.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidCredentials indicates credentials were presented but did not
	// verify.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound indicates the presented identity is unknown to the
	// scheme.
	ErrUserNotFound = errors.New("user not found")
)

// SchemeError wraps an authentication error with the scheme and operation it
// came from.
type SchemeError struct {
	Scheme    string
	Operation string
	Err       error
}

func (e *SchemeError) Error() string {
	return fmt.Sprintf("auth %s: %s: %v", e.Scheme, e.Operation, e.Err)
}

func (e *SchemeError) Unwrap() error {
	return e.Err
}

// NewSchemeError creates a new SchemeError.
func NewSchemeError(scheme, op string, err error) *SchemeError {
	return &SchemeError{Scheme: scheme, Operation: op, Err: err}
}

// IsDeclined checks whether an error is a chain decline.
func IsDeclined(err error) bool {
	return errors.Is(err, ErrDeclined)
}
