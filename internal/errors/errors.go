package errors

import (
	"errors"
	"fmt"
)

// Common error types for the billing client
var (
	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrMalformedToken   = errors.New("malformed token")
	ErrTokenExpired     = errors.New("token expired")
	ErrMissingToken     = errors.New("login response did not contain a token")

	// Company context errors
	ErrNoCompany = errors.New("no company selected")

	// Storage errors
	ErrStorage  = errors.New("storage unavailable")
	ErrNotFound = errors.New("not found")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnsupported    = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
