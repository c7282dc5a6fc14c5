// internal/apperrors/errors.go
package apperrors

import "errors"

// Sentinel errors shared by services and handlers. Services wrap these with
// %w so handlers can map them to HTTP status codes with errors.Is.
var (
	// ErrValidation covers missing or malformed input.
	ErrValidation = errors.New("invalid input")

	// ErrInvalidCredentials is returned for every authentication failure:
	// unknown email, wrong password, expired, tampered or superseded token.
	// The message is deliberately identical for all of them so callers
	// cannot probe which check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrConflict signals a uniqueness violation (username, email,
	// sku/manufacturer pair, identity hash).
	ErrConflict = errors.New("resource already exists")

	// ErrNotFound signals a record that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden signals a record that exists but is deactivated.
	ErrForbidden = errors.New("not active")
)
