// Package common defines shared constants and sentinel errors used across
// the store, the HTTP servers and the CLI. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrBlocked       = errors.New("stream is blocked")
	ErrAlreadyActive = errors.New("stream is already live")

	// Backend errors. ErrConflict means the persisted state changed between
	// read and write; the operation may be retried.
	ErrConflict = errors.New("state changed during request, please try again")

	// Validation errors.
	ErrValidation    = errors.New("validation error")
	ErrInvalidExpiry = errors.New("invalid auth expiry")

	// CSRF token errors.
	ErrInvalidToken = errors.New("invalid token")
)
