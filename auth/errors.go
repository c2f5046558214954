package auth

import "errors"

// Sentinel errors for authentication.
var (
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUnavailable        = errors.New("auth: identity provider unavailable")
)
