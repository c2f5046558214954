package auth

import (
	"context"
	"net/http"
)

// Authenticator validates request credentials and returns an identity.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines.
// - Errors: Authenticate returns (nil, error) when it could not reach a
//   verdict; a rejected credential is (AuthResult, nil) with
//   Authenticated=false.
type Authenticator interface {
	// Name returns a unique identifier for this authenticator.
	Name() string

	// Authenticate validates the credentials carried by header.
	Authenticate(ctx context.Context, header http.Header) (*AuthResult, error)
}

// AuthResult is the result of an authentication attempt.
type AuthResult struct {
	// Authenticated is true if authentication succeeded.
	Authenticated bool

	// Identity is the authenticated identity (only if Authenticated=true).
	Identity *Identity

	// Error is why authentication failed (only if Authenticated=false).
	Error error
}

// AuthSuccess creates a successful authentication result.
func AuthSuccess(identity *Identity) *AuthResult {
	return &AuthResult{Authenticated: true, Identity: identity}
}

// AuthFailure creates a failed authentication result.
func AuthFailure(err error) *AuthResult {
	return &AuthResult{Error: err}
}
