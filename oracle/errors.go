package oracle

import "errors"

// Sentinel errors returned by oracles in this package.
var (
	// Verification errors
	ErrTokenMalformed      = errors.New("oracle: token malformed")
	ErrTokenExpired        = errors.New("oracle: token expired")
	ErrTokenRevoked        = errors.New("oracle: token revoked")
	ErrTokenInactive       = errors.New("oracle: token inactive")
	ErrInvalidCredentials  = errors.New("oracle: invalid credentials")
	ErrKeyNotFound         = errors.New("oracle: signing key not found")
	ErrIntrospectionFailed = errors.New("oracle: introspection failed")

	// ErrKeySetUnavailable means the signing keys could not be loaded.
	// Unlike ErrKeyNotFound it says nothing about the token.
	ErrKeySetUnavailable = errors.New("oracle: signing key set unavailable")

	// Decorator errors
	ErrCircuitOpen = errors.New("oracle: circuit breaker is open")
	ErrTimeout     = errors.New("oracle: verification timed out")
	ErrOverloaded  = errors.New("oracle: too many verifications in flight")
)
