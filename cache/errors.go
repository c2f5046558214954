package cache

import "errors"

// Sentinel errors for cache operations.
var (
	ErrNilOracle     = errors.New("cache: oracle is nil")
	ErrEmptyToken    = errors.New("cache: token is empty")
	ErrInvalidConfig = errors.New("cache: invalid config")
)
