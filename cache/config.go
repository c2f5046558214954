package cache

import (
	"fmt"
	"time"
)

const (
	// DefaultMaxEntries is the default bound on cached tokens.
	DefaultMaxEntries = 20000

	// DefaultMaxBytes is the default bound on approximate cache size (50MB).
	DefaultMaxBytes = 50_000_000

	// DefaultExpiryBuffer is subtracted from a token's expiry to get the
	// point after which the cache stops serving it.
	DefaultExpiryBuffer = 5 * time.Minute
)

// Config bounds the cache. Zero fields take their defaults.
type Config struct {
	// MaxEntries is the maximum number of cached tokens.
	// Default: 20000
	MaxEntries int `yaml:"max_entries"`

	// MaxBytes is the maximum approximate size of all entries, see Sizer.
	// Default: 50,000,000
	MaxBytes int64 `yaml:"max_bytes"`

	// ExpiryBuffer is how long before the token's own expiry the cache
	// stops serving it.
	// Default: 5 minutes
	ExpiryBuffer time.Duration `yaml:"expiry_buffer"`

	// SweepInterval is the period of the background sweep.
	// Default: ExpiryBuffer
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns the default cache bounds.
func DefaultConfig() Config {
	return Config{
		MaxEntries:    DefaultMaxEntries,
		MaxBytes:      DefaultMaxBytes,
		ExpiryBuffer:  DefaultExpiryBuffer,
		SweepInterval: DefaultExpiryBuffer,
	}
}

// Validate rejects negative bounds.
func (c Config) Validate() error {
	if c.MaxEntries < 0 {
		return fmt.Errorf("%w: max entries must not be negative, got %d", ErrInvalidConfig, c.MaxEntries)
	}
	if c.MaxBytes < 0 {
		return fmt.Errorf("%w: max bytes must not be negative, got %d", ErrInvalidConfig, c.MaxBytes)
	}
	if c.ExpiryBuffer < 0 {
		return fmt.Errorf("%w: expiry buffer must not be negative, got %s", ErrInvalidConfig, c.ExpiryBuffer)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("%w: sweep interval must not be negative, got %s", ErrInvalidConfig, c.SweepInterval)
	}
	return nil
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.ExpiryBuffer == 0 {
		c.ExpiryBuffer = DefaultExpiryBuffer
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = c.ExpiryBuffer
	}
	return c
}
