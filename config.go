package x402

import (
	"fmt"
	"time"
)

// Config holds gate configuration.
type Config struct {
	// TTL is the validity window of issued invoices.
	TTL time.Duration

	// SweepInterval is how often Gate.Run garbage-collects expired
	// sessions. Sweeping is not required for correctness (expiry is
	// evaluated at every verification attempt) but keeps the session
	// registry bounded.
	SweepInterval time.Duration

	// MaxSessions caps the number of live sessions. Zero means unlimited.
	// When the cap is hit the gate sweeps inline; if still full, new
	// challenges fail with ErrTooManySessions.
	MaxSessions int
}

// DefaultConfig provides sensible defaults for gate operation.
var DefaultConfig = Config{
	TTL:           5 * time.Minute,
	SweepInterval: time.Minute,
	MaxSessions:   10000,
}

// WithTTL returns a new Config with updated invoice TTL.
func (c Config) WithTTL(d time.Duration) Config {
	c.TTL = d
	return c
}

// WithSweepInterval returns a new Config with updated sweep interval.
func (c Config) WithSweepInterval(d time.Duration) Config {
	c.SweepInterval = d
	return c
}

// WithMaxSessions returns a new Config with updated session cap.
func (c Config) WithMaxSessions(n int) Config {
	c.MaxSessions = n
	return c
}

// Validate ensures configuration values are reasonable.
func (c Config) Validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be positive, got %v", c.TTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %v", c.SweepInterval)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max sessions cannot be negative, got %d", c.MaxSessions)
	}
	return nil
}
