package ratelimit

import (
	"fmt"
	"time"
)

// Config represents rate limiter configuration
type Config struct {
	Enabled  bool          `json:"enabled"`
	Requests int           `json:"requests"` // allowed per Window per key
	Window   time.Duration `json:"window"`

	Type BackendType `json:"type"`

	// Distributed backend settings
	KeyPrefix string `json:"key_prefix,omitempty"`

	// Cleanup settings for local limiters
	MaxKeys       int           `json:"max_keys,omitempty"`
	CleanupPeriod time.Duration `json:"cleanup_period,omitempty"`
}

// BackendType defines the rate limiter backend
type BackendType string

const (
	BackendLocal       BackendType = "local"
	BackendDistributed BackendType = "distributed"
	BackendRedis       BackendType = "redis" // Alias for distributed
)

// Validate checks the configuration and fills in backend defaults.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Requests <= 0 {
		return fmt.Errorf("rate limit requests must be positive, got %d", c.Requests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", c.Window)
	}

	if c.Type == "" {
		c.Type = BackendLocal
	}

	switch c.Type {
	case BackendLocal:
		if c.MaxKeys <= 0 {
			c.MaxKeys = 10000
		}
		if c.CleanupPeriod <= 0 {
			c.CleanupPeriod = 5 * time.Minute
		}
	case BackendDistributed, BackendRedis:
		if c.KeyPrefix == "" {
			c.KeyPrefix = "ratelimit:"
		}
	default:
		return fmt.Errorf("unsupported rate limiter backend type: %s", c.Type)
	}

	return nil
}
