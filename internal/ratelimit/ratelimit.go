package ratelimit

import "golang.org/x/time/rate"

// Config defines rate limiting for inbound messages on one connection
type Config struct {
	// MessagesPerSecond defines how many messages the peer can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// Default returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func Default() *Config {
	return &Config{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// Disabled returns a configuration with rate limiting disabled
func Disabled() *Config {
	return &Config{
		Enabled: false,
	}
}

// NewLimiter returns a token bucket for cfg, or nil when limiting is off.
// A nil limiter allows everything through Allow.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &Limiter{limiter: rate.NewLimiter(cfg.MessagesPerSecond, cfg.Burst)}
}

// Limiter wraps rate.Limiter so a nil value means unlimited.
type Limiter struct {
	limiter *rate.Limiter
}

// Allow reports whether one more message may be accepted now.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}
