package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffConfig controls exponential backoff with jitter.
type BackoffConfig struct {
	// Initial is the base delay before the first retry. Default: 30s.
	Initial time.Duration
	// Max caps the delay. Default: 30m.
	Max time.Duration
	// Multiplier scales the delay after each attempt. Default: 2.0.
	Multiplier float64
	// JitterFraction adds random jitter as a fraction of the computed delay.
	// Default: 0.25.
	JitterFraction float64
}

// DefaultBackoff returns the backoff used for queued job retries.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		Initial:        30 * time.Second,
		Max:            30 * time.Minute,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// Delay computes the backoff before retry number attempt (0-based).
func (c BackoffConfig) Delay(attempt int) time.Duration {
	c = c.applyDefaults()

	delay := float64(c.Initial) * math.Pow(c.Multiplier, float64(attempt))
	if delay > float64(c.Max) {
		delay = float64(c.Max)
	}

	if c.JitterFraction > 0 {
		jitterRange := delay * c.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func (c BackoffConfig) applyDefaults() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = 30 * time.Second
	}
	if c.Max <= 0 {
		c.Max = 30 * time.Minute
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFraction < 0 {
		c.JitterFraction = 0
	}
	return c
}
