package provider

import (
	"math/rand"
	"time"
)

const (
	defaultBaseDelay   = 2 * time.Second
	defaultMaxDelay    = 10 * time.Second
	defaultMultiplier  = 2.0
	defaultMaxAttempts = 3
)

// RetryConfig holds the same-credential retry policy for transient errors.
type RetryConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	MaxAttempts int
}

// Normalized fills unset fields with the policy defaults.
func (c RetryConfig) Normalized() RetryConfig {
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.Multiplier <= 1 {
		c.Multiplier = defaultMultiplier
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return c
}

// Backoff produces the capped, jittered exponential delay schedule for one
// credential's retry streak. Not safe for concurrent use; each fetch unit
// owns its own Backoff.
type Backoff struct {
	cfg     RetryConfig
	retries int
	delay   time.Duration
	jitter  func(time.Duration) time.Duration
}

// NewBackoff builds a schedule from cfg.
func NewBackoff(cfg RetryConfig) *Backoff {
	cfg = cfg.Normalized()
	return &Backoff{
		cfg:   cfg,
		delay: cfg.BaseDelay,
		jitter: func(d time.Duration) time.Duration {
			// Up to 25% additive jitter keeps concurrent units from
			// synchronizing their retries against one provider.
			return d + time.Duration(rand.Int63n(int64(d)/4+1))
		},
	}
}

// Next consumes one retry and returns the delay to wait before the attempt.
func (b *Backoff) Next() time.Duration {
	d := b.delay
	b.retries++
	next := time.Duration(float64(b.delay) * b.cfg.Multiplier)
	if next > b.cfg.MaxDelay {
		next = b.cfg.MaxDelay
	}
	b.delay = next
	return b.jitter(d)
}

// Exhausted reports whether the same-credential retry budget is spent.
func (b *Backoff) Exhausted() bool { return b.retries >= b.cfg.MaxAttempts }

// Reset starts a fresh streak, used after rotating to a new credential.
func (b *Backoff) Reset() {
	b.retries = 0
	b.delay = b.cfg.BaseDelay
}

// Retries reports how many retries were consumed in the current streak.
func (b *Backoff) Retries() int { return b.retries }
