package provider

import (
	"sync"
	"time"
)

const (
	// DefaultBreakerThreshold is the consecutive-failure count that opens
	// a provider breaker.
	DefaultBreakerThreshold = 20
	// DefaultBreakerCooldown is how long an open breaker blocks calls
	// before probing the provider again.
	DefaultBreakerCooldown = 300 * time.Second
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards a provider that is globally degraded. It is
// provider-scoped, not credential-scoped: budget accounting alone would let
// the orchestrator burn every credential against a provider returning 500s,
// and the breaker caps that damage independently of remaining budget.
type CircuitBreaker struct {
	mu        sync.Mutex
	clock     Clock
	threshold int
	cooldown  time.Duration

	state    BreakerState
	failures int
	openedAt time.Time
}

// NewCircuitBreaker builds a closed breaker. Zero threshold/cooldown use
// the package defaults.
func NewCircuitBreaker(threshold int, cooldown time.Duration, clock Clock) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	if clock == nil {
		clock = SystemClock
	}
	return &CircuitBreaker{clock: clock, threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a call may proceed. An open breaker transitions to
// half-open once the cooldown elapses, letting callers probe again.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerOpen:
		if cb.clock.Now().Sub(cb.openedAt) >= cb.cooldown {
			cb.state = BreakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// OnSuccess resets the failure streak. One success while half-open closes
// the breaker.
func (cb *CircuitBreaker) OnSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == BreakerHalfOpen {
		cb.state = BreakerClosed
	}
}

// OnFailure records one failure. A half-open breaker reopens on any
// failure; a closed breaker opens after threshold consecutive failures.
func (cb *CircuitBreaker) OnFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == BreakerHalfOpen {
		cb.trip()
		return
	}
	if cb.state == BreakerClosed && cb.failures >= cb.threshold {
		cb.trip()
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) trip() {
	cb.state = BreakerOpen
	cb.openedAt = cb.clock.Now()
	cb.failures = 0
}
