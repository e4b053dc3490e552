package provider

import (
	"sync"
	"time"
)

const (
	// DefaultCredentialFailures marks a credential unhealthy after this
	// many consecutive failures.
	DefaultCredentialFailures = 3
	// DefaultCredentialCooldown is how long an unhealthy credential sits
	// out. Deliberately much shorter than the provider breaker cooldown:
	// credential quota and provider health are distinct, stackable
	// constraints.
	DefaultCredentialCooldown = 30 * time.Second
)

// CredentialOutcome is what the caller observed using a credential.
type CredentialOutcome int

const (
	CredentialOK CredentialOutcome = iota
	CredentialFailed
	CredentialRateLimited
)

// Credential is one opaque API token plus its health bookkeeping. A
// credential is owned by exactly one provider's pool and never shared.
type Credential struct {
	Token string

	consecutiveFails int
	lastFailure      time.Time
	unhealthyUntil   time.Time
}

// CredentialPool rotates the tokens configured for a single provider,
// preferring the least-recently-failed healthy credential.
type CredentialPool struct {
	mu            sync.Mutex
	clock         Clock
	creds         []*Credential
	failThreshold int
	cooldown      time.Duration
}

// NewCredentialPool builds a pool over the ordered token list. A provider
// configured without tokens (simulated adapters, public endpoints) gets a
// single anonymous credential so it rotates through the same machinery as a
// credentialed one.
func NewCredentialPool(tokens []string, clock Clock) *CredentialPool {
	if clock == nil {
		clock = SystemClock
	}
	creds := make([]*Credential, 0, len(tokens))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		creds = append(creds, &Credential{Token: token})
	}
	if len(creds) == 0 {
		creds = append(creds, &Credential{})
	}
	return &CredentialPool{
		clock:         clock,
		creds:         creds,
		failThreshold: DefaultCredentialFailures,
		cooldown:      DefaultCredentialCooldown,
	}
}

// Acquire returns the least-recently-failed healthy credential, or nil when
// every credential is cooling down. A nil result is the credential-level
// equivalent of an open breaker and the caller skips the provider.
func (p *CredentialPool) Acquire() *Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	var best *Credential
	for _, c := range p.creds {
		if now.Before(c.unhealthyUntil) {
			continue
		}
		if best == nil || c.lastFailure.Before(best.lastFailure) {
			best = c
		}
	}
	return best
}

// Report updates a credential's health after a call. Rate limiting is
// credential-scoped quota, so a rate-limited credential cools down
// immediately; plain failures accumulate until the threshold trips.
func (p *CredentialPool) Report(c *Credential, outcome CredentialOutcome) {
	if c == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	switch outcome {
	case CredentialOK:
		c.consecutiveFails = 0
	case CredentialRateLimited:
		c.lastFailure = now
		c.consecutiveFails = 0
		c.unhealthyUntil = now.Add(p.cooldown)
	case CredentialFailed:
		c.lastFailure = now
		c.consecutiveFails++
		if c.consecutiveFails >= p.failThreshold {
			c.consecutiveFails = 0
			c.unhealthyUntil = now.Add(p.cooldown)
		}
	}
}

// Size reports how many credentials the pool holds.
func (p *CredentialPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// HealthyCount reports how many credentials are currently usable.
func (p *CredentialPool) HealthyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	n := 0
	for _, c := range p.creds {
		if !now.Before(c.unhealthyUntil) {
			n++
		}
	}
	return n
}
