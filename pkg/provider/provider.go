// Package provider defines the primitives every external data source is
// reached through: the Adapter capability interface plus the per-provider
// resource guards (call budget, circuit breaker, credential pool) shared by
// all concurrent fetch units targeting the same provider.
package provider

import (
	"context"
	"encoding/json"
	"time"
)

// Request identifies one logical fetch unit against a provider endpoint.
// Credential carries the token selected by the pool for this attempt.
type Request struct {
	Ticker     string
	Endpoint   string
	Params     map[string]string
	Credential string
}

// RecordKind names the data domain a record belongs to.
type RecordKind string

const (
	KindBar       RecordKind = "bar"
	KindNews      RecordKind = "news"
	KindFiling    RecordKind = "filing"
	KindIndicator RecordKind = "indicator"
)

// Record is one normalized row headed for the sink. The natural uniqueness
// tuple is (kind, ticker, source, timestamp, interval).
type Record struct {
	Kind      RecordKind
	Ticker    string
	Source    string
	Timestamp time.Time
	Interval  string
	Fields    map[string]any
}

// Payload is the result of a single successful fetch.
type Payload struct {
	Records []Record
	Raw     json.RawMessage
}

// Adapter performs one logical fetch against an external provider. The
// payload semantics belong to the adapter; the orchestration layer only
// sees records and the error taxonomy in errors.go.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, req Request) (*Payload, error)
}

// Runtime bundles an adapter with the transient per-provider state guarding
// it for the duration of a cycle. One Runtime exists per provider and is
// shared by every collector that names the provider in its chain.
type Runtime struct {
	Name    string
	Adapter Adapter
	Budget  *RateBudget
	Breaker *CircuitBreaker
	Pool    *CredentialPool
}

// NewRuntime assembles the guards for a configured provider.
func NewRuntime(name string, adapter Adapter, cfg *ProviderConfig, clock Clock) *Runtime {
	if clock == nil {
		clock = SystemClock
	}
	return &Runtime{
		Name:    name,
		Adapter: adapter,
		Budget:  NewRateBudget(cfg.Allowance),
		Breaker: NewCircuitBreaker(DefaultBreakerThreshold, DefaultBreakerCooldown, clock),
		Pool:    NewCredentialPool(cfg.Credentials, clock),
	}
}
