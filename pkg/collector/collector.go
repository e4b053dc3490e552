// Package collector implements the per-domain fetch pipeline: an ordered
// fallback chain of providers driven through their budgets, breakers and
// credential pools, writing durably to the sink before checkpointing.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"finfeed/pkg/provider"
)

// ErrChainExhausted marks a unit no provider in the chain could serve.
// It is a soft failure: the orchestrator counts it, never aborts on it.
var ErrChainExhausted = errors.New("collector: provider chain exhausted")

const sinkWriteRetries = 2

// Unit is one (ticker, collector) work item within a session.
type Unit struct {
	SessionID string
	Ticker    string
	Collector string
}

// Result summarizes one unit's execution for session accounting.
type Result struct {
	Ticker      string
	Provider    string
	Calls       int
	Records     int
	RateLimited int
	Err         error
}

// SinkOutcome reports whether an upsert changed the stored row.
type SinkOutcome int

const (
	SinkWritten SinkOutcome = iota
	SinkUnchanged
)

// Sink is the idempotent writer. Upserting the same natural key with the
// same payload twice must report SinkUnchanged on the second call.
type Sink interface {
	Upsert(ctx context.Context, rec provider.Record) (SinkOutcome, error)
}

// CheckpointStore durably marks completed (session, ticker, provider,
// endpoint) units. MarkDone is only called after the sink write is durable.
type CheckpointStore interface {
	IsDone(ctx context.Context, sessionID, ticker, providerName, endpoint string) (bool, error)
	MarkDone(ctx context.Context, sessionID, ticker, providerName, endpoint string) error
}

// LogEntry is one append-only audit row per call attempt.
type LogEntry struct {
	SessionID string
	Provider  string
	Endpoint  string
	Ticker    string
	Outcome   string
	Latency   time.Duration
	Retries   int
	Detail    string
}

// Audit outcome values.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeRateLimited = "rate_limited"
)

// AuditLog appends call-attempt rows. Entries are never mutated or deleted
// by this layer.
type AuditLog interface {
	Record(ctx context.Context, entry LogEntry) error
}

// Deps are the collaborators every collector shares.
type Deps struct {
	Sink        Sink
	Checkpoints CheckpointStore
	Audit       AuditLog
	Clock       provider.Clock
	Retry       provider.RetryConfig
}

// Collector owns the fallback chain for one logical data need.
type Collector struct {
	name     string
	endpoint string
	params   map[string]string
	chain    []*provider.Runtime
	deps     Deps
}

// New assembles a collector over an ordered provider chain.
func New(name, endpoint string, params map[string]string, chain []*provider.Runtime, deps Deps) (*Collector, error) {
	if name == "" {
		return nil, errors.New("collector: name is required")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("collector %s: endpoint is required", name)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("collector %s: provider chain is empty", name)
	}
	if deps.Sink == nil || deps.Checkpoints == nil {
		return nil, fmt.Errorf("collector %s: sink and checkpoint store are required", name)
	}
	if deps.Clock == nil {
		deps.Clock = provider.SystemClock
	}
	return &Collector{name: name, endpoint: endpoint, params: params, chain: chain, deps: deps}, nil
}

// Name returns the collector name.
func (c *Collector) Name() string { return c.name }

// Endpoint returns the logical endpoint this collector fetches.
func (c *Collector) Endpoint() string { return c.endpoint }

// ProviderNames lists the chain in priority order, used for checkpoint
// lookups before dispatch.
func (c *Collector) ProviderNames() []string {
	names := make([]string, len(c.chain))
	for i, rt := range c.chain {
		names[i] = rt.Name
	}
	return names
}

// Fetch runs the unit through the fallback chain. It never returns a hard
// error: failures land in Result.Err and the audit log, and the caller
// folds them into session counters.
func (c *Collector) Fetch(ctx context.Context, unit Unit) Result {
	res := Result{Ticker: unit.Ticker}

	for _, rt := range c.chain {
		if !rt.Breaker.Allow() {
			// Local decision, no network call and no budget spent.
			logx.WithContext(ctx).Infow("skipping provider with open breaker",
				logx.Field("provider", rt.Name), logx.Field("ticker", unit.Ticker))
			continue
		}
		if rt.Budget.Exhausted() {
			continue
		}

		switch c.fetchFromProvider(ctx, rt, unit, &res) {
		case providerServed:
			return res
		case providerFatal:
			return res
		}
		// providerSkipped: try the next provider in the chain.
	}

	res.Err = ErrChainExhausted
	c.audit(ctx, LogEntry{
		SessionID: unit.SessionID,
		Endpoint:  c.endpoint,
		Ticker:    unit.Ticker,
		Outcome:   OutcomeFailure,
		Detail:    ErrChainExhausted.Error(),
	})
	return res
}

// persist writes every record durably, retrying sink errors a bounded
// number of times, then checkpoints. The write-before-checkpoint order is
// what makes resumed sessions safe; it must never be inverted. Unchanged
// rows stay out of the written count so retries and resumes cannot
// double-count session totals.
func (c *Collector) persist(ctx context.Context, rt *provider.Runtime, unit Unit, payload *provider.Payload) (int, error) {
	written := 0
	for _, rec := range payload.Records {
		outcome, err := c.upsertWithRetry(ctx, rec)
		if err != nil {
			// Not checkpointed: a resume will refetch this unit.
			return written, fmt.Errorf("sink write for %s/%s: %w", unit.Ticker, c.endpoint, err)
		}
		if outcome == SinkWritten {
			written++
		}
	}
	if err := c.deps.Checkpoints.MarkDone(ctx, unit.SessionID, unit.Ticker, rt.Name, c.endpoint); err != nil {
		return written, fmt.Errorf("checkpoint %s/%s: %w", unit.Ticker, c.endpoint, err)
	}
	return written, nil
}

func (c *Collector) upsertWithRetry(ctx context.Context, rec provider.Record) (SinkOutcome, error) {
	var lastErr error
	for attempt := 0; attempt <= sinkWriteRetries; attempt++ {
		outcome, err := c.deps.Sink.Upsert(ctx, rec)
		if err == nil {
			return outcome, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return SinkUnchanged, lastErr
}

func (c *Collector) audit(ctx context.Context, entry LogEntry) {
	if c.deps.Audit == nil {
		return
	}
	if err := c.deps.Audit.Record(ctx, entry); err != nil {
		logx.WithContext(ctx).Errorf("collector %s: audit log write: %v", c.name, err)
	}
}
