package collector

import (
	"context"

	"finfeed/pkg/provider"
)

// providerOutcome is what one provider in the chain produced for a unit.
type providerOutcome int

const (
	// providerSkipped: this provider could not take the unit (breaker,
	// budget, credentials, permanent error); the chain moves on.
	providerSkipped providerOutcome = iota
	// providerServed: data fetched, written and checkpointed.
	providerServed
	// providerFatal: the unit cannot continue at all (cancellation, sink
	// failure after a successful fetch); trying more providers won't help.
	providerFatal
)

// attemptState drives the retry/rotation machine for one provider. Keeping
// the transitions explicit (instead of nested sleep loops) lets tests walk
// every edge with a fake clock.
type attemptState int

const (
	stateRotating attemptState = iota
	stateAttempting
	stateBackoff
)

// fetchFromProvider runs the per-provider portion of a unit: rotate to a
// healthy credential, attempt the call with pessimistic budget accounting,
// back off on transient errors, rotate immediately on rate limits, abandon
// on permanent errors.
func (c *Collector) fetchFromProvider(ctx context.Context, rt *provider.Runtime, unit Unit, res *Result) providerOutcome {
	boff := provider.NewBackoff(c.deps.Retry)
	rotations := 0
	var cred *provider.Credential

	state := stateRotating
	for {
		switch state {
		case stateRotating:
			rotations++
			if rotations > rt.Pool.Size() {
				return providerSkipped
			}
			cred = rt.Pool.Acquire()
			if cred == nil {
				return providerSkipped
			}
			boff.Reset()
			state = stateAttempting

		case stateAttempting:
			// Budget is spent before the request goes out; a failed call
			// still made the call.
			if !rt.Budget.TryConsume() {
				return providerSkipped
			}

			start := c.deps.Clock.Now()
			payload, err := rt.Adapter.Fetch(ctx, provider.Request{
				Ticker:     unit.Ticker,
				Endpoint:   c.endpoint,
				Params:     c.params,
				Credential: cred.Token,
			})
			latency := c.deps.Clock.Now().Sub(start)
			res.Calls++

			entry := LogEntry{
				SessionID: unit.SessionID,
				Provider:  rt.Name,
				Endpoint:  c.endpoint,
				Ticker:    unit.Ticker,
				Latency:   latency,
				Retries:   boff.Retries(),
			}

			switch provider.Classify(err) {
			case provider.KindNone:
				rt.Breaker.OnSuccess()
				rt.Pool.Report(cred, provider.CredentialOK)
				entry.Outcome = OutcomeSuccess
				c.audit(ctx, entry)

				written, perr := c.persist(ctx, rt, unit, payload)
				res.Records += written
				if perr != nil {
					res.Err = perr
					return providerFatal
				}
				res.Provider = rt.Name
				return providerServed

			case provider.KindRateLimited:
				// Quota is credential-scoped: rotate without retrying,
				// a same-credential retry would only waste budget.
				rt.Pool.Report(cred, provider.CredentialRateLimited)
				res.RateLimited++
				entry.Outcome = OutcomeRateLimited
				entry.Detail = err.Error()
				c.audit(ctx, entry)
				state = stateRotating

			case provider.KindPermanent:
				entry.Outcome = OutcomeFailure
				entry.Detail = err.Error()
				c.audit(ctx, entry)
				if ctx.Err() != nil {
					res.Err = ctx.Err()
					return providerFatal
				}
				return providerSkipped

			default: // transient
				rt.Breaker.OnFailure()
				rt.Pool.Report(cred, provider.CredentialFailed)
				entry.Outcome = OutcomeFailure
				entry.Detail = err.Error()
				c.audit(ctx, entry)
				if boff.Exhausted() {
					state = stateRotating
				} else {
					state = stateBackoff
				}
			}

		case stateBackoff:
			if err := c.deps.Clock.Sleep(ctx, boff.Next()); err != nil {
				res.Err = err
				return providerFatal
			}
			state = stateAttempting
		}
	}
}
