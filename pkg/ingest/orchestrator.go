// Package ingest runs ingestion cycles: it fans (ticker, collector) units
// out over a bounded worker set, skips units already checkpointed by an
// earlier run of the same session, and folds per-unit results into a
// durable session summary.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"

	"finfeed/pkg/collector"
	"finfeed/pkg/provider"
)

const (
	defaultMaxInFlight = 4
	defaultUnitTimeout = 30 * time.Second
)

// Config bounds a cycle's concurrency and per-unit patience.
type Config struct {
	// MaxInFlight caps concurrently running units.
	MaxInFlight int
	// UnitTimeout bounds one unit end to end, backoff sleeps included. It
	// must be comfortably shorter than whatever deadline the caller puts on
	// the cycle itself.
	UnitTimeout time.Duration
}

func (c Config) normalized() Config {
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = defaultMaxInFlight
	}
	if c.UnitTimeout <= 0 {
		c.UnitTimeout = defaultUnitTimeout
	}
	return c
}

// Journal receives the summary of every finished cycle. Journal failures are
// logged, never fatal.
type Journal interface {
	WriteSummary(sum *Summary) (string, error)
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Collectors  map[string]*collector.Collector
	Runtimes    map[string]*provider.Runtime
	Checkpoints collector.CheckpointStore
	Sessions    SessionStore
	Journal     Journal
	Clock       provider.Clock
}

// Orchestrator owns cycle execution. One orchestrator serves any number of
// sequential cycles; cycles themselves are internally concurrent.
type Orchestrator struct {
	cfg  Config
	deps Deps
}

// New validates dependencies and returns an orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if len(deps.Collectors) == 0 {
		return nil, errors.New("ingest: at least one collector is required")
	}
	if deps.Checkpoints == nil || deps.Sessions == nil {
		return nil, errors.New("ingest: checkpoint and session stores are required")
	}
	if deps.Clock == nil {
		deps.Clock = provider.SystemClock
	}
	return &Orchestrator{cfg: cfg.normalized(), deps: deps}, nil
}

// unit pairs a ticker with the collector that will fetch it.
type unit struct {
	ticker string
	col    *collector.Collector
}

// RunCycle executes one full cycle over tickers x collectorNames. Soft
// failures (chain exhaustion, provider errors) land in the summary counters
// and still complete the session; only store failures and cancellation
// produce a failed session. The returned error is non-nil exactly when the
// session failed.
func (o *Orchestrator) RunCycle(ctx context.Context, tickers, collectorNames []string) (*Summary, error) {
	if len(tickers) == 0 {
		return nil, errors.New("ingest: no tickers to ingest")
	}
	units, err := o.resolveUnits(tickers, collectorNames)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:         uuid.NewString(),
		Status:     StatusRunning,
		Tickers:    tickers,
		Collectors: collectorNames,
		StartedAt:  o.deps.Clock.Now(),
	}
	if err := o.deps.Sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	o.resetBudgets()
	return o.runUnits(ctx, sess, units)
}

// ResumeCycle re-runs an interrupted session. Units that reached their
// durable checkpoint are skipped; everything else runs again. Budgets are
// reset because a resume is a fresh spend of provider calls.
func (o *Orchestrator) ResumeCycle(ctx context.Context, sessionID string) (*Summary, error) {
	sess, err := o.deps.Sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if sess.Status == StatusCompleted {
		return nil, fmt.Errorf("ingest: session %s already completed", sessionID)
	}
	units, err := o.resolveUnits(sess.Tickers, sess.Collectors)
	if err != nil {
		return nil, err
	}

	sess.Status = StatusRunning
	o.resetBudgets()
	return o.runUnits(ctx, sess, units)
}

func (o *Orchestrator) resolveUnits(tickers, collectorNames []string) ([]unit, error) {
	if len(collectorNames) == 0 {
		for name := range o.deps.Collectors {
			collectorNames = append(collectorNames, name)
		}
	}
	units := make([]unit, 0, len(tickers)*len(collectorNames))
	for _, name := range collectorNames {
		col, ok := o.deps.Collectors[name]
		if !ok {
			return nil, fmt.Errorf("ingest: unknown collector %q", name)
		}
		for _, ticker := range tickers {
			units = append(units, unit{ticker: ticker, col: col})
		}
	}
	return units, nil
}

// resetBudgets restores every provider's per-cycle allowance. Budgets reset
// only at cycle boundaries, never mid-cycle.
func (o *Orchestrator) resetBudgets() {
	for _, rt := range o.deps.Runtimes {
		rt.Budget.Reset(rt.Budget.Allowance())
	}
}

func (o *Orchestrator) runUnits(ctx context.Context, sess *Session, units []unit) (*Summary, error) {
	var tally counters
	tally.units.Store(int64(len(units)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxInFlight)

	for _, u := range units {
		u := u
		g.Go(func() error {
			// A cancelled cycle stops dispatching; units already past
			// their durable write have checkpointed and stay done.
			if gctx.Err() != nil {
				return gctx.Err()
			}

			done, err := o.unitDone(gctx, sess.ID, u)
			if err != nil {
				return fmt.Errorf("checkpoint lookup %s/%s: %w", u.ticker, u.col.Name(), err)
			}
			if done {
				tally.skipped.Add(1)
				return nil
			}

			uctx, cancel := context.WithTimeout(gctx, o.cfg.UnitTimeout)
			defer cancel()

			res := u.col.Fetch(uctx, collector.Unit{
				SessionID: sess.ID,
				Ticker:    u.ticker,
				Collector: u.col.Name(),
			})
			tally.calls.Add(int64(res.Calls))
			tally.records.Add(int64(res.Records))
			tally.rateLimited.Add(int64(res.RateLimited))
			if res.Err != nil {
				// Soft failure: counted, logged, cycle keeps going.
				tally.failed.Add(1)
				logx.WithContext(gctx).Errorw("unit failed",
					logx.Field("session", sess.ID),
					logx.Field("ticker", u.ticker),
					logx.Field("collector", u.col.Name()),
					logx.Field("error", res.Err.Error()))
				return nil
			}
			tally.served.Add(1)
			return nil
		})
	}

	waitErr := g.Wait()
	endedAt := o.deps.Clock.Now()

	status := StatusCompleted
	if waitErr != nil || ctx.Err() != nil {
		status = StatusFailed
	}
	sum := tally.summary(sess, status, endedAt)

	if err := o.deps.Sessions.Finish(ctx, sum); err != nil {
		sum.Status = StatusFailed
		return sum, fmt.Errorf("finish session %s: %w", sess.ID, err)
	}
	o.journal(sum)

	if waitErr != nil {
		return sum, fmt.Errorf("cycle %s aborted: %w", sess.ID, waitErr)
	}
	logx.Infow("cycle finished",
		logx.Field("session", sum.SessionID),
		logx.Field("served", sum.Served),
		logx.Field("skipped", sum.Skipped),
		logx.Field("failed", sum.Failed),
		logx.Field("calls", sum.Calls),
		logx.Field("records", sum.Records))
	return sum, nil
}

// unitDone reports whether any provider in the unit's chain already
// checkpointed this (session, ticker, endpoint). Checkpoints are written per
// serving provider, so the whole chain is consulted.
func (o *Orchestrator) unitDone(ctx context.Context, sessionID string, u unit) (bool, error) {
	for _, providerName := range u.col.ProviderNames() {
		done, err := o.deps.Checkpoints.IsDone(ctx, sessionID, u.ticker, providerName, u.col.Endpoint())
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}
	return false, nil
}

func (o *Orchestrator) journal(sum *Summary) {
	if o.deps.Journal == nil {
		return
	}
	if _, err := o.deps.Journal.WriteSummary(sum); err != nil {
		logx.Errorf("ingest: journal write for session %s: %v", sum.SessionID, err)
	}
}
