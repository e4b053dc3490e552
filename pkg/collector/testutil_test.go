package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finfeed/pkg/provider"
)

// testClock never sleeps for real; it records requested delays and advances
// its own notion of now.
type testClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *testClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.slept))
	copy(out, c.slept)
	return out
}

// scriptedAdapter pops one scripted response per Fetch; the final response
// repeats once the script runs out.
type scriptedAdapter struct {
	mu        sync.Mutex
	name      string
	script    []scriptStep
	calls     int
	credsSeen []string
}

type scriptStep struct {
	payload *provider.Payload
	err     error
}

func okStep(recs ...provider.Record) scriptStep {
	return scriptStep{payload: &provider.Payload{Records: recs}}
}

func errStep(err error) scriptStep { return scriptStep{err: err} }

func newScriptedAdapter(name string, script ...scriptStep) *scriptedAdapter {
	return &scriptedAdapter{name: name, script: script}
}

func (a *scriptedAdapter) Name() string { return a.name }

func (a *scriptedAdapter) Fetch(_ context.Context, req provider.Request) (*provider.Payload, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := a.calls
	if idx >= len(a.script) {
		idx = len(a.script) - 1
	}
	a.calls++
	a.credsSeen = append(a.credsSeen, req.Credential)
	step := a.script[idx]
	return step.payload, step.err
}

func (a *scriptedAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// memSink is an idempotent in-memory sink keyed by the natural tuple.
type memSink struct {
	mu      sync.Mutex
	rows    map[string]string
	failErr error
	writes  []string
}

func newMemSink() *memSink { return &memSink{rows: make(map[string]string)} }

func recordKey(rec provider.Record) string {
	return fmt.Sprintf("%s|%s|%s|%d|%s", rec.Kind, rec.Ticker, rec.Source, rec.Timestamp.UnixMilli(), rec.Interval)
}

func (s *memSink) Upsert(_ context.Context, rec provider.Record) (SinkOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return SinkUnchanged, s.failErr
	}
	key := recordKey(rec)
	payload := fmt.Sprintf("%v", rec.Fields)
	if existing, ok := s.rows[key]; ok && existing == payload {
		return SinkUnchanged, nil
	}
	s.rows[key] = payload
	s.writes = append(s.writes, key)
	return SinkWritten, nil
}

func (s *memSink) RowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// memCheckpoints is an in-memory checkpoint store that also records the
// order of MarkDone calls relative to a sibling sink.
type memCheckpoints struct {
	mu   sync.Mutex
	done map[string]bool
}

func newMemCheckpoints() *memCheckpoints { return &memCheckpoints{done: make(map[string]bool)} }

func checkpointKey(sessionID, ticker, providerName, endpoint string) string {
	return fmt.Sprintf("%s|%s|%s|%s", sessionID, ticker, providerName, endpoint)
}

func (c *memCheckpoints) IsDone(_ context.Context, sessionID, ticker, providerName, endpoint string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done[checkpointKey(sessionID, ticker, providerName, endpoint)], nil
}

func (c *memCheckpoints) MarkDone(_ context.Context, sessionID, ticker, providerName, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done[checkpointKey(sessionID, ticker, providerName, endpoint)] = true
	return nil
}

func (c *memCheckpoints) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.done)
}

// memAudit collects log entries.
type memAudit struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (a *memAudit) Record(_ context.Context, entry LogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *memAudit) Entries() []LogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]LogEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

func (a *memAudit) ByOutcome(outcome string) []LogEntry {
	var out []LogEntry
	for _, e := range a.Entries() {
		if e.Outcome == outcome {
			out = append(out, e)
		}
	}
	return out
}

// newRuntime builds a provider runtime around a scripted adapter.
func newRuntime(name string, adapter provider.Adapter, allowance int, creds []string, clock provider.Clock) *provider.Runtime {
	return provider.NewRuntime(name, adapter, &provider.ProviderConfig{
		Allowance:   allowance,
		Credentials: creds,
	}, clock)
}

func barRecord(ticker, source string) provider.Record {
	return provider.Record{
		Kind:      provider.KindBar,
		Ticker:    ticker,
		Source:    source,
		Timestamp: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		Interval:  "1d",
		Fields:    map[string]any{"close": 188.4},
	}
}
