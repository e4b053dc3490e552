package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finfeed/pkg/collector"
	"finfeed/pkg/provider"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
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
	c.now = c.now.Add(d)
	return nil
}

// funcAdapter delegates every fetch to fn and tracks which tickers were
// requested plus the peak number of concurrent fetches.
type funcAdapter struct {
	mu           sync.Mutex
	name         string
	fn           func(req provider.Request) (*provider.Payload, error)
	tickers      []string
	inFlight     int
	peakInFlight int
	perCallDelay time.Duration
}

func newFuncAdapter(name string, fn func(req provider.Request) (*provider.Payload, error)) *funcAdapter {
	return &funcAdapter{name: name, fn: fn}
}

func okFetch(source string) func(req provider.Request) (*provider.Payload, error) {
	return func(req provider.Request) (*provider.Payload, error) {
		return &provider.Payload{Records: []provider.Record{{
			Kind:      provider.KindBar,
			Ticker:    req.Ticker,
			Source:    source,
			Timestamp: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
			Interval:  "1d",
			Fields:    map[string]any{"close": 101.5},
		}}}, nil
	}
}

func (a *funcAdapter) Name() string { return a.name }

func (a *funcAdapter) Fetch(_ context.Context, req provider.Request) (*provider.Payload, error) {
	a.mu.Lock()
	a.tickers = append(a.tickers, req.Ticker)
	a.inFlight++
	if a.inFlight > a.peakInFlight {
		a.peakInFlight = a.inFlight
	}
	delay := a.perCallDelay
	a.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	a.mu.Lock()
	a.inFlight--
	a.mu.Unlock()
	return a.fn(req)
}

func (a *funcAdapter) Tickers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.tickers))
	copy(out, a.tickers)
	return out
}

func (a *funcAdapter) PeakInFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peakInFlight
}

// memSink is the in-memory idempotent sink shared by orchestrator tests.
type memSink struct {
	mu   sync.Mutex
	rows map[string]string
}

func newMemSink() *memSink { return &memSink{rows: make(map[string]string)} }

func (s *memSink) Upsert(_ context.Context, rec provider.Record) (collector.SinkOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%s|%d|%s", rec.Kind, rec.Ticker, rec.Source, rec.Timestamp.UnixMilli(), rec.Interval)
	payload := fmt.Sprintf("%v", rec.Fields)
	if existing, ok := s.rows[key]; ok && existing == payload {
		return collector.SinkUnchanged, nil
	}
	s.rows[key] = payload
	return collector.SinkWritten, nil
}

func (s *memSink) RowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type memCheckpoints struct {
	mu   sync.Mutex
	done map[string]bool
}

func newMemCheckpoints() *memCheckpoints { return &memCheckpoints{done: make(map[string]bool)} }

func cpKey(sessionID, ticker, providerName, endpoint string) string {
	return fmt.Sprintf("%s|%s|%s|%s", sessionID, ticker, providerName, endpoint)
}

func (c *memCheckpoints) IsDone(_ context.Context, sessionID, ticker, providerName, endpoint string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done[cpKey(sessionID, ticker, providerName, endpoint)], nil
}

func (c *memCheckpoints) MarkDone(_ context.Context, sessionID, ticker, providerName, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done[cpKey(sessionID, ticker, providerName, endpoint)] = true
	return nil
}

func (c *memCheckpoints) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.done)
}

// memSessions stores sessions and finished summaries in memory.
type memSessions struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	finished  map[string]*Summary
	createErr error
	finishErr error
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*Session), finished: make(map[string]*Summary)}
}

func (s *memSessions) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memSessions) Load(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memSessions) Finish(_ context.Context, sum *Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishErr != nil {
		return s.finishErr
	}
	if sess, ok := s.sessions[sum.SessionID]; ok {
		sess.Status = sum.Status
		sess.EndedAt = sum.EndedAt
	}
	cp := *sum
	s.finished[sum.SessionID] = &cp
	return nil
}

func (s *memSessions) Finished(id string) *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished[id]
}

type memJournal struct {
	mu        sync.Mutex
	summaries []*Summary
}

func (j *memJournal) WriteSummary(sum *Summary) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.summaries = append(j.summaries, sum)
	return fmt.Sprintf("journal/cycle_%05d.json", len(j.summaries)), nil
}

func (j *memJournal) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.summaries)
}

// harness bundles one collector over one provider with in-memory stores.
type harness struct {
	clock       *testClock
	adapter     *funcAdapter
	runtime     *provider.Runtime
	sink        *memSink
	checkpoints *memCheckpoints
	sessions    *memSessions
	journal     *memJournal
	collectors  map[string]*collector.Collector
	runtimes    map[string]*provider.Runtime
}

func newHarness(t interface{ Fatalf(string, ...any) }, providerName string, allowance int, fn func(req provider.Request) (*provider.Payload, error)) *harness {
	h := &harness{
		clock:       newTestClock(),
		adapter:     newFuncAdapter(providerName, fn),
		sink:        newMemSink(),
		checkpoints: newMemCheckpoints(),
		sessions:    newMemSessions(),
		journal:     &memJournal{},
	}
	h.runtime = provider.NewRuntime(providerName, h.adapter, &provider.ProviderConfig{
		Allowance:   allowance,
		Credentials: []string{"k1"},
	}, h.clock)
	h.runtimes = map[string]*provider.Runtime{providerName: h.runtime}

	col, err := collector.New("market", "bars", map[string]string{"kind": "bar"},
		[]*provider.Runtime{h.runtime}, collector.Deps{
			Sink:        h.sink,
			Checkpoints: h.checkpoints,
			Clock:       h.clock,
		})
	if err != nil {
		t.Fatalf("build collector: %v", err)
	}
	h.collectors = map[string]*collector.Collector{"market": col}
	return h
}

func (h *harness) orchestrator(t interface{ Fatalf(string, ...any) }, cfg Config) *Orchestrator {
	o, err := New(cfg, Deps{
		Collectors:  h.collectors,
		Runtimes:    h.runtimes,
		Checkpoints: h.checkpoints,
		Sessions:    h.sessions,
		Journal:     h.journal,
		Clock:       h.clock,
	})
	if err != nil {
		t.Fatalf("build orchestrator: %v", err)
	}
	return o
}
