// Package sim provides an in-memory provider adapter that synthesizes
// plausible market bars without touching the network. It backs the test
// environment configuration and local development.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"finfeed/pkg/provider"
)

const defaultBasePrice = 100.0

func init() {
	provider.RegisterAdapter("sim", func(name string, cfg *provider.ProviderConfig) (provider.Adapter, error) {
		return New(name), nil
	})
}

// Adapter keeps a deterministic per-ticker price walk in memory.
type Adapter struct {
	mu    sync.Mutex
	name  string
	now   func() time.Time
	steps map[string]int
}

// New constructs a simulator adapter.
func New(name string) *Adapter {
	return &Adapter{
		name:  name,
		now:   time.Now,
		steps: make(map[string]int),
	}
}

// Name returns the configured provider name.
func (a *Adapter) Name() string { return a.name }

// Fetch synthesizes one record for the requested ticker. The walk is a
// deterministic function of (ticker, step) so repeated runs are comparable.
func (a *Adapter) Fetch(_ context.Context, req provider.Request) (*provider.Payload, error) {
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" {
		return nil, fmt.Errorf("sim: empty ticker")
	}

	a.mu.Lock()
	a.steps[ticker]++
	step := a.steps[ticker]
	a.mu.Unlock()

	ts := a.now().UTC().Truncate(time.Minute)
	price := syntheticPrice(ticker, step)

	kind := provider.RecordKind(req.Params["kind"])
	if kind == "" {
		kind = provider.KindBar
	}
	interval := req.Params["interval"]
	if interval == "" && kind == provider.KindBar {
		interval = "1d"
	}

	fields := map[string]any{
		"open":   round2(price * 0.995),
		"close":  round2(price),
		"high":   round2(price * 1.01),
		"low":    round2(price * 0.99),
		"volume": float64(10_000 + step*137),
	}
	raw, _ := json.Marshal(fields)

	return &provider.Payload{
		Records: []provider.Record{{
			Kind:      kind,
			Ticker:    ticker,
			Source:    a.name,
			Timestamp: ts,
			Interval:  interval,
			Fields:    fields,
		}},
		Raw: raw,
	}, nil
}

func syntheticPrice(ticker string, step int) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ticker))
	seed := float64(h.Sum32()%400) + defaultBasePrice
	return seed * (1 + 0.002*math.Sin(float64(step)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
