package provider

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleProviderYAML = `
providers:
  marketwire:
    type: sim
    allowance: 100
    rate_per_minute: 60
    timeout: 8s
    credentials:
      - ${MARKETWIRE_KEY_PRIMARY}
      - ${MARKETWIRE_KEY_SECONDARY}
    endpoints:
      bars: /v2/bars/{ticker}
  newsfeed:
    type: sim
    allowance: 40
    credentials:
      - inline-token
`

func TestLoadConfigFromReader(t *testing.T) {
	t.Setenv("MARKETWIRE_KEY_PRIMARY", "mk-1")
	t.Setenv("MARKETWIRE_KEY_SECONDARY", "mk-2")

	cfg, err := LoadConfigFromReader(strings.NewReader(sampleProviderYAML))
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 2)

	mw := cfg.Providers["marketwire"]
	require.Equal(t, "sim", mw.Type)
	require.Equal(t, 100, mw.Allowance)
	require.Equal(t, 8*time.Second, mw.Timeout)
	require.Equal(t, []string{"mk-1", "mk-2"}, mw.Credentials)
	require.Equal(t, "/v2/bars/{ticker}", mw.Endpoints["bars"])
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no providers", "providers: {}", "at least one provider"},
		{"missing type", "providers:\n  p:\n    allowance: 5\n", "type is required"},
		{"zero allowance", "providers:\n  p:\n    type: sim\n", "allowance must be positive"},
		{"bad timeout", "providers:\n  p:\n    type: sim\n    allowance: 1\n    timeout: soon\n", "invalid timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFromReader(strings.NewReader(tt.yaml))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildRuntimes(t *testing.T) {
	RegisterAdapter("stub-build-test", func(name string, cfg *ProviderConfig) (Adapter, error) {
		return stubAdapter{name: name}, nil
	})

	cfg := &Config{Providers: map[string]*ProviderConfig{
		"alpha": {Type: "stub-build-test", Allowance: 7, Credentials: []string{"k1", "k2"}},
	}}

	runtimes, err := cfg.BuildRuntimes(newFakeClock())
	require.NoError(t, err)
	rt := runtimes["alpha"]
	require.NotNil(t, rt)
	require.Equal(t, "alpha", rt.Name)
	require.Equal(t, 7, rt.Budget.Allowance())
	require.Equal(t, 2, rt.Pool.Size())
	require.Equal(t, BreakerClosed, rt.Breaker.State())

	cfg.Providers["alpha"].Type = "nonexistent"
	_, err = cfg.BuildRuntimes(nil)
	require.ErrorContains(t, err, "unknown adapter type")
}

type stubAdapter struct{ name string }

func (s stubAdapter) Name() string { return s.name }
func (s stubAdapter) Fetch(_ context.Context, _ Request) (*Payload, error) {
	return &Payload{}, nil
}
