package config

import (
	"os"
	"path/filepath"
	"testing"

	"finfeed/pkg/provider"
	_ "finfeed/pkg/provider/sim"
)

// Test_moduleConfig_envExpansion verifies that section configs expand
// environment variables correctly when loaded directly via their LoadConfig
// functions.
func Test_moduleConfig_envExpansion(t *testing.T) {
	dir := t.TempDir()

	providersYAML := []byte(`
providers:
  marketwire:
    type: httpapi
    base_url: ${MARKETWIRE_BASE}
    credentials:
      - ${MARKETWIRE_KEY}
    allowance: 50
    timeout: ${MARKETWIRE_TIMEOUT}
    endpoints:
      bars: /v1/bars/{ticker}
`)
	provPath := filepath.Join(dir, "providers.yaml")
	if err := os.WriteFile(provPath, providersYAML, 0o600); err != nil {
		t.Fatalf("write providers.yaml: %v", err)
	}

	t.Setenv("MARKETWIRE_BASE", "https://marketwire.example/api")
	t.Setenv("MARKETWIRE_KEY", "test-key")
	t.Setenv("MARKETWIRE_TIMEOUT", "7s")

	provCfg, err := provider.LoadConfig(provPath)
	if err != nil {
		t.Fatalf("provider.LoadConfig: %v", err)
	}
	p := provCfg.Providers["marketwire"]
	if p == nil {
		t.Fatalf("provider 'marketwire' missing")
	}
	if got := p.BaseURL; got != "https://marketwire.example/api" {
		t.Fatalf("BaseURL not expanded, got %q", got)
	}
	if len(p.Credentials) != 1 || p.Credentials[0] != "test-key" {
		t.Fatalf("credentials not expanded, got %v", p.Credentials)
	}
	if p.Timeout.String() != "7s" {
		t.Fatalf("timeout not parsed, got %s", p.Timeout)
	}
}

// Test_hydrateSections_withSectionFiles verifies that the main config pulls
// in provider and collector files relative to its own directory.
func Test_hydrateSections_withSectionFiles(t *testing.T) {
	dir := t.TempDir()

	providersYAML := []byte(`
providers:
  synthetic:
    type: sim
    allowance: 100
    credentials: [local]
`)
	if err := os.WriteFile(filepath.Join(dir, "providers.yaml"), providersYAML, 0o600); err != nil {
		t.Fatalf("write providers.yaml: %v", err)
	}

	collectorsYAML := []byte(`
collectors:
  daily_bars:
    kind: bar
    endpoint: bars
    interval: 1d
    chain: [synthetic]
`)
	if err := os.WriteFile(filepath.Join(dir, "collectors.yaml"), collectorsYAML, 0o600); err != nil {
		t.Fatalf("write collectors.yaml: %v", err)
	}

	mainYAML := []byte(`
Env: dev
Providers:
  File: providers.yaml
Collectors:
  File: collectors.yaml
`)
	mainPath := filepath.Join(dir, "finfeed.yaml")
	if err := os.WriteFile(mainPath, mainYAML, 0o600); err != nil {
		t.Fatalf("write finfeed.yaml: %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "dev" {
		t.Fatalf("Env got %q", cfg.Env)
	}
	if cfg.Providers.Value == nil || cfg.Providers.Value.Providers["synthetic"] == nil {
		t.Fatalf("providers section not hydrated")
	}
	if cfg.Collectors.Value == nil || cfg.Collectors.Value.Collectors["daily_bars"] == nil {
		t.Fatalf("collectors section not hydrated")
	}
	if cfg.BaseDir() != dir {
		t.Fatalf("BaseDir got %q want %q", cfg.BaseDir(), dir)
	}
}

func TestValidate_TTLBounds(t *testing.T) {
	cfg := &Config{}
	cfg.Ingest.MaxInFlight = 4
	cfg.Ingest.UnitTimeoutSec = 30
	cfg.TTL.Short = 0
	cfg.TTL.Medium = 60
	cfg.TTL.Long = 300
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected ttl.short validation error")
	}
}

func TestValidate_Env(t *testing.T) {
	cfg := &Config{}
	cfg.Env = "staging"
	cfg.Ingest.MaxInFlight = 4
	cfg.Ingest.UnitTimeoutSec = 30
	cfg.TTL = CacheTTL{Short: 10, Medium: 60, Long: 300}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected env validation error")
	}

	cfg.Env = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty env must default to test, got %v", err)
	}
	if !cfg.IsTestEnv() {
		t.Fatalf("empty env must be test env")
	}
}
