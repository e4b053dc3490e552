package provider

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"finfeed/pkg/confkit"
)

// Config describes every external data provider available to the service.
type Config struct {
	Providers map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig configures a single provider: how to reach it, which
// credentials rotate against it, and how many calls one cycle may spend.
type ProviderConfig struct {
	Type string `yaml:"type"`

	BaseURL     string            `yaml:"base_url"`
	Endpoints   map[string]string `yaml:"endpoints"`
	Credentials []string          `yaml:"credentials"`

	// AuthHeader sends the credential as a request header instead of the
	// default apikey query parameter.
	AuthHeader string `yaml:"auth_header"`
	// QuotaMarkers are provider-specific "quota exceeded" body fragments
	// treated as rate limiting even when the status is 200.
	QuotaMarkers []string `yaml:"quota_markers"`

	// Allowance is the per-cycle call budget. Reset by the orchestrator at
	// cycle start, never mid-cycle.
	Allowance int `yaml:"allowance"`
	// RatePerMinute paces individual HTTP requests inside the adapter.
	RatePerMinute int `yaml:"rate_per_minute"`

	TimeoutRaw string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

// Builder constructs an Adapter from configuration.
type Builder func(name string, cfg *ProviderConfig) (Adapter, error)

var (
	registry   = make(map[string]Builder)
	registryMu sync.RWMutex
)

// RegisterAdapter registers an adapter constructor under a type name.
// Adapters self-register from their package init functions.
func RegisterAdapter(typeName string, builder Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(strings.TrimSpace(typeName))] = builder
}

func lookupBuilder(typeName string) (Builder, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	builder, ok := registry[strings.ToLower(strings.TrimSpace(typeName))]
	return builder, ok
}

// LoadConfig reads provider configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open provider config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads provider configuration from the default project location.
func MustLoad() *Config {
	cfg, err := LoadConfig(confkit.MustProjectPath("etc/providers.yaml"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read provider config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal provider config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig)
	}
	for name, pc := range c.Providers {
		if pc == nil {
			pc = &ProviderConfig{}
			c.Providers[name] = pc
		}
		pc.expandEnv()
		if pc.TimeoutRaw != "" {
			d, err := time.ParseDuration(pc.TimeoutRaw)
			if err != nil {
				return fmt.Errorf("provider %s: invalid timeout %q: %w", name, pc.TimeoutRaw, err)
			}
			pc.Timeout = d
		}
	}
	return nil
}

func (p *ProviderConfig) expandEnv() {
	p.Type = strings.TrimSpace(os.ExpandEnv(p.Type))
	p.BaseURL = strings.TrimSpace(os.ExpandEnv(p.BaseURL))
	creds := make([]string, 0, len(p.Credentials))
	for _, c := range p.Credentials {
		if expanded := strings.TrimSpace(os.ExpandEnv(c)); expanded != "" {
			creds = append(creds, expanded)
		}
	}
	p.Credentials = creds
}

// Validate rejects configurations the orchestrator cannot run a cycle with.
// A validation failure here is fatal: it aborts the cycle before any work
// is dispatched.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("provider config: at least one provider is required")
	}
	for name, pc := range c.Providers {
		if pc.Type == "" {
			return fmt.Errorf("provider %s: type is required", name)
		}
		if pc.Allowance <= 0 {
			return fmt.Errorf("provider %s: allowance must be positive", name)
		}
	}
	return nil
}

// BuildRuntimes instantiates one adapter plus its guards per configured
// provider, using the registered builders.
func (c *Config) BuildRuntimes(clock Clock) (map[string]*Runtime, error) {
	runtimes := make(map[string]*Runtime, len(c.Providers))
	for name, pc := range c.Providers {
		builder, ok := lookupBuilder(pc.Type)
		if !ok {
			return nil, fmt.Errorf("provider %s: unknown adapter type %q", name, pc.Type)
		}
		adapter, err := builder(name, pc)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		runtimes[name] = NewRuntime(name, adapter, pc, clock)
	}
	return runtimes, nil
}
