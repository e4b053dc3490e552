package collector

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"finfeed/pkg/confkit"
	"finfeed/pkg/provider"
)

// Config names the collectors the orchestrator can dispatch and the
// provider chain behind each one.
type Config struct {
	Collectors map[string]*CollectorConfig `yaml:"collectors"`
}

// CollectorConfig describes one logical data need.
type CollectorConfig struct {
	// Kind is the record domain: bar, news, filing or indicator.
	Kind string `yaml:"kind"`
	// Endpoint is the provider endpoint name this collector fetches.
	Endpoint string `yaml:"endpoint"`
	// Interval annotates bar-like data (e.g. "1d").
	Interval string `yaml:"interval"`
	// Chain is the priority-ordered provider fallback list.
	Chain []string `yaml:"chain"`
}

// LoadConfig reads collector configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open collector config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads collector configuration from the default project location.
func MustLoad() *Config {
	cfg, err := LoadConfig(confkit.MustProjectPath("etc/collectors.yaml"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read collector config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal collector config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects collector definitions the orchestrator cannot run.
func (c *Config) Validate() error {
	if len(c.Collectors) == 0 {
		return fmt.Errorf("collector config: at least one collector is required")
	}
	for name, cc := range c.Collectors {
		if cc == nil {
			return fmt.Errorf("collector %s: empty definition", name)
		}
		if strings.TrimSpace(cc.Endpoint) == "" {
			return fmt.Errorf("collector %s: endpoint is required", name)
		}
		if len(cc.Chain) == 0 {
			return fmt.Errorf("collector %s: chain is required", name)
		}
	}
	return nil
}

// Build wires every configured collector against the shared provider
// runtimes. Chains reference shared runtimes by name: two collectors naming
// the same provider contend for the same budget, breaker and credentials.
func (c *Config) Build(runtimes map[string]*provider.Runtime, deps Deps) (map[string]*Collector, error) {
	collectors := make(map[string]*Collector, len(c.Collectors))
	for name, cc := range c.Collectors {
		chain := make([]*provider.Runtime, 0, len(cc.Chain))
		for _, providerName := range cc.Chain {
			rt, ok := runtimes[providerName]
			if !ok {
				return nil, fmt.Errorf("collector %s: unknown provider %q in chain", name, providerName)
			}
			chain = append(chain, rt)
		}
		params := map[string]string{}
		if cc.Kind != "" {
			params["kind"] = cc.Kind
		}
		if cc.Interval != "" {
			params["interval"] = cc.Interval
		}
		col, err := New(name, cc.Endpoint, params, chain, deps)
		if err != nil {
			return nil, err
		}
		collectors[name] = col
	}
	return collectors, nil
}
