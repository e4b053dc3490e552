package config

import (
	"finfeed/pkg/collector"
	"finfeed/pkg/provider"
)

// MustLoadProviders loads etc/providers.yaml from the project root and
// panics on error. It isolates provider config so tests and tools do not
// need the full application config.
func MustLoadProviders() *provider.Config {
	return provider.MustLoad()
}

// MustLoadCollectors loads etc/collectors.yaml from the project root and
// panics on error.
func MustLoadCollectors() *collector.Config {
	return collector.MustLoad()
}
