// Package config holds the cache's build-time-equivalent configuration:
// per-connection capacity ceilings plus the include-service and
// auto-rediscovery toggles.
package config

import (
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Config bounds and tunes one host's cache. The Max* fields bound
// per-connection attribute growth; a negative value disables the
// corresponding check (attrstore.Unbounded).
type Config struct {
	CachingEnabled bool `json:"caching_enabled"`

	MaxConnections      int `json:"max_connections"`
	MaxServices         int `json:"max_services"`
	MaxIncludedServices int `json:"max_included_services"`
	MaxCharacteristics  int `json:"max_characteristics"`
	MaxDescriptors      int `json:"max_descriptors"`

	// IncludeServicesEnabled runs a dedicated included-service discovery
	// phase between service and characteristic discovery, inserting any
	// secondary service it surfaces. When unset the phase is skipped and
	// secondary services reported during primary discovery land in the
	// main service list directly.
	IncludeServicesEnabled bool `json:"include_services_enabled"`

	// DisableAutoRediscovery, when set, makes a Service-Changed
	// invalidation (Cache.Update) leave the entry INVALID instead of
	// immediately re-triggering discovery — useful for a host that wants
	// to throttle or schedule rediscovery itself. The next query still
	// triggers discovery as normal.
	DisableAutoRediscovery bool `json:"disable_auto_rediscovery"`
}

// DefaultConfig returns the configuration a host gets if it asks for
// nothing in particular: caching on, option A discovery, generous but
// finite per-connection ceilings.
func DefaultConfig() Config {
	return Config{
		CachingEnabled:         true,
		MaxConnections:         8,
		MaxServices:            32,
		MaxIncludedServices:    16,
		MaxCharacteristics:     128,
		MaxDescriptors:         128,
		IncludeServicesEnabled: true,
	}
}

// LoadJSON decodes a Config from r, starting from DefaultConfig so a
// partial document only overrides the fields it sets.
func LoadJSON(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: decode json")
	}
	return cfg, nil
}
