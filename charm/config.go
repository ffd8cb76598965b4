// ABOUTME: Configuration for Charm KV backend connection
// ABOUTME: Server host, database name, and auto-sync preferences

package charm

import (
	"time"

	"github.com/charmbracelet/charm/kv"
)

const (
	// DefaultCharmHost is the self-hosted 2389 research server.
	DefaultCharmHost = "charm.2389.dev"

	// AppName is the default Charm KV database name.
	AppName = "dayplan"
)

// Config holds charm connection settings.
type Config struct {
	// Host is the charm server hostname (default: charm.2389.dev)
	Host string `toml:"host" yaml:"host"`

	// Database overrides the KV database name, mostly for staging setups.
	Database string `toml:"database" yaml:"database"`

	// AutoSync enables automatic sync after every write operation
	AutoSync bool `toml:"auto_sync" yaml:"auto_sync"`

	// StaleThreshold is the duration before data is considered stale and needs a sync
	StaleThreshold time.Duration `toml:"stale_threshold" yaml:"stale_threshold"`
}

// DefaultConfig returns a new config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:           DefaultCharmHost,
		Database:       AppName,
		AutoSync:       true,
		StaleThreshold: kv.DefaultStaleThreshold,
	}
}

// ApplyDefaults fills empty fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.Database == "" {
		c.Database = defaults.Database
	}
	if c.StaleThreshold == 0 {
		c.StaleThreshold = defaults.StaleThreshold
	}
}

func (c *Config) appName() string {
	if c.Database == "" {
		return AppName
	}
	return c.Database
}
