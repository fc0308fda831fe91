// Package config loads and resolves claude-bridge configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file is absent or leaves fields empty.
const (
	DefaultAPIBaseURL = "https://api.anthropic.com"
	DefaultTokenURL   = "https://console.anthropic.com/v1/oauth/token"

	DefaultCacheTTLSeconds      = 30
	DefaultExpiryBufferSeconds  = 5 * 60
	DefaultRequestTimeoutSecond = 600
)

// UsageConfig controls local token usage recording.
type UsageConfig struct {
	// Enabled turns on the SQLite usage recorder. Default: true.
	Enabled *bool `yaml:"enabled,omitempty"`

	// DatabasePath overrides the usage database location.
	// Default: <config dir>/usage.db
	DatabasePath string `yaml:"database-path,omitempty"`
}

// Config is the root configuration document, read from
// $XDG_CONFIG_HOME/claude-bridge/config.yaml (or ~/.config/...).
type Config struct {
	// CredentialsPath points at the Claude CLI credential file.
	// Default: ~/.claude/.credentials.json
	CredentialsPath string `yaml:"credentials-path,omitempty"`

	// APIBaseURL is the Messages API origin.
	APIBaseURL string `yaml:"api-base-url,omitempty"`

	// TokenURL is the OAuth token endpoint used for refresh and login.
	TokenURL string `yaml:"token-url,omitempty"`

	// CacheTTLSeconds bounds how long a credential read is served from memory.
	CacheTTLSeconds int `yaml:"cache-ttl-seconds,omitempty"`

	// ExpiryBufferSeconds refreshes tokens this long before they lapse.
	ExpiryBufferSeconds int `yaml:"expiry-buffer-seconds,omitempty"`

	// RequestTimeoutSeconds caps non-streaming API calls. Streaming calls are
	// bounded by the caller's context instead.
	RequestTimeoutSeconds int `yaml:"request-timeout-seconds,omitempty"`

	// WatchCredentials invalidates the in-memory credential cache when the
	// credential file changes on disk (e.g. the Claude CLI refreshed it).
	WatchCredentials bool `yaml:"watch-credentials,omitempty"`

	// LogLevel sets logging verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log-level,omitempty"`

	// LogFile mirrors logs into a rotating file when set.
	LogFile string `yaml:"log-file,omitempty"`

	Usage UsageConfig `yaml:"usage,omitempty"`
}

// Dir returns the claude-bridge configuration directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "claude-bridge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".claude-bridge")
	}
	return filepath.Join(home, ".config", "claude-bridge")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultCredentialsPath returns the Claude CLI credential file location.
func DefaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".claude", ".credentials.json")
	}
	return filepath.Join(home, ".claude", ".credentials.json")
}

// Load reads the config file at path. A missing file is not an error: the
// returned config carries defaults only. An unparseable file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CredentialsPath == "" {
		c.CredentialsPath = DefaultCredentialsPath()
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = DefaultCacheTTLSeconds
	}
	if c.ExpiryBufferSeconds <= 0 {
		c.ExpiryBufferSeconds = DefaultExpiryBufferSeconds
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = DefaultRequestTimeoutSecond
	}
}

// CacheTTL returns the credential cache window as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// ExpiryBuffer returns the proactive refresh buffer as a duration.
func (c *Config) ExpiryBuffer() time.Duration {
	return time.Duration(c.ExpiryBufferSeconds) * time.Second
}

// RequestTimeout returns the non-streaming request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// UsageEnabled reports whether usage recording is on (default true).
func (c *Config) UsageEnabled() bool {
	if c.Usage.Enabled == nil {
		return true
	}
	return *c.Usage.Enabled
}

// UsageDatabasePath resolves the usage database location.
func (c *Config) UsageDatabasePath() string {
	if c.Usage.DatabasePath != "" {
		return c.Usage.DatabasePath
	}
	return filepath.Join(Dir(), "usage.db")
}
