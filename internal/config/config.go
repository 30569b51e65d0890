// Package config loads erp-mcp settings from an optional YAML file with
// environment overrides on top. Consuming code either constructs a Config
// in Go and fills defaults with ApplyDefaults, or calls Load with a path.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// or "1500ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	// Backend is the REST backend the gateway talks to.
	Backend BackendConfig `yaml:"backend"`

	// Cache tunes the in-memory response cache.
	Cache CacheConfig `yaml:"cache"`

	// Logout tunes the defensive-logout protocol.
	Logout LogoutConfig `yaml:"logout"`

	// Session locates the shared session daemon and its database.
	Session SessionConfig `yaml:"session"`

	// Realtime carries the pub-sub channel parameters handed to realtime
	// consumers. The gateway itself does not orchestrate the channel.
	Realtime RealtimeConfig `yaml:"realtime"`
}

type BackendConfig struct {
	// BaseURL is the backend root, e.g. "https://erp.example.com/api/v1".
	BaseURL string `yaml:"base_url"`

	// Timeout bounds a single exchange (default 20s).
	Timeout Duration `yaml:"timeout"`

	// SkipCache marks every request with X-Skip-Cache (default true).
	SkipCache *bool `yaml:"skip_cache"`
}

type CacheConfig struct {
	// Size is the FIFO entry bound (default 100).
	Size int `yaml:"size"`

	// TTL is the per-entry lifetime (default 30s).
	TTL Duration `yaml:"ttl"`
}

type LogoutConfig struct {
	// Max401 is the consecutive-failure threshold (default 2).
	Max401 int `yaml:"max_401"`

	// RecentSuccessWindow is how fresh a success must be to suppress a
	// stray 401 (default 5s).
	RecentSuccessWindow Duration `yaml:"recent_success_window"`

	// Debounce is the cancellable delay before revalidation (default 1.5s).
	Debounce Duration `yaml:"debounce"`
}

type SessionConfig struct {
	// Socket is the unix socket of the session daemon.
	Socket string `yaml:"socket"`

	// DBPath is the daemon's bbolt file.
	DBPath string `yaml:"db_path"`

	// DefaultTTL applies to session-scoped keys stored without an explicit
	// TTL (default 12h).
	DefaultTTL Duration `yaml:"default_ttl"`
}

type RealtimeConfig struct {
	// AutoRefreshAuth keeps the realtime token refreshed (default true).
	AutoRefreshAuth *bool `yaml:"auto_refresh_auth"`

	// HeartbeatInterval is the channel heartbeat period (default 30s).
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// Timeout is the channel join/ack timeout (default 10s).
	Timeout Duration `yaml:"timeout"`
}

// Load reads path if it exists, applies env overrides and defaults.
// A missing file is not an error; env and defaults still apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to env + defaults
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	cfg.ApplyDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ERP_BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("ERP_MCP_SESSION_SOCK"); v != "" {
		c.Session.Socket = v
	}
	if v := os.Getenv("ERP_MCP_SESSION_DB"); v != "" {
		c.Session.DBPath = v
	}
}

// ApplyDefaults fills every unset field with its documented default.
func (c *Config) ApplyDefaults() {
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = Duration(20 * time.Second)
	}
	if c.Backend.SkipCache == nil {
		t := true
		c.Backend.SkipCache = &t
	}
	if c.Cache.Size <= 0 {
		c.Cache.Size = 100
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = Duration(30 * time.Second)
	}
	if c.Logout.Max401 <= 0 {
		c.Logout.Max401 = 2
	}
	if c.Logout.RecentSuccessWindow <= 0 {
		c.Logout.RecentSuccessWindow = Duration(5 * time.Second)
	}
	if c.Logout.Debounce <= 0 {
		c.Logout.Debounce = Duration(1500 * time.Millisecond)
	}
	if c.Session.Socket == "" {
		c.Session.Socket = filepath.Join(stateDir(), "session.sock")
	}
	if c.Session.DBPath == "" {
		c.Session.DBPath = filepath.Join(stateDir(), "session.bbolt")
	}
	if c.Session.DefaultTTL <= 0 {
		c.Session.DefaultTTL = Duration(12 * time.Hour)
	}
	if c.Realtime.AutoRefreshAuth == nil {
		t := true
		c.Realtime.AutoRefreshAuth = &t
	}
	if c.Realtime.HeartbeatInterval <= 0 {
		c.Realtime.HeartbeatInterval = Duration(30 * time.Second)
	}
	if c.Realtime.Timeout <= 0 {
		c.Realtime.Timeout = Duration(10 * time.Second)
	}
}

func stateDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "erp-mcp")
}
