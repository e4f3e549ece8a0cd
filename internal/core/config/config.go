package config

import (
	"time"

	"sketchbridge/internal/engine/geometry"
)

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	DB            Database      `toml:"db"`
	MCP           MCP           `toml:"mcp"`
	Unity         Unity         `toml:"unity"`
	Sketchfab     Sketchfab     `toml:"sketchfab"`
	Observability Observability `toml:"observability"`
}

type Paths struct {
	StateDir    string `toml:"state_dir"`
	DatabaseDir string `toml:"database_dir"`
}

type Database struct {
	Enabled     bool          `toml:"enabled"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

type MCP struct {
	Transport          string        `toml:"transport"`
	Address            string        `toml:"address"`
	ServerName         string        `toml:"server_name"`
	ServerVersion      string        `toml:"server_version"`
	RequestTimeout     time.Duration `toml:"request_timeout"`
	MaxResponseItems   int           `toml:"max_response_items"`
	ExposedToolName    string        `toml:"exposed_tool_name"`
	OperationAllowlist []string      `toml:"operation_allowlist"`
	RateLimit          RateLimit     `toml:"rate_limit"`
}

// RateLimit bounds tool calls per client. Zero RequestsPerSecond disables limiting.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

type Unity struct {
	Enabled           bool          `toml:"enabled"`
	Address           string        `toml:"address"`
	DialTimeout       time.Duration `toml:"dial_timeout"`
	CommandTimeout    time.Duration `toml:"command_timeout"`
	PollInterval      time.Duration `toml:"poll_interval"`
	MaxPolls          int           `toml:"max_polls"`
	ImportTimeout     time.Duration `toml:"import_timeout"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	Burst             int           `toml:"burst"`
}

type Sketchfab struct {
	DefaultBounds *BoundsConfig `toml:"default_bounds"`
}

type BoundsConfig struct {
	Center geometry.Vector3 `toml:"center"`
	Size   geometry.Vector3 `toml:"size"`
}

func (b BoundsConfig) Bounds() geometry.Bounds {
	return geometry.NewBounds(b.Center, b.Size)
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Port          int    `toml:"port"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	EnableTracing bool   `toml:"enable_tracing"`
	EnableMetrics bool   `toml:"enable_metrics"`
}

// DefaultBounds returns the configured fallback volume for imports that omit bounds.
func (c *Config) DefaultBounds() geometry.Bounds {
	if c == nil || c.Sketchfab.DefaultBounds == nil {
		return geometry.DefaultBounds()
	}
	return c.Sketchfab.DefaultBounds.Bounds()
}

// DefaultConfig is the configuration used when no file exists.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.DB.Enabled = true
	applyDefaults(cfg)
	return cfg
}
