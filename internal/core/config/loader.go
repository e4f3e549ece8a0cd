package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"sketchbridge/internal/engine/geometry"
	"sketchbridge/internal/shared/version"

	"github.com/BurntSushi/toml"
)

const DefaultPath = "sketchbridge.toml"

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

// Parse decodes TOML and applies defaults, normalization and validation.
func Parse(data string) (*Config, error) {
	var cfg Config
	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// db.enabled defaults to true; only an explicit false turns the store off.
	if !meta.IsDefined("db", "enabled") {
		cfg.DB.Enabled = true
	}

	applyDefaults(&cfg)
	normalizeMCP(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = "data/state"
	}
	if strings.TrimSpace(cfg.Paths.DatabaseDir) == "" {
		cfg.Paths.DatabaseDir = "data/database"
	}

	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = "imports.db"
	}
	if cfg.DB.BusyTimeout <= 0 {
		cfg.DB.BusyTimeout = 5 * time.Second
	}

	if strings.TrimSpace(cfg.MCP.Transport) == "" {
		cfg.MCP.Transport = "stdio"
	}
	if strings.TrimSpace(cfg.MCP.Address) == "" {
		cfg.MCP.Address = "127.0.0.1:8765"
	}
	if strings.TrimSpace(cfg.MCP.ServerName) == "" {
		cfg.MCP.ServerName = "sketchbridge"
	}
	if strings.TrimSpace(cfg.MCP.ServerVersion) == "" {
		cfg.MCP.ServerVersion = version.Version
	}
	if cfg.MCP.MaxResponseItems == 0 {
		cfg.MCP.MaxResponseItems = 100
	}
	if cfg.MCP.RequestTimeout <= 0 {
		cfg.MCP.RequestTimeout = 30 * time.Second
	}
	if cfg.MCP.RateLimit.RequestsPerSecond > 0 && cfg.MCP.RateLimit.Burst <= 0 {
		cfg.MCP.RateLimit.Burst = int(cfg.MCP.RateLimit.RequestsPerSecond) + 1
	}

	if strings.TrimSpace(cfg.Unity.Address) == "" {
		cfg.Unity.Address = "127.0.0.1:6400"
	}
	if cfg.Unity.DialTimeout <= 0 {
		cfg.Unity.DialTimeout = 2 * time.Second
	}
	if cfg.Unity.CommandTimeout <= 0 {
		cfg.Unity.CommandTimeout = 10 * time.Second
	}
	if cfg.Unity.PollInterval <= 0 {
		cfg.Unity.PollInterval = 3 * time.Second
	}
	if cfg.Unity.MaxPolls <= 0 {
		cfg.Unity.MaxPolls = 10
	}
	if cfg.Unity.ImportTimeout <= 0 {
		cfg.Unity.ImportTimeout = time.Duration(cfg.Unity.MaxPolls+1)*cfg.Unity.PollInterval + 30*time.Second
	}

	if cfg.Sketchfab.DefaultBounds == nil {
		def := geometry.DefaultBounds()
		cfg.Sketchfab.DefaultBounds = &BoundsConfig{Center: def.Center, Size: def.Size}
	}

	if cfg.Observability.Port == 0 {
		cfg.Observability.Port = 9464
	}
}

func normalizeMCP(cfg *Config) {
	cfg.MCP.Transport = strings.ToLower(strings.TrimSpace(cfg.MCP.Transport))
	cfg.MCP.Address = strings.TrimSpace(cfg.MCP.Address)
	cfg.MCP.ServerName = strings.TrimSpace(cfg.MCP.ServerName)
	cfg.MCP.ServerVersion = strings.TrimSpace(cfg.MCP.ServerVersion)
	cfg.MCP.ExposedToolName = strings.TrimSpace(cfg.MCP.ExposedToolName)
	if len(cfg.MCP.OperationAllowlist) == 0 {
		return
	}
	normalized := make([]string, 0, len(cfg.MCP.OperationAllowlist))
	for _, op := range cfg.MCP.OperationAllowlist {
		op = strings.ToLower(strings.TrimSpace(op))
		if op == "" {
			continue
		}
		normalized = append(normalized, op)
	}
	cfg.MCP.OperationAllowlist = normalized
}
