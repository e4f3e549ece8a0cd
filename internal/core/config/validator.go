package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

func validate(cfg *Config) error {
	return errors.Join(Validate(cfg)...)
}

// Validate reports every problem in cfg rather than stopping at the first.
func Validate(cfg *Config) []error {
	var errs []error
	for _, check := range []func(*Config) error{
		validateVersion,
		validateDatabase,
		validateMCP,
		validateUnity,
		validateSketchfab,
		validateObservability,
	} {
		if err := check(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateDatabase(cfg *Config) error {
	if !cfg.DB.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	return nil
}

func validateMCP(cfg *Config) error {
	switch cfg.MCP.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("mcp.transport must be one of: stdio, http")
	}
	if cfg.MCP.Transport == "http" {
		if _, _, err := net.SplitHostPort(cfg.MCP.Address); err != nil {
			return fmt.Errorf("mcp.address %q must be host:port: %w", cfg.MCP.Address, err)
		}
	}
	if cfg.MCP.MaxResponseItems < 1 || cfg.MCP.MaxResponseItems > 5000 {
		return fmt.Errorf("mcp.max_response_items must be between 1 and 5000")
	}
	if cfg.MCP.RequestTimeout < time.Second || cfg.MCP.RequestTimeout > 2*time.Minute {
		return fmt.Errorf("mcp.request_timeout must be between 1s and 2m")
	}
	if strings.ContainsAny(cfg.MCP.ExposedToolName, " \t\n") {
		return fmt.Errorf("mcp.exposed_tool_name must not contain whitespace")
	}
	if cfg.MCP.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("mcp.rate_limit.requests_per_second must not be negative")
	}

	seen := make(map[string]bool, len(cfg.MCP.OperationAllowlist))
	for _, op := range cfg.MCP.OperationAllowlist {
		if seen[op] {
			return fmt.Errorf("mcp.operation_allowlist contains duplicate entry %q", op)
		}
		seen[op] = true
		if _, err := glob.Compile(op, '.'); err != nil {
			return fmt.Errorf("mcp.operation_allowlist entry %q is not a valid pattern: %w", op, err)
		}
	}

	if strings.TrimSpace(cfg.MCP.ServerName) == "" {
		return fmt.Errorf("mcp.server_name must not be empty")
	}
	return nil
}

func validateUnity(cfg *Config) error {
	if _, _, err := net.SplitHostPort(cfg.Unity.Address); err != nil {
		return fmt.Errorf("unity.address %q must be host:port: %w", cfg.Unity.Address, err)
	}
	if cfg.Unity.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("unity.poll_interval must be at least 10ms")
	}
	if cfg.Unity.MaxPolls > 1000 {
		return fmt.Errorf("unity.max_polls must be at most 1000")
	}
	if cfg.Unity.RequestsPerSecond < 0 {
		return fmt.Errorf("unity.requests_per_second must not be negative")
	}
	return nil
}

func validateSketchfab(cfg *Config) error {
	b := cfg.DefaultBounds()
	for name, v := range b.Fields() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("sketchfab.default_bounds.%s must be finite", name)
		}
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if !cfg.Observability.Enabled {
		return nil
	}
	if cfg.Observability.Port < 1 || cfg.Observability.Port > 65535 {
		return fmt.Errorf("observability.port must be between 1 and 65535")
	}
	if cfg.Observability.EnableTracing && strings.TrimSpace(cfg.Observability.OTLPEndpoint) == "" {
		return fmt.Errorf("observability.otlp_endpoint is required when enable_tracing=true")
	}
	return nil
}
