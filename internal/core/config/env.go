package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies SKETCHBRIDGE_[SECTION]_[KEY] overrides, e.g. SKETCHBRIDGE_UNITY_ADDRESS.
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.StateDir, "SKETCHBRIDGE_PATHS_STATE_DIR")
	setEnvString(&cfg.Paths.DatabaseDir, "SKETCHBRIDGE_PATHS_DATABASE_DIR")

	// Database
	setEnvBool(&cfg.DB.Enabled, "SKETCHBRIDGE_DB_ENABLED")
	setEnvString(&cfg.DB.Path, "SKETCHBRIDGE_DB_PATH")
	setEnvDuration(&cfg.DB.BusyTimeout, "SKETCHBRIDGE_DB_BUSY_TIMEOUT")

	// MCP
	setEnvString(&cfg.MCP.Transport, "SKETCHBRIDGE_MCP_TRANSPORT")
	setEnvString(&cfg.MCP.Address, "SKETCHBRIDGE_MCP_ADDRESS")
	setEnvString(&cfg.MCP.ServerName, "SKETCHBRIDGE_MCP_SERVER_NAME")
	setEnvInt(&cfg.MCP.MaxResponseItems, "SKETCHBRIDGE_MCP_MAX_RESPONSE_ITEMS")
	setEnvDuration(&cfg.MCP.RequestTimeout, "SKETCHBRIDGE_MCP_REQUEST_TIMEOUT")
	setEnvFloat64(&cfg.MCP.RateLimit.RequestsPerSecond, "SKETCHBRIDGE_MCP_RATE_LIMIT_RPS")
	setEnvInt(&cfg.MCP.RateLimit.Burst, "SKETCHBRIDGE_MCP_RATE_LIMIT_BURST")

	// Unity
	setEnvBool(&cfg.Unity.Enabled, "SKETCHBRIDGE_UNITY_ENABLED")
	setEnvString(&cfg.Unity.Address, "SKETCHBRIDGE_UNITY_ADDRESS")
	setEnvDuration(&cfg.Unity.CommandTimeout, "SKETCHBRIDGE_UNITY_COMMAND_TIMEOUT")
	setEnvDuration(&cfg.Unity.PollInterval, "SKETCHBRIDGE_UNITY_POLL_INTERVAL")
	setEnvInt(&cfg.Unity.MaxPolls, "SKETCHBRIDGE_UNITY_MAX_POLLS")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "SKETCHBRIDGE_OBSERVABILITY_ENABLED")
	setEnvInt(&cfg.Observability.Port, "SKETCHBRIDGE_OBSERVABILITY_PORT")
	setEnvString(&cfg.Observability.OTLPEndpoint, "SKETCHBRIDGE_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "SKETCHBRIDGE_OBSERVABILITY_ENABLE_TRACING")
	setEnvBool(&cfg.Observability.EnableMetrics, "SKETCHBRIDGE_OBSERVABILITY_ENABLE_METRICS")

	normalizeMCP(cfg)
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.ToLower(val)); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
