package runtime

import (
	"fmt"
	"strings"

	"sketchbridge/internal/core/config"
	"sketchbridge/internal/mcp/contracts"
	"sketchbridge/internal/mcp/registry"
	"sketchbridge/internal/mcp/transport"
)

func Build(cfg *config.Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	adapter, err := buildTransport(cfg, deps)
	if err != nil {
		return nil, err
	}

	toolName := strings.TrimSpace(cfg.MCP.ExposedToolName)
	if toolName == "" {
		toolName = contracts.ToolNameSketchbridge
	}
	return New(cfg, deps, registry.New(), adapter, toolName, BuildOperationAllowlist(cfg))
}

func serverInfo(cfg *config.Config) transport.ServerInfo {
	return transport.ServerInfo{
		Name:     cfg.MCP.ServerName,
		Version:  cfg.MCP.ServerVersion,
		ToolName: strings.TrimSpace(cfg.MCP.ExposedToolName),
	}
}

func buildTransport(cfg *config.Config, deps Dependencies) (transport.Adapter, error) {
	transportName := strings.ToLower(strings.TrimSpace(cfg.MCP.Transport))
	switch transportName {
	case "", "stdio":
		return transport.NewStdio(serverInfo(cfg), cfg.MCP.RateLimit, transport.WithStdioLogger(deps.Logger))
	case "sse", "http":
		addr := cfg.MCP.Address
		if addr == "" {
			addr = "127.0.0.1:8765"
		}
		return transport.NewSSE(addr, serverInfo(cfg), cfg.MCP.RateLimit, deps.Logger)
	default:
		return nil, fmt.Errorf("unsupported MCP transport: %s", transportName)
	}
}
