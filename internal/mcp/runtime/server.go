package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"sketchbridge/internal/core/config"
	domainerrors "sketchbridge/internal/core/errors"
	"sketchbridge/internal/engine/geometry"
	"sketchbridge/internal/mcp/contracts"
	"sketchbridge/internal/mcp/registry"
	"sketchbridge/internal/mcp/schema"
	"sketchbridge/internal/mcp/tools/model"
	"sketchbridge/internal/mcp/tools/system"
	"sketchbridge/internal/mcp/transport"
	"sketchbridge/internal/mcp/validate"
	"sketchbridge/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ToolService is what the single exposed tool dispatches to.
type ToolService interface {
	model.Service
	system.Checker
}

// BoundsDefaulter receives the default import volume on config reload.
type BoundsDefaulter interface {
	SetDefaultBounds(b geometry.Bounds)
}

type rateLimitSetter interface {
	SetRateLimit(cfg config.RateLimit)
}

type Dependencies struct {
	Tools    ToolService
	Defaults BoundsDefaulter
	Logger   *slog.Logger
	// Closers are closed in order when the server stops.
	Closers []io.Closer
}

type Server struct {
	deps      Dependencies
	registry  *registry.Registry
	transport transport.Adapter
	toolName  string

	cfgMu     sync.RWMutex
	cfg       *config.Config
	allowlist OperationAllowlist

	mu      sync.Mutex
	running bool
	closed  bool
}

func New(cfg *config.Config, deps Dependencies, reg *registry.Registry, adapter transport.Adapter, toolName string, allowlist OperationAllowlist) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Tools == nil {
		return nil, fmt.Errorf("tool service dependency is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if reg == nil {
		reg = registry.New()
	}
	if adapter == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if strings.TrimSpace(toolName) == "" {
		toolName = contracts.ToolNameSketchbridge
	}

	return &Server{
		cfg:       cfg,
		deps:      deps,
		registry:  reg,
		transport: adapter,
		allowlist: allowlist,
		toolName:  toolName,
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	s.running = true
	s.mu.Unlock()

	cfg := s.config()
	s.deps.Logger.Info("mcp runtime active", "transport", cfg.MCP.Transport, "tool", s.toolName)

	if err := s.registerDefaultTool(); err != nil {
		return err
	}

	err := s.transport.Start(ctx, s.handleToolCall)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return err
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stopErr error
	if s.running {
		stopErr = s.transport.Stop()
	}
	if s.closed {
		return stopErr
	}
	s.closed = true
	for _, c := range s.deps.Closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && stopErr == nil {
			stopErr = err
		}
	}
	return stopErr
}

func (s *Server) Run(ctx context.Context) error {
	return s.Start(ctx)
}

// ApplyConfig swaps in a reloaded config. Transport and address changes need a restart.
func (s *Server) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	allowlist := BuildOperationAllowlist(cfg)

	s.cfgMu.Lock()
	prev := s.cfg
	s.cfg = cfg
	s.allowlist = allowlist
	s.cfgMu.Unlock()

	if setter, ok := s.transport.(rateLimitSetter); ok {
		setter.SetRateLimit(cfg.MCP.RateLimit)
	}
	if s.deps.Defaults != nil {
		s.deps.Defaults.SetDefaultBounds(cfg.DefaultBounds())
	}
	if prev != nil && (prev.MCP.Transport != cfg.MCP.Transport || prev.MCP.Address != cfg.MCP.Address) {
		s.deps.Logger.Warn("mcp transport change requires restart", "transport", cfg.MCP.Transport, "address", cfg.MCP.Address)
	}
	s.deps.Logger.Info("mcp config applied", "allowlist", len(cfg.MCP.OperationAllowlist), "max_items", cfg.MCP.MaxResponseItems)
}

func (s *Server) config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

func (s *Server) operationAllowed(id contracts.OperationID) bool {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.allowlist.Allows(id)
}

func (s *Server) registerDefaultTool() error {
	if _, ok := s.registry.HandlerFor(s.toolName); ok {
		return nil
	}
	return s.registry.Register(s.toolName, schema.BuildToolDefinitions(s.toolName)[0].Description, func(ctx context.Context, input any) (any, error) {
		raw, ok := input.(map[string]any)
		if !ok {
			return nil, contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: "tool args must be an object"}
		}
		return s.dispatchOperation(ctx, raw)
	})
}

func (s *Server) handleToolCall(ctx context.Context, tool string, raw map[string]any) (any, error) {
	if strings.TrimSpace(tool) == "" {
		return nil, contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: "tool is required"}
	}
	if !strings.EqualFold(tool, s.toolName) && !strings.EqualFold(tool, contracts.ToolNameSketchbridge) {
		return nil, contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: fmt.Sprintf("unsupported tool: %s", tool)}
	}

	handler, ok := s.registry.HandlerFor(s.toolName)
	if !ok {
		return nil, contracts.ToolError{Code: contracts.ErrorUnavailable, Message: "tool handler not registered"}
	}

	timeout := s.config().MCP.RequestTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := handler(ctx, raw)
	if err != nil {
		return nil, toToolError(err)
	}
	return out, nil
}

func (s *Server) dispatchOperation(ctx context.Context, raw map[string]any) (any, error) {
	operation, input, err := validate.ParseToolArgs(contracts.ToolNameSketchbridge, raw)
	if err != nil {
		return nil, err
	}
	if !s.operationAllowed(operation) {
		return nil, contracts.ToolError{Code: contracts.ErrorPermission, Message: fmt.Sprintf("operation not allowlisted: %s", operation)}
	}
	if operation != contracts.OperationImportSketchfab {
		if err := checkParamsSchema(operation, input); err != nil {
			return nil, err
		}
	}

	ctx, span := observability.Tracer.Start(ctx, "mcp.dispatch")
	span.SetAttributes(attribute.String("mcp.operation", string(operation)))
	defer span.End()

	start := time.Now()
	out, status, err := s.route(ctx, operation, input)
	observability.CommandDuration.WithLabelValues(string(operation)).Observe(time.Since(start).Seconds())
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	observability.CommandsTotal.WithLabelValues(string(operation), status).Inc()
	if err != nil {
		return nil, err
	}
	return wrapToolResult(operation, out), nil
}

func (s *Server) route(ctx context.Context, operation contracts.OperationID, input any) (any, string, error) {
	tools := s.deps.Tools
	switch operation {
	case contracts.OperationImportSketchfab:
		out, err := model.HandleImport(ctx, tools, input.(contracts.ImportSketchfabInput))
		return out, out.Status, err
	case contracts.OperationImportStatus:
		out, err := model.HandleStatus(ctx, tools, input.(contracts.ImportStatusInput))
		return out, "ok", err
	case contracts.OperationListImports:
		out, err := model.HandleList(ctx, tools, input.(contracts.ListImportsInput), s.config().MCP.MaxResponseItems)
		return out, "ok", err
	case contracts.OperationSystemHealth:
		out, err := system.HandleHealth(ctx, tools)
		return out, out.Status, err
	default:
		return nil, "", contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: fmt.Sprintf("unsupported operation: %s", operation)}
	}
}

// checkParamsSchema validates parsed params against the advertised schema.
func checkParamsSchema(operation contracts.OperationID, input any) error {
	params := map[string]any{}
	data, err := json.Marshal(input)
	if err == nil {
		_ = json.Unmarshal(data, &params)
	}
	if err := schema.ValidateArgs(map[string]any{"operation": string(operation), "params": params}); err != nil {
		return contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: "params do not match schema", Details: map[string]any{"error": err.Error()}}
	}
	return nil
}

func wrapToolResult(operation contracts.OperationID, payload any) any {
	return map[string]any{
		"version":   contracts.ContractVersion,
		"operation": operation,
		"result":    payload,
	}
}

func toToolError(err error) error {
	var toolErr contracts.ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return contracts.ToolError{Code: contracts.ErrorUnavailable, Message: "request timed out"}
	}

	msg := domainerrors.Message(err)
	code := contracts.ErrorInternal
	switch domainerrors.CodeOf(err) {
	case domainerrors.CodeMissingParameter, domainerrors.CodeMalformedParameter, domainerrors.CodeValidationError:
		code = contracts.ErrorInvalidArgument
	case domainerrors.CodeNotFound:
		code = contracts.ErrorNotFound
	case domainerrors.CodeCollaboratorUnavailable:
		code = contracts.ErrorUnavailable
	}
	return contracts.ToolError{Code: code, Message: msg}
}
