package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sketchbridge/internal/mcp/contracts"
	"sketchbridge/internal/mcp/schema"
	"sketchbridge/internal/mcp/validate"
)

const protocolVersion = "2025-06-18"

type Handler func(ctx context.Context, tool string, raw map[string]any) (any, error)

type Adapter interface {
	Start(ctx context.Context, handler Handler) error
	Stop() error
}

// ServerInfo is what initialize and tools/list report about this server.
type ServerInfo struct {
	Name     string
	Version  string
	ToolName string
}

func (i ServerInfo) toolName() string {
	if i.ToolName == "" {
		return contracts.ToolNameSketchbridge
	}
	return i.ToolName
}

type toolRequest struct {
	ID   any            `json:"id,omitempty"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

type toolResponse struct {
	ID     any                  `json:"id,omitempty"`
	OK     bool                 `json:"ok"`
	Result any                  `json:"result,omitempty"`
	Error  *contracts.ToolError `json:"error,omitempty"`
}

// commandResponse mirrors the editor protocol for {"type": ..., "params": ...} commands.
type commandResponse struct {
	ID     any    `json:"id,omitempty"`
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc,omitempty"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

const (
	rpcMethodNotFound = -32601
	rpcRateLimited    = -32005
)

// dispatch answers one decoded message. A nil response means nothing should be written back.
func dispatch(ctx context.Context, handler Handler, info ServerInfo, raw map[string]any) any {
	if method, _ := raw["method"].(string); method != "" {
		if jsonrpc, _ := raw["jsonrpc"].(string); jsonrpc != "" {
			return handleRPC(ctx, handler, info, raw)
		}
	}

	if args, ok := validate.CommandEnvelope(raw); ok {
		resp := commandResponse{ID: raw["id"]}
		result, err := handler(ctx, info.toolName(), args)
		if err != nil {
			resp.Status = "error"
			resp.Error = normalizeToolError(err).Message
			return resp
		}
		resp.Status = "success"
		resp.Result = unwrapResult(result)
		return resp
	}

	req := parseLegacyToolRequest(raw)
	if req.Tool == "" {
		return toolResponse{ID: req.ID, Error: &contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: "tool is required"}}
	}
	if req.Args == nil {
		req.Args = map[string]any{}
	}
	result, err := handler(ctx, req.Tool, req.Args)
	resp := toolResponse{ID: req.ID}
	if err != nil {
		toolErr := normalizeToolError(err)
		resp.Error = &toolErr
		return resp
	}
	resp.OK = true
	resp.Result = result
	return resp
}

func handleRPC(ctx context.Context, handler Handler, info ServerInfo, raw map[string]any) any {
	req := rpcRequest{
		JSONRPC: raw["jsonrpc"].(string),
		Method:  raw["method"].(string),
		ID:      raw["id"],
		Params:  map[string]any{},
	}
	if params, ok := raw["params"].(map[string]any); ok {
		req.Params = params
	}

	if req.Method == "notifications/initialized" {
		return nil
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    info.Name,
				"version": info.Version,
			},
		}
	case "ping":
		resp.Result = map[string]any{}
	case "tools/list":
		toolDefs := schema.BuildToolDefinitions(info.toolName())
		tools := make([]map[string]any, 0, len(toolDefs))
		for _, def := range toolDefs {
			tools = append(tools, map[string]any{
				"name":        def.Name,
				"description": def.Description,
				"inputSchema": def.InputSchema,
			})
		}
		resp.Result = map[string]any{"tools": tools}
	case "tools/call":
		name, _ := req.Params["name"].(string)
		args, _ := req.Params["arguments"].(map[string]any)
		if args == nil {
			args = map[string]any{}
		}
		result, err := handler(ctx, name, args)
		if err != nil {
			toolErr := normalizeToolError(err)
			resp.Result = map[string]any{
				"isError": true,
				"content": []map[string]any{
					{"type": "text", "text": fmt.Sprintf("%s: %s", toolErr.Code, toolErr.Message)},
				},
			}
		} else {
			resp.Result = map[string]any{
				"isError":           false,
				"structuredContent": result,
				"content": []map[string]any{
					{"type": "text", "text": mustJSONText(result)},
				},
			}
		}
	default:
		resp.Error = &rpcError{Code: rpcMethodNotFound, Message: "Method not found"}
	}
	return resp
}

func rateLimitedResponse(raw map[string]any) any {
	if _, ok := raw["type"].(string); ok {
		return commandResponse{ID: raw["id"], Status: "error", Error: "rate limit exceeded"}
	}
	return rpcResponse{
		JSONRPC: "2.0",
		ID:      raw["id"],
		Error:   &rpcError{Code: rpcRateLimited, Message: "Rate limit exceeded"},
	}
}

func parseLegacyToolRequest(raw map[string]any) toolRequest {
	req := toolRequest{ID: raw["id"]}
	if tool, ok := raw["tool"].(string); ok {
		req.Tool = tool
	}
	if args, ok := raw["args"].(map[string]any); ok {
		req.Args = args
	}
	return req
}

// unwrapResult strips the {version, operation, result} envelope for editor-style replies.
func unwrapResult(v any) any {
	if m, ok := v.(map[string]any); ok {
		if inner, ok := m["result"]; ok {
			return inner
		}
	}
	return v
}

func mustJSONText(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func normalizeToolError(err error) contracts.ToolError {
	var toolErr contracts.ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}
	return contracts.ToolError{Code: contracts.ErrorInternal, Message: err.Error()}
}
