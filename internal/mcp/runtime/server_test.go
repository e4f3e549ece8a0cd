package runtime

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"sketchbridge/internal/core/config"
	domainerrors "sketchbridge/internal/core/errors"
	"sketchbridge/internal/engine/geometry"
	"sketchbridge/internal/mcp/contracts"
	"sketchbridge/internal/mcp/registry"
	"sketchbridge/internal/mcp/transport"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.MCP.MaxResponseItems = 10
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, tools *fakeTools, tr transport.Adapter) *Server {
	t.Helper()
	if tr == nil {
		tr = &fakeTransport{}
	}
	server, err := New(cfg, Dependencies{Tools: tools, Defaults: tools}, registry.New(), tr, contracts.ToolNameSketchbridge, BuildOperationAllowlist(cfg))
	require.NoError(t, err)
	require.NoError(t, server.registerDefaultTool())
	return server
}

func TestServer_StartStop(t *testing.T) {
	tools := &fakeTools{}
	var got any
	tr := &fakeTransport{
		startFn: func(ctx context.Context, handler transport.Handler) error {
			out, err := handler(ctx, contracts.ToolNameSketchbridge, map[string]any{
				"operation": "import_sketchfab_model",
				"params":    map[string]any{"keyword": "castle"},
			})
			if err != nil {
				return err
			}
			got = out
			return nil
		},
	}
	closer := &fakeCloser{}
	server, err := New(testConfig(), Dependencies{Tools: tools, Closers: []io.Closer{closer}}, registry.New(), tr, "", OperationAllowlist{allowAll: true})
	require.NoError(t, err)

	require.NoError(t, server.Start(context.Background()))
	result, ok := got.(map[string]any)
	require.True(t, ok, "expected wrapped result map, got %T", got)
	assert.Equal(t, contracts.OperationImportSketchfab, result["operation"])
	assert.Equal(t, contracts.ContractVersion, result["version"])
	out, ok := result["result"].(contracts.ImportSketchfabOutput)
	require.True(t, ok)
	assert.Equal(t, "searching", out.Status)
	assert.Equal(t, "castle", tools.lastImport["keyword"])

	require.NoError(t, server.Stop())
	require.NoError(t, server.Stop())
	assert.Equal(t, 1, closer.calls, "closers run once")
}

func TestServer_RegisterTools(t *testing.T) {
	reg := registry.New()
	server, err := New(testConfig(), Dependencies{Tools: &fakeTools{}}, reg, &fakeTransport{}, contracts.ToolNameSketchbridge, OperationAllowlist{allowAll: true})
	require.NoError(t, err)

	require.NoError(t, server.registerDefaultTool())
	require.NoError(t, server.registerDefaultTool(), "second register should be idempotent")

	if diff := cmp.Diff([]string{contracts.ToolNameSketchbridge}, reg.Tools()); diff != "" {
		t.Fatalf("registered tools mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, reg.Description(contracts.ToolNameSketchbridge), "model.import_sketchfab")
}

func TestServer_HandleToolCall(t *testing.T) {
	tools := &fakeTools{
		status: map[string]contracts.ImportStatusOutput{
			"t1": {Task: contracts.ImportTask{TaskID: "t1", State: "running"}, Active: true},
		},
	}
	server := newTestServer(t, testConfig(), tools, nil)
	ctx := context.Background()

	out, err := server.handleToolCall(ctx, "SketchBridge", map[string]any{
		"operation": "check_sketchfab_import_status",
		"params":    map[string]any{"taskId": "t1"},
	})
	require.NoError(t, err)
	status := out.(map[string]any)["result"].(contracts.ImportStatusOutput)
	assert.True(t, status.Active)

	_, err = server.handleToolCall(ctx, "sketchbridge", map[string]any{
		"operation": "model.import_status",
		"params":    map[string]any{"task_id": "missing"},
	})
	var toolErr contracts.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, contracts.ErrorNotFound, toolErr.Code)

	_, err = server.handleToolCall(ctx, "", nil)
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "tool is required", toolErr.Message)

	_, err = server.handleToolCall(ctx, "other_tool", map[string]any{"operation": "system.health"})
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, contracts.ErrorInvalidArgument, toolErr.Code)

	_, err = server.handleToolCall(ctx, "sketchbridge", map[string]any{"operation": "model.delete"})
	require.ErrorAs(t, err, &toolErr)
	assert.Contains(t, toolErr.Message, "unsupported operation")
}

func TestServer_ListClampsToMaxItems(t *testing.T) {
	tools := &fakeTools{}
	server := newTestServer(t, testConfig(), tools, nil)

	_, err := server.handleToolCall(context.Background(), "sketchbridge", map[string]any{
		"operation": "model.list_imports",
		"params":    map[string]any{"limit": 500},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, tools.lastLimit)
}

func TestServer_ImportErrorsStayInResult(t *testing.T) {
	tools := &fakeTools{importStatus: "error"}
	server := newTestServer(t, testConfig(), tools, nil)

	out, err := server.handleToolCall(context.Background(), "sketchbridge", map[string]any{
		"operation": "model.import_sketchfab",
		"params":    map[string]any{},
	})
	require.NoError(t, err)
	res := out.(map[string]any)["result"].(contracts.ImportSketchfabOutput)
	assert.Equal(t, "error", res.Status)
}

func TestServer_AllowlistAndReload(t *testing.T) {
	cfg := testConfig()
	cfg.MCP.OperationAllowlist = []string{"system.*"}
	tools := &fakeTools{}
	tr := &fakeTransport{}
	server := newTestServer(t, cfg, tools, tr)
	ctx := context.Background()

	_, err := server.handleToolCall(ctx, "sketchbridge", map[string]any{"operation": "model.list_imports"})
	var toolErr contracts.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, contracts.ErrorPermission, toolErr.Code)

	_, err = server.handleToolCall(ctx, "sketchbridge", map[string]any{"operation": "ping"})
	require.NoError(t, err)

	next := testConfig()
	next.MCP.RateLimit = config.RateLimit{RequestsPerSecond: 7, Burst: 3}
	next.Sketchfab.DefaultBounds = &config.BoundsConfig{Center: geometry.Vec3(0, 1, 0), Size: geometry.Vec3(4, 4, 4)}
	server.ApplyConfig(next)

	_, err = server.handleToolCall(ctx, "sketchbridge", map[string]any{"operation": "model.list_imports"})
	require.NoError(t, err)
	assert.Equal(t, config.RateLimit{RequestsPerSecond: 7, Burst: 3}, tr.rateLimit)
	assert.Equal(t, geometry.Vec3(4, 4, 4), tools.defaults.Size)
}

func TestServer_RequestTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.MCP.RequestTimeout = 20 * time.Millisecond
	tools := &fakeTools{block: true}
	server := newTestServer(t, cfg, tools, nil)

	_, err := server.handleToolCall(context.Background(), "sketchbridge", map[string]any{"operation": "model.list_imports"})
	var toolErr contracts.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, contracts.ErrorUnavailable, toolErr.Code)
	assert.Equal(t, "request timed out", toolErr.Message)
}

func TestToToolError(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{domainerrors.New(domainerrors.CodeMissingParameter, "keyword is required"), contracts.ErrorInvalidArgument},
		{domainerrors.New(domainerrors.CodeMalformedParameter, "bounds.sizeX must be a number"), contracts.ErrorInvalidArgument},
		{domainerrors.New(domainerrors.CodeNotFound, "import task not found: x"), contracts.ErrorNotFound},
		{domainerrors.New(domainerrors.CodeCollaboratorUnavailable, "no SketchfabManager in scene"), contracts.ErrorUnavailable},
		{domainerrors.New(domainerrors.CodeDelegatedFailure, "boom"), contracts.ErrorInternal},
		{errors.New("plain"), contracts.ErrorInternal},
		{context.DeadlineExceeded, contracts.ErrorUnavailable},
		{contracts.ToolError{Code: contracts.ErrorPermission, Message: "no"}, contracts.ErrorPermission},
	}
	for _, tc := range cases {
		var toolErr contracts.ToolError
		require.ErrorAs(t, toToolError(tc.err), &toolErr)
		assert.Equal(t, tc.code, toolErr.Code, "error %v", tc.err)
	}
	var toolErr contracts.ToolError
	require.ErrorAs(t, toToolError(domainerrors.New(domainerrors.CodeNotFound, "import task not found: x")), &toolErr)
	assert.Equal(t, "import task not found: x", toolErr.Message)
}

type fakeCloser struct{ calls int }

func (f *fakeCloser) Close() error {
	f.calls++
	return nil
}

type fakeTools struct {
	mu           sync.Mutex
	importStatus string
	lastImport   contracts.ImportSketchfabInput
	lastLimit    int
	status       map[string]contracts.ImportStatusOutput
	defaults     geometry.Bounds
	block        bool
}

func (f *fakeTools) ImportSketchfabModel(_ context.Context, in contracts.ImportSketchfabInput) contracts.ImportSketchfabOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastImport = in
	status := f.importStatus
	if status == "" {
		status = "searching"
	}
	return contracts.ImportSketchfabOutput{Message: "ok", Status: status}
}

func (f *fakeTools) ImportStatus(_ context.Context, taskID string) (contracts.ImportStatusOutput, error) {
	if out, ok := f.status[taskID]; ok {
		return out, nil
	}
	return contracts.ImportStatusOutput{}, domainerrors.New(domainerrors.CodeNotFound, "import task not found: "+taskID)
}

func (f *fakeTools) ListImports(ctx context.Context, limit int) (contracts.ListImportsOutput, error) {
	if f.block {
		<-ctx.Done()
		return contracts.ListImportsOutput{}, ctx.Err()
	}
	f.mu.Lock()
	f.lastLimit = limit
	f.mu.Unlock()
	return contracts.ListImportsOutput{Imports: []contracts.ImportTask{}}, nil
}

func (f *fakeTools) Health(context.Context) contracts.SystemHealthOutput {
	return contracts.SystemHealthOutput{Status: contracts.HealthOK}
}

func (f *fakeTools) SetDefaultBounds(b geometry.Bounds) {
	f.mu.Lock()
	f.defaults = b
	f.mu.Unlock()
}

type fakeTransport struct {
	startFn   func(ctx context.Context, handler transport.Handler) error
	stopFn    func() error
	rateLimit config.RateLimit
}

func (f *fakeTransport) Start(ctx context.Context, handler transport.Handler) error {
	if f.startFn != nil {
		return f.startFn(ctx, handler)
	}
	return nil
}

func (f *fakeTransport) Stop() error {
	if f.stopFn != nil {
		return f.stopFn()
	}
	return nil
}

func (f *fakeTransport) SetRateLimit(cfg config.RateLimit) {
	f.rateLimit = cfg
}
