package sketchfab

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"sketchbridge/internal/core/errors"
	"sketchbridge/internal/core/ports"
	"sketchbridge/internal/engine/geometry"
	"sketchbridge/internal/engine/scene"
	"sketchbridge/internal/engine/task"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchCall struct {
	Keyword string
	Bounds  geometry.Bounds
}

type fakeManager struct {
	keyword     string
	bounds      geometry.Bounds
	mutations   int
	calls       []searchCall
	err         error
	panicWith   any
	setterPanic any
	tasks       []*task.Task
}

func (m *fakeManager) SetSearchKeyword(keyword string) {
	if m.setterPanic != nil {
		panic(m.setterPanic)
	}
	m.keyword = keyword
	m.mutations++
}

func (m *fakeManager) SetTargetBounds(bounds geometry.Bounds) {
	m.bounds = bounds
	m.mutations++
}

func (m *fakeManager) SearchModels(_ context.Context, keyword string, bounds geometry.Bounds) (*task.Task, error) {
	m.calls = append(m.calls, searchCall{Keyword: keyword, Bounds: bounds})
	if m.panicWith != nil {
		panic(m.panicWith)
	}
	if m.err != nil {
		return nil, m.err
	}
	t := task.New(keyword, bounds)
	m.tasks = append(m.tasks, t)
	return t, nil
}

// handoffManager finishes each task on a goroutine that waits for release.
type handoffManager struct {
	release chan struct{}
	started chan *task.Task
}

func (m *handoffManager) SetSearchKeyword(string)         {}
func (m *handoffManager) SetTargetBounds(geometry.Bounds) {}

func (m *handoffManager) SearchModels(_ context.Context, keyword string, bounds geometry.Bounds) (*task.Task, error) {
	t := task.New(keyword, bounds)
	go func() {
		<-m.release
		t.Complete("Old Castle", "model imported")
	}()
	m.started <- t
	return t, nil
}

func newTestAdapter(t *testing.T, objects ...any) (*Adapter, *bytes.Buffer) {
	t.Helper()
	s := scene.New()
	for _, obj := range objects {
		s.Register(obj)
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a, err := NewAdapter(s, WithLogger(logger))
	require.NoError(t, err)
	return a, &logs
}

func TestImportSketchfabModel_DefaultBounds(t *testing.T) {
	m := &fakeManager{}
	a, _ := newTestAdapter(t, m)

	res := a.ImportSketchfabModel(context.Background(), Request{"keyword": "castle"})

	assert.Equal(t, StatusSearching, res.Status)
	assert.Contains(t, res.Message, "castle")
	assert.Empty(t, res.Error)
	require.Len(t, m.calls, 1)

	want := searchCall{
		Keyword: "castle",
		Bounds:  geometry.NewBounds(geometry.Vec3(0, 0, 0), geometry.Vec3(2, 2, 2)),
	}
	if diff := cmp.Diff(want, m.calls[0]); diff != "" {
		t.Fatalf("search call mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "castle", m.keyword)
	assert.Equal(t, want.Bounds, m.bounds)
	require.Len(t, m.tasks, 1)
	assert.Equal(t, m.tasks[0].ID(), res.TaskID)
}

func TestImportSketchfabModel_ExplicitBounds(t *testing.T) {
	m := &fakeManager{}
	a, _ := newTestAdapter(t, m)

	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{
		"keyword": "car",
		"bounds": {"centerX": 1, "centerY": 2, "centerZ": 3, "sizeX": 4, "sizeY": 5, "sizeZ": 6}
	}`), &req))

	res := a.ImportSketchfabModel(context.Background(), req)

	require.Equal(t, StatusSearching, res.Status, res.Error)
	require.Len(t, m.calls, 1)
	want := geometry.NewBounds(geometry.Vec3(1, 2, 3), geometry.Vec3(4, 5, 6))
	if diff := cmp.Diff(want, m.calls[0].Bounds); diff != "" {
		t.Fatalf("bounds mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, want, m.bounds)
}

func TestImportSketchfabModel_MissingKeyword(t *testing.T) {
	cases := []struct {
		name string
		req  Request
	}{
		{name: "nil request", req: nil},
		{name: "absent", req: Request{"bounds": map[string]any{}}},
		{name: "null", req: Request{"keyword": nil}},
		{name: "number", req: Request{"keyword": 42.0}},
		{name: "object", req: Request{"keyword": map[string]any{"q": "car"}}},
		{name: "blank", req: Request{"keyword": "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &fakeManager{}
			a, logs := newTestAdapter(t, m)

			res := a.ImportSketchfabModel(context.Background(), tc.req)

			assert.Equal(t, StatusError, res.Status)
			assert.NotEmpty(t, res.Error)
			assert.Contains(t, res.Message, res.Error)
			assert.Empty(t, m.calls, "manager must not be invoked")
			assert.Zero(t, m.mutations, "manager must not be mutated")
			assert.Contains(t, logs.String(), string(errors.CodeMissingParameter))
		})
	}
}

func TestImportSketchfabModel_MalformedBounds(t *testing.T) {
	full := func() map[string]any {
		return map[string]any{"centerX": 1.0, "centerY": 2.0, "centerZ": 3.0, "sizeX": 4.0, "sizeY": 5.0, "sizeZ": 6.0}
	}
	type boundsCase struct {
		name   string
		bounds any
		field  string
	}
	cases := []boundsCase{
		{name: "not an object", bounds: "1,2,3", field: "bounds"},
		{name: "array", bounds: []any{1.0, 2.0}, field: "bounds"},
	}
	for _, field := range geometry.FieldNames {
		missing := full()
		delete(missing, field)
		cases = append(cases, boundsCase{name: "missing " + field, bounds: missing, field: field})

		text := full()
		text[field] = "seven"
		cases = append(cases, boundsCase{name: "string " + field, bounds: text, field: field})

		null := full()
		null[field] = nil
		cases = append(cases, boundsCase{name: "null " + field, bounds: null, field: field})
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &fakeManager{}
			a, logs := newTestAdapter(t, m)

			res := a.ImportSketchfabModel(context.Background(), Request{"keyword": "tree", "bounds": tc.bounds})

			assert.Equal(t, StatusError, res.Status)
			assert.Contains(t, res.Error, tc.field)
			assert.Empty(t, m.calls)
			assert.Zero(t, m.mutations)
			assert.Contains(t, logs.String(), string(errors.CodeMalformedParameter))
		})
	}
}

func TestImportSketchfabModel_NullBoundsUsesDefault(t *testing.T) {
	m := &fakeManager{}
	a, _ := newTestAdapter(t, m)

	res := a.ImportSketchfabModel(context.Background(), Request{"keyword": "rock", "bounds": nil})

	require.Equal(t, StatusSearching, res.Status)
	require.Len(t, m.calls, 1)
	assert.Equal(t, geometry.DefaultBounds(), m.calls[0].Bounds)
}

func TestImportSketchfabModel_ConfiguredDefaultBounds(t *testing.T) {
	m := &fakeManager{}
	a, _ := newTestAdapter(t, m)
	custom := geometry.NewBounds(geometry.Vec3(-10, 10, 0), geometry.Vec3(1, 1, 1))
	a.SetDefaultBounds(custom)

	res := a.ImportSketchfabModel(context.Background(), Request{"keyword": "lamp"})

	require.Equal(t, StatusSearching, res.Status)
	require.Len(t, m.calls, 1)
	assert.Equal(t, custom, m.calls[0].Bounds)
}

func TestImportSketchfabModel_NoManager(t *testing.T) {
	a, logs := newTestAdapter(t, struct{ name string }{name: "Main Camera"})

	res := a.ImportSketchfabModel(context.Background(), Request{"keyword": "castle"})

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "SketchfabManager")
	assert.Empty(t, res.TaskID)
	assert.Contains(t, logs.String(), string(errors.CodeCollaboratorUnavailable))
}

func TestImportSketchfabModel_LocatorError(t *testing.T) {
	locator := ports.ManagerLocatorFunc(func(context.Context) (ports.SketchfabManager, error) {
		return nil, stderrors.New("editor is reloading assemblies")
	})
	a, err := NewAdapter(locator)
	require.NoError(t, err)

	res := a.ImportSketchfabModel(context.Background(), Request{"keyword": "castle"})

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "editor is reloading assemblies")
}

func TestImportSketchfabModel_NilManagerFromLocator(t *testing.T) {
	locator := ports.ManagerLocatorFunc(func(context.Context) (ports.SketchfabManager, error) {
		return nil, nil
	})
	a, err := NewAdapter(locator)
	require.NoError(t, err)

	res := a.ImportSketchfabModel(context.Background(), Request{"keyword": "castle"})
	assert.Equal(t, StatusError, res.Status)
}

func TestImportSketchfabModel_DelegatedFailure(t *testing.T) {
	m := &fakeManager{err: stderrors.New("Sketchfab API token is not configured")}
	a, logs := newTestAdapter(t, m)

	res := a.ImportSketchfabModel(context.Background(), Request{"keyword": "castle"})

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "Sketchfab API token is not configured", res.Error)
	assert.True(t, strings.HasSuffix(res.Message, res.Error))
	assert.Len(t, m.calls, 1)
	assert.Contains(t, logs.String(), string(errors.CodeDelegatedFailure))
}

func TestImportSketchfabModel_DelegatedPanic(t *testing.T) {
	m := &fakeManager{panicWith: "nil reference in download queue"}
	a, logs := newTestAdapter(t, m)

	res := a.ImportSketchfabModel(context.Background(), Request{"keyword": "castle"})

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "nil reference in download queue", res.Error)
	assert.Contains(t, logs.String(), "sketchfab manager panicked")
	assert.Contains(t, logs.String(), "stack=")
	assert.Contains(t, logs.String(), "runtime/debug.Stack")
}

func TestImportSketchfabModel_SetterPanic(t *testing.T) {
	m := &fakeManager{setterPanic: "searchKeyword setter is read-only"}
	a, logs := newTestAdapter(t, m)

	var res Result
	require.NotPanics(t, func() {
		res = a.ImportSketchfabModel(context.Background(), Request{"keyword": "castle"})
	})

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "searchKeyword setter is read-only", res.Error)
	assert.Empty(t, m.calls, "search must not start after a failed setter")
	assert.Contains(t, logs.String(), string(errors.CodeDelegatedFailure))
}

func TestImportSketchfabModel_TypedNilManager(t *testing.T) {
	var typedNil *fakeManager

	t.Run("registered in scene", func(t *testing.T) {
		a, logs := newTestAdapter(t, typedNil)

		var res Result
		require.NotPanics(t, func() {
			res = a.ImportSketchfabModel(context.Background(), Request{"keyword": "castle"})
		})
		assert.Equal(t, StatusError, res.Status)
		assert.Contains(t, logs.String(), string(errors.CodeCollaboratorUnavailable))
	})

	t.Run("returned by locator", func(t *testing.T) {
		locator := ports.ManagerLocatorFunc(func(context.Context) (ports.SketchfabManager, error) {
			return typedNil, nil
		})
		var logs bytes.Buffer
		a, err := NewAdapter(locator, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
		require.NoError(t, err)

		var res Result
		require.NotPanics(t, func() {
			res = a.ImportSketchfabModel(context.Background(), Request{"keyword": "castle"})
		})
		assert.Equal(t, StatusError, res.Status)
		assert.Contains(t, logs.String(), string(errors.CodeCollaboratorUnavailable))
	})
}

func TestImportSketchfabModel_KeywordPassedUnchanged(t *testing.T) {
	m := &fakeManager{}
	a, _ := newTestAdapter(t, m)

	res := a.ImportSketchfabModel(context.Background(), Request{"keyword": "  castle  "})

	require.Equal(t, StatusSearching, res.Status, res.Error)
	require.Len(t, m.calls, 1)
	assert.Equal(t, "  castle  ", m.calls[0].Keyword)
	assert.Equal(t, "  castle  ", m.keyword)
}

func TestImportSketchfabModel_DoesNotWaitForImport(t *testing.T) {
	m := &handoffManager{release: make(chan struct{}), started: make(chan *task.Task, 1)}
	a, _ := newTestAdapter(t, m)
	t.Cleanup(func() {
		select {
		case <-m.release:
		default:
			close(m.release)
		}
	})

	results := make(chan Result, 1)
	go func() {
		results <- a.ImportSketchfabModel(context.Background(), Request{"keyword": "castle"})
	}()

	var res Result
	select {
	case res = <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("adapter blocked on an import that has not finished")
	}
	require.Equal(t, StatusSearching, res.Status, res.Error)

	tk := <-m.started
	select {
	case <-tk.Done():
		t.Fatal("import finished before it was released")
	default:
	}
	assert.Equal(t, tk.ID(), res.TaskID)

	close(m.release)
	select {
	case <-tk.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("import did not finish after release")
	}
	assert.Equal(t, task.StateCompleted, tk.Snapshot().State)
}

func TestNewAdapter_RequiresLocator(t *testing.T) {
	_, err := NewAdapter(nil)
	require.Error(t, err)
}

func TestResultJSONShape(t *testing.T) {
	ok, err := json.Marshal(Result{Message: "m", Status: StatusSearching})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"m","status":"searching"}`, string(ok))

	failed, err := json.Marshal(Result{Message: "m", Status: StatusError, Error: "e"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"m","status":"error","error":"e"}`, string(failed))
}
