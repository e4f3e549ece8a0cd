// Package sketchfab turns import commands into calls on the scene's SketchfabManager.
//
// The adapter validates the command, resolves the manager through an injected locator,
// records the keyword and target bounds on it and starts the search. It never waits for the
// import itself and never returns an error: every failure becomes an error Result.
package sketchfab

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync"

	"sketchbridge/internal/core/errors"
	"sketchbridge/internal/core/ports"
	"sketchbridge/internal/engine/geometry"
	"sketchbridge/internal/engine/task"
	"sketchbridge/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Status string

const (
	StatusSearching Status = "searching"
	StatusError     Status = "error"
)

type Result struct {
	Message string `json:"message"`
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
}

type Adapter struct {
	locator ports.ManagerLocator
	logger  *slog.Logger

	mu       sync.RWMutex
	defaults geometry.Bounds
}

type Option func(*Adapter)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithDefaultBounds overrides the volume used when a request has no bounds.
func WithDefaultBounds(b geometry.Bounds) Option {
	return func(a *Adapter) {
		a.defaults = b
	}
}

func NewAdapter(locator ports.ManagerLocator, opts ...Option) (*Adapter, error) {
	if locator == nil {
		return nil, fmt.Errorf("manager locator is required")
	}
	a := &Adapter{
		locator:  locator,
		logger:   slog.Default(),
		defaults: geometry.DefaultBounds(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) DefaultBounds() geometry.Bounds {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.defaults
}

func (a *Adapter) SetDefaultBounds(b geometry.Bounds) {
	a.mu.Lock()
	a.defaults = b
	a.mu.Unlock()
}

// ImportSketchfabModel starts a search-and-import for req["keyword"] inside req["bounds"].
func (a *Adapter) ImportSketchfabModel(ctx context.Context, req Request) Result {
	ctx, span := observability.Tracer.Start(ctx, "sketchfab.ImportSketchfabModel")
	defer span.End()

	started, err := a.startImport(ctx, span, req)
	if err != nil {
		code := errors.CodeOf(err)
		if code == "" {
			code = errors.CodeInternal
		}
		detail := errors.Message(err)
		a.logger.Error("import sketchfab model failed", "code", code, "error", err)
		observability.ImportFailuresTotal.WithLabelValues(string(code)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, detail)
		return Result{
			Message: fmt.Sprintf("Failed to import Sketchfab model: %s", detail),
			Status:  StatusError,
			Error:   detail,
		}
	}

	res := Result{
		Message: fmt.Sprintf("Searching Sketchfab and importing models for keyword '%s'", started.keyword),
		Status:  StatusSearching,
	}
	if started.task != nil {
		res.TaskID = started.task.ID()
	}
	a.logger.Info("sketchfab search started", "keyword", started.keyword, "bounds", started.bounds.String(), "task_id", res.TaskID)
	return res
}

type startedImport struct {
	keyword string
	bounds  geometry.Bounds
	task    *task.Task
}

func (a *Adapter) startImport(ctx context.Context, span trace.Span, req Request) (startedImport, error) {
	if req == nil {
		req = Request{}
	}

	keyword, err := extractKeyword(req)
	if err != nil {
		return startedImport{}, err
	}
	bounds, err := extractBounds(req, a.DefaultBounds())
	if err != nil {
		return startedImport{}, errors.AddContext(err, errors.CtxKeyword, keyword)
	}
	span.SetAttributes(
		attribute.String("sketchfab.keyword", keyword),
		attribute.String("sketchfab.bounds", bounds.String()),
	)

	manager, err := a.locator.FindManager(ctx)
	if err != nil {
		if errors.IsCode(err, errors.CodeCollaboratorUnavailable) {
			return startedImport{}, err
		}
		return startedImport{}, errors.Wrap(err, errors.CodeCollaboratorUnavailable, "locate SketchfabManager")
	}
	if isNilManager(manager) {
		return startedImport{}, errors.New(errors.CodeCollaboratorUnavailable, "no SketchfabManager found in the current scene")
	}

	t, err := a.delegate(ctx, manager, keyword, bounds)
	if err != nil {
		return startedImport{}, errors.AddContext(errors.Wrap(err, errors.CodeDelegatedFailure, ""), errors.CtxKeyword, keyword)
	}
	return startedImport{keyword: keyword, bounds: bounds, task: t}, nil
}

// delegate records the keyword and bounds on m and starts the search. A panic in any of the
// three manager calls comes back as an ordinary error.
func (a *Adapter) delegate(ctx context.Context, m ports.SketchfabManager, keyword string, bounds geometry.Bounds) (t *task.Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			t = nil
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
			a.logger.Error("sketchfab manager panicked", "keyword", keyword, "error", err, "stack", string(debug.Stack()))
		}
	}()
	m.SetSearchKeyword(keyword)
	m.SetTargetBounds(bounds)
	return m.SearchModels(ctx, keyword, bounds)
}

func isNilManager(m ports.SketchfabManager) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
