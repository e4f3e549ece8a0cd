package ports

import (
	"context"

	"sketchbridge/internal/engine/geometry"
	"sketchbridge/internal/engine/task"
)

// SketchfabManager is the scene-resident collaborator that owns the search, download and
// placement workflow. SearchModels must return without waiting for that workflow.
type SketchfabManager interface {
	SetSearchKeyword(keyword string)
	SetTargetBounds(bounds geometry.Bounds)
	SearchModels(ctx context.Context, keyword string, bounds geometry.Bounds) (*task.Task, error)
}

// ManagerLocator resolves the manager a command should act on.
type ManagerLocator interface {
	FindManager(ctx context.Context) (SketchfabManager, error)
}

// ManagerLocatorFunc adapts a function to ManagerLocator.
type ManagerLocatorFunc func(ctx context.Context) (SketchfabManager, error)

func (f ManagerLocatorFunc) FindManager(ctx context.Context) (SketchfabManager, error) {
	return f(ctx)
}

// TaskStore persists import task snapshots so their status survives the request that started them.
type TaskStore interface {
	Save(ctx context.Context, snap task.Snapshot) error
	Get(ctx context.Context, id string) (task.Snapshot, error)
	List(ctx context.Context, limit int) ([]task.Snapshot, error)
}

// EditorLink is the command channel into the running editor.
type EditorLink interface {
	SendCommand(ctx context.Context, commandType string, params map[string]any) (map[string]any, error)
	Ping(ctx context.Context) error
}
