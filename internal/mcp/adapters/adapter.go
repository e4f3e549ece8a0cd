// Package adapters bridges MCP contracts to the import engine, the task store and the editor link.
package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sketchbridge/internal/core/ports"
	"sketchbridge/internal/engine/sketchfab"
	"sketchbridge/internal/engine/task"
	"sketchbridge/internal/mcp/contracts"
	"sketchbridge/internal/shared/util"
	"sketchbridge/internal/shared/version"
)

const healthPingTimeout = 2 * time.Second

type Importer interface {
	ImportSketchfabModel(ctx context.Context, req sketchfab.Request) sketchfab.Result
}

// ActiveTracker exposes imports that are still running in this process.
type ActiveTracker interface {
	Active(id string) (*task.Task, bool)
	ActiveCount() int
}

type SceneInspector interface {
	ManagerCount() int
}

type Options struct {
	Importer     Importer
	Tasks        ports.TaskStore
	Scene        SceneInspector
	Link         ports.EditorLink
	Tracker      ActiveTracker
	UnityAddress string
	StoreKind    string
}

type Adapter struct {
	importer     Importer
	tasks        ports.TaskStore
	scene        SceneInspector
	link         ports.EditorLink
	tracker      ActiveTracker
	unityAddress string
	storeKind    string
}

func NewAdapter(opts Options) (*Adapter, error) {
	if opts.Importer == nil {
		return nil, fmt.Errorf("importer is required")
	}
	if opts.Tasks == nil {
		return nil, fmt.Errorf("task store is required")
	}
	kind := strings.TrimSpace(opts.StoreKind)
	if kind == "" {
		kind = "memory"
	}
	return &Adapter{
		importer:     opts.Importer,
		tasks:        opts.Tasks,
		scene:        opts.Scene,
		link:         opts.Link,
		tracker:      opts.Tracker,
		unityAddress: opts.UnityAddress,
		storeKind:    kind,
	}, nil
}

func (a *Adapter) ImportSketchfabModel(ctx context.Context, in contracts.ImportSketchfabInput) contracts.ImportSketchfabOutput {
	res := a.importer.ImportSketchfabModel(ctx, sketchfab.Request(in))
	return contracts.ImportSketchfabOutput{
		Message: res.Message,
		Status:  string(res.Status),
		Error:   res.Error,
		TaskID:  res.TaskID,
	}
}

// ImportStatus prefers the live task over the stored snapshot, which may lag behind it.
func (a *Adapter) ImportStatus(ctx context.Context, taskID string) (contracts.ImportStatusOutput, error) {
	if err := ctx.Err(); err != nil {
		return contracts.ImportStatusOutput{}, err
	}
	if a.tracker != nil {
		if t, ok := a.tracker.Active(taskID); ok {
			return contracts.ImportStatusOutput{Task: toImportTask(t.Snapshot()), Active: true}, nil
		}
	}
	snap, err := a.tasks.Get(ctx, taskID)
	if err != nil {
		return contracts.ImportStatusOutput{}, err
	}
	return contracts.ImportStatusOutput{Task: toImportTask(snap)}, nil
}

func (a *Adapter) ListImports(ctx context.Context, limit int) (contracts.ListImportsOutput, error) {
	if err := ctx.Err(); err != nil {
		return contracts.ListImportsOutput{}, err
	}
	snaps, err := a.tasks.List(ctx, limit)
	if err != nil {
		return contracts.ListImportsOutput{}, err
	}
	out := make([]contracts.ImportTask, 0, len(snaps))
	for _, snap := range snaps {
		if a.tracker != nil {
			if live, ok := a.tracker.Active(snap.ID); ok {
				snap = live.Snapshot()
			}
		}
		out = append(out, toImportTask(snap))
	}
	return contracts.ListImportsOutput{Count: len(out), Imports: out}, nil
}

func (a *Adapter) Health(ctx context.Context) contracts.SystemHealthOutput {
	out := contracts.SystemHealthOutput{
		Status:      contracts.HealthOK,
		Version:     version.Version,
		Store:       contracts.StoreHealth{Kind: a.storeKind, OK: true},
		HeapAllocMB: util.GetHeapAllocMB(),
	}

	if a.scene != nil {
		out.SceneManagers = a.scene.ManagerCount()
	}
	if a.tracker != nil {
		out.ActiveImports = a.tracker.ActiveCount()
	}

	if _, err := a.tasks.List(ctx, 1); err != nil {
		out.Store.OK = false
		out.Store.Error = err.Error()
		out.Status = contracts.HealthDegraded
	}

	if a.link != nil {
		out.Unity.Enabled = true
		out.Unity.Address = a.unityAddress
		pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
		err := a.link.Ping(pingCtx)
		cancel()
		if err != nil {
			out.Unity.Error = err.Error()
			out.Status = contracts.HealthDegraded
		} else {
			out.Unity.Reachable = true
		}
	}
	if out.SceneManagers == 0 {
		out.Status = contracts.HealthDegraded
	}
	return out
}

func toImportTask(snap task.Snapshot) contracts.ImportTask {
	return contracts.ImportTask{
		TaskID:  snap.ID,
		Keyword: snap.Keyword,
		Bounds: contracts.BoundsView{
			CenterX: snap.Bounds.Center.X,
			CenterY: snap.Bounds.Center.Y,
			CenterZ: snap.Bounds.Center.Z,
			SizeX:   snap.Bounds.Size.X,
			SizeY:   snap.Bounds.Size.Y,
			SizeZ:   snap.Bounds.Size.Z,
		},
		State:        string(snap.State),
		Progress:     snap.Progress,
		ModelName:    snap.ModelName,
		RemoteTaskID: snap.RemoteTaskID,
		Message:      snap.Message,
		Error:        snap.Error,
		CreatedAt:    snap.CreatedAt,
		UpdatedAt:    snap.UpdatedAt,
	}
}
