package unity

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"sketchbridge/internal/core/errors"
	"sketchbridge/internal/data/tasks"
	"sketchbridge/internal/engine/geometry"
	"sketchbridge/internal/engine/task"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, addr string, cfg ManagerConfig) (*Manager, *tasks.MemoryStore) {
	t.Helper()
	store := tasks.NewMemoryStore()
	m, err := NewManager(NewClient(ClientConfig{Address: addr, CommandTimeout: time.Second}), store, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, store
}

func waitDone(t *testing.T, tk *task.Task) task.Snapshot {
	t.Helper()
	select {
	case <-tk.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("task %s did not finish; last snapshot %+v", tk.ID(), tk.Snapshot())
	}
	return tk.Snapshot()
}

func TestManager_ImportPollsUntilComplete(t *testing.T) {
	var polls atomic.Int32
	editor := newFakeEditor(t, func(cmd command) any {
		switch cmd.Type {
		case CommandImportSketchfab:
			return success(map[string]any{"taskId": "remote-7"})
		case CommandCheckImportStatus:
			if polls.Add(1) < 3 {
				return success(map[string]any{"completed": false, "progress": 40.0})
			}
			return success(map[string]any{"completed": true, "modelInfo": map[string]any{"name": "Old Castle"}})
		}
		return failure("unexpected command")
	})
	m, store := newTestManager(t, editor.Address(), ManagerConfig{PollInterval: 10 * time.Millisecond, MaxPolls: 10})

	bounds := geometry.NewBounds(geometry.Vec3(1, 2, 3), geometry.Vec3(4, 5, 6))
	tk, err := m.SearchModels(context.Background(), "castle", bounds)
	require.NoError(t, err)

	snap := waitDone(t, tk)
	assert.Equal(t, task.StateCompleted, snap.State)
	assert.Equal(t, "Old Castle", snap.ModelName)
	assert.Equal(t, "remote-7", snap.RemoteTaskID)
	assert.Equal(t, 100, snap.Progress)

	cmds := editor.Commands()
	require.GreaterOrEqual(t, len(cmds), 4)
	assert.Equal(t, CommandImportSketchfab, cmds[0].Type)
	assert.Equal(t, "castle", cmds[0].Params["keyword"])
	sent, ok := cmds[0].Params["bounds"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 4.0, sent["sizeX"])
	assert.Equal(t, "remote-7", cmds[1].Params["taskId"])

	require.Eventually(t, func() bool {
		stored, err := store.Get(context.Background(), tk.ID())
		return err == nil && stored.State == task.StateCompleted
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return m.ActiveCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestManager_ImportWithoutRemoteTaskID(t *testing.T) {
	editor := newFakeEditor(t, func(command) any {
		return success(map[string]any{"message": "searching"})
	})
	m, _ := newTestManager(t, editor.Address(), ManagerConfig{PollInterval: 10 * time.Millisecond})

	tk, err := m.SearchModels(context.Background(), "tree", geometry.DefaultBounds())
	require.NoError(t, err)

	snap := waitDone(t, tk)
	assert.Equal(t, task.StateCompleted, snap.State)
	assert.Equal(t, "searching", snap.Message)
	assert.Len(t, editor.Commands(), 1)
}

func TestManager_EditorRejectsImport(t *testing.T) {
	editor := newFakeEditor(t, func(command) any {
		return failure("Sketchfab API token missing")
	})
	m, store := newTestManager(t, editor.Address(), ManagerConfig{PollInterval: 10 * time.Millisecond})

	tk, err := m.SearchModels(context.Background(), "car", geometry.DefaultBounds())
	require.NoError(t, err, "editor failures are asynchronous")

	snap := waitDone(t, tk)
	assert.Equal(t, task.StateFailed, snap.State)
	assert.Contains(t, snap.Error, "Sketchfab API token missing")

	require.Eventually(t, func() bool {
		stored, err := store.Get(context.Background(), tk.ID())
		return err == nil && stored.State == task.StateFailed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_StatusReportsError(t *testing.T) {
	editor := newFakeEditor(t, func(cmd command) any {
		if cmd.Type == CommandImportSketchfab {
			return success(map[string]any{"taskId": "r1"})
		}
		return success(map[string]any{"error": "download failed: 404"})
	})
	m, _ := newTestManager(t, editor.Address(), ManagerConfig{PollInterval: 5 * time.Millisecond})

	tk, err := m.SearchModels(context.Background(), "lamp", geometry.DefaultBounds())
	require.NoError(t, err)
	snap := waitDone(t, tk)
	assert.Equal(t, task.StateFailed, snap.State)
	assert.Contains(t, snap.Error, "download failed: 404")
}

func TestManager_PollBudgetExhausted(t *testing.T) {
	editor := newFakeEditor(t, func(cmd command) any {
		if cmd.Type == CommandImportSketchfab {
			return success(map[string]any{"taskId": "slow"})
		}
		return success(map[string]any{"completed": false, "progress": 5.0})
	})
	m, _ := newTestManager(t, editor.Address(), ManagerConfig{PollInterval: 5 * time.Millisecond, MaxPolls: 3})

	tk, err := m.SearchModels(context.Background(), "ship", geometry.DefaultBounds())
	require.NoError(t, err)
	snap := waitDone(t, tk)
	assert.Equal(t, task.StateFailed, snap.State)
	assert.Contains(t, snap.Error, "3 status checks")
	assert.Len(t, editor.Commands(), 4)
}

func TestManager_CloseCancelsInFlight(t *testing.T) {
	editor := newFakeEditor(t, func(cmd command) any {
		if cmd.Type == CommandImportSketchfab {
			return success(map[string]any{"taskId": "forever"})
		}
		return success(map[string]any{"completed": false})
	})
	m, _ := newTestManager(t, editor.Address(), ManagerConfig{PollInterval: time.Hour, MaxPolls: 1})

	tk, err := m.SearchModels(context.Background(), "bridge", geometry.DefaultBounds())
	require.NoError(t, err)
	require.NoError(t, m.Close())

	snap := waitDone(t, tk)
	assert.Equal(t, task.StateFailed, snap.State)

	_, err = m.SearchModels(context.Background(), "bridge", geometry.DefaultBounds())
	assert.True(t, errors.IsCode(err, errors.CodeCollaboratorUnavailable))
}

func TestManager_FieldsAndValidation(t *testing.T) {
	m, err := NewManager(NewClient(ClientConfig{}), nil, ManagerConfig{}, nil)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, geometry.DefaultBounds(), m.TargetBounds())
	m.SetSearchKeyword("castle")
	m.SetTargetBounds(geometry.NewBounds(geometry.Vec3(1, 1, 1), geometry.Vec3(3, 3, 3)))
	assert.Equal(t, "castle", m.SearchKeyword())
	assert.Equal(t, geometry.Vec3(3, 3, 3), m.TargetBounds().Size)

	_, err = m.SearchModels(context.Background(), "  ", geometry.DefaultBounds())
	assert.True(t, errors.IsCode(err, errors.CodeMissingParameter))

	_, err = NewManager(nil, nil, ManagerConfig{}, nil)
	assert.Error(t, err)
}
