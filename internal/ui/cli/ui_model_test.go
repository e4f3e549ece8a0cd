package cli

import (
	"context"
	"strings"
	"testing"
	"time"

	"sketchbridge/internal/data/tasks"
	"sketchbridge/internal/engine/geometry"
	"sketchbridge/internal/engine/task"

	tea "github.com/charmbracelet/bubbletea"
)

func TestModel_RefreshAndDetail(t *testing.T) {
	m := initialModel(nil, 10, time.Second)

	now := time.Now()
	updated, _ := m.Update(importsMsg{
		snaps: []task.Snapshot{
			{ID: "a1", Keyword: "castle", State: task.StateDownloading, Progress: 40, RemoteTaskID: "r-1", Bounds: geometry.DefaultBounds(), UpdatedAt: now},
			{ID: "b2", Keyword: "tree", State: task.StateFailed, Error: "no results", UpdatedAt: now},
		},
		at: now,
	})
	state, ok := updated.(model)
	if !ok {
		t.Fatalf("expected model type, got %T", updated)
	}
	if len(state.table.Rows()) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(state.table.Rows()))
	}
	if !strings.Contains(state.View(), "Sketchfab imports (2)") {
		t.Fatalf("expected title with count, got:\n%s", state.View())
	}

	updated, _ = state.Update(tea.KeyMsg{Type: tea.KeyEnter})
	state = updated.(model)
	if !state.showDetail {
		t.Fatal("expected detail panel to open")
	}
	if view := state.View(); !strings.Contains(view, "Remote:  r-1") {
		t.Fatalf("expected detail for selected task, got:\n%s", view)
	}

	updated, _ = state.Update(tea.KeyMsg{Type: tea.KeyEsc})
	state = updated.(model)
	if state.showDetail {
		t.Fatal("expected detail panel to close on esc")
	}
}

func TestModel_RefreshErrorKeepsRows(t *testing.T) {
	m := initialModel(nil, 10, time.Second)
	updated, _ := m.Update(importsMsg{snaps: []task.Snapshot{{ID: "a1", Keyword: "castle"}}, at: time.Now()})
	state := updated.(model)

	updated, _ = state.Update(loadImports(nil, 10)())
	state = updated.(model)
	if len(state.table.Rows()) != 1 {
		t.Fatalf("expected rows kept after failed refresh, got %d", len(state.table.Rows()))
	}
	if !strings.Contains(state.View(), "refresh failed") {
		t.Fatalf("expected refresh error in status line, got:\n%s", state.View())
	}
}

func TestModel_LoadsFromStoreAndQuits(t *testing.T) {
	store := tasks.NewMemoryStore()
	if err := store.Save(context.Background(), task.Snapshot{ID: "x", Keyword: "lamp", State: task.StateCompleted}); err != nil {
		t.Fatalf("save: %v", err)
	}

	msg := loadImports(store, 5)()
	loaded, ok := msg.(importsMsg)
	if !ok || loaded.err != nil || len(loaded.snaps) != 1 {
		t.Fatalf("unexpected load result: %#v", msg)
	}

	m := initialModel(store, 5, time.Second)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg, got %T", cmd())
	}
}
