package tasks

import (
	"context"
	"testing"
	"time"

	"sketchbridge/internal/core/errors"
	"sketchbridge/internal/engine/task"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := s.Save(ctx, task.Snapshot{ID: id, Keyword: id, CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if err := s.Save(ctx, task.Snapshot{ID: "a", Keyword: "a", State: task.StateCompleted}); err != nil {
		t.Fatalf("update a: %v", err)
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if got.State != task.StateCompleted || !got.CreatedAt.Equal(base) {
		t.Fatalf("expected updated state with original created_at, got %+v", got)
	}

	list, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Fatalf("expected [c b], got %+v", list)
	}

	if _, err := s.Get(ctx, "zzz"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Save(ctx, task.Snapshot{}); !errors.IsCode(err, errors.CodeValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
