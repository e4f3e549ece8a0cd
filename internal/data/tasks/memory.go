package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"sketchbridge/internal/core/errors"
	"sketchbridge/internal/core/ports"
	"sketchbridge/internal/engine/task"
)

// MemoryStore keeps task snapshots in process; used when the database is disabled.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]task.Snapshot
}

var _ ports.TaskStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]task.Snapshot)}
}

func (s *MemoryStore) Save(_ context.Context, snap task.Snapshot) error {
	if strings.TrimSpace(snap.ID) == "" {
		return errors.New(errors.CodeValidationError, "task id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.items[snap.ID]; ok {
		snap.CreatedAt = prev.CreatedAt
	}
	s.items[snap.ID] = snap
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (task.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.items[strings.TrimSpace(id)]
	if !ok {
		return task.Snapshot{}, errors.AddContext(errors.New(errors.CodeNotFound, fmt.Sprintf("import task not found: %s", id)), errors.CtxTaskID, id)
	}
	return snap, nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]task.Snapshot, error) {
	s.mu.RLock()
	out := make([]task.Snapshot, 0, len(s.items))
	for _, snap := range s.items {
		out = append(out, snap)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit <= 0 {
		limit = defaultLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
