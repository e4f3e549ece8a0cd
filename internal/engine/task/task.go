// Package task tracks asynchronous Sketchfab imports handed off to the editor.
package task

import (
	"sync"
	"time"

	"sketchbridge/internal/engine/geometry"

	"github.com/google/uuid"
)

type State string

const (
	StatePending     State = "pending"
	StateSearching   State = "searching"
	StateDownloading State = "downloading"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transitions are allowed out of s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Snapshot is the serializable view of a task at one instant.
type Snapshot struct {
	ID           string          `json:"task_id"`
	Keyword      string          `json:"keyword"`
	Bounds       geometry.Bounds `json:"bounds"`
	State        State           `json:"state"`
	Progress     int             `json:"progress"`
	ModelName    string          `json:"model_name,omitempty"`
	RemoteTaskID string          `json:"remote_task_id,omitempty"`
	Message      string          `json:"message,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Task is a handle on one import. Done is closed once the task reaches a terminal state.
type Task struct {
	mu   sync.RWMutex
	snap Snapshot
	done chan struct{}
	now  func() time.Time
}

func New(keyword string, bounds geometry.Bounds) *Task {
	return newWithClock(keyword, bounds, time.Now)
}

func newWithClock(keyword string, bounds geometry.Bounds, now func() time.Time) *Task {
	ts := now().UTC()
	return &Task{
		snap: Snapshot{
			ID:        uuid.New().String(),
			Keyword:   keyword,
			Bounds:    bounds,
			State:     StatePending,
			CreatedAt: ts,
			UpdatedAt: ts,
		},
		done: make(chan struct{}),
		now:  now,
	}
}

func (t *Task) ID() string {
	return t.snap.ID
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Advance moves a non-terminal task into state with the given progress and message.
// It returns false if the task had already finished.
func (t *Task) Advance(state State, progress int, message string) bool {
	if state.Terminal() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.State.Terminal() {
		return false
	}
	t.snap.State = state
	t.snap.Progress = clampProgress(progress)
	if message != "" {
		t.snap.Message = message
	}
	t.snap.UpdatedAt = t.now().UTC()
	return true
}

// SetRemoteID records the identifier the editor assigned to this import.
func (t *Task) SetRemoteID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.RemoteTaskID = id
	t.snap.UpdatedAt = t.now().UTC()
}

func (t *Task) Complete(modelName, message string) bool {
	return t.finish(func(s *Snapshot) {
		s.State = StateCompleted
		s.Progress = 100
		s.ModelName = modelName
		s.Message = message
	})
}

func (t *Task) Fail(err error) bool {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return t.finish(func(s *Snapshot) {
		s.State = StateFailed
		s.Error = msg
	})
}

func (t *Task) finish(apply func(*Snapshot)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.State.Terminal() {
		return false
	}
	apply(&t.snap)
	t.snap.UpdatedAt = t.now().UTC()
	close(t.done)
	return true
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
