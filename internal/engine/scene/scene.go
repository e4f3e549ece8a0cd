// Package scene keeps the set of live objects the bridge can hand commands to.
package scene

import (
	"context"
	"reflect"
	"sync"

	"sketchbridge/internal/core/errors"
	"sketchbridge/internal/core/ports"
)

type Scene struct {
	mu      sync.RWMutex
	objects []any
}

var _ ports.ManagerLocator = (*Scene)(nil)

func New() *Scene {
	return &Scene{}
}

// Register adds obj to the scene. Registering the same object twice is a no-op, and nil
// objects, typed nil pointers included, are ignored.
func (s *Scene) Register(obj any) {
	if obj == nil {
		return
	}
	if v := reflect.ValueOf(obj); v.Kind() == reflect.Pointer && v.IsNil() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.objects {
		if existing == obj {
			return
		}
	}
	s.objects = append(s.objects, obj)
}

func (s *Scene) Unregister(obj any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.objects {
		if existing == obj {
			s.objects = append(s.objects[:i], s.objects[i+1:]...)
			return
		}
	}
}

// FindManager returns the first registered manager in registration order.
func (s *Scene) FindManager(ctx context.Context) (ports.SketchfabManager, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, obj := range s.objects {
		if m, ok := obj.(ports.SketchfabManager); ok {
			return m, nil
		}
	}
	return nil, errors.New(errors.CodeCollaboratorUnavailable, "no SketchfabManager found in the current scene")
}

func (s *Scene) ManagerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, obj := range s.objects {
		if _, ok := obj.(ports.SketchfabManager); ok {
			n++
		}
	}
	return n
}
