package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type Handler func(ctx context.Context, input any) (any, error)

type entry struct {
	handler     Handler
	description string
}

// Registry maps exposed tool names to handlers. Lookups ignore case.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]entry
	order    []string
}

func New() *Registry {
	return &Registry{
		handlers: make(map[string]entry),
		order:    make([]string, 0),
	}
}

func (r *Registry) Register(tool, description string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}
	tool = strings.TrimSpace(tool)
	if tool == "" {
		return fmt.Errorf("tool name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(tool)
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("tool already registered: %s", tool)
	}
	r.handlers[key] = entry{handler: handler, description: description}
	r.order = append(r.order, tool)
	return nil
}

func (r *Registry) HandlerFor(tool string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.handlers[strings.ToLower(strings.TrimSpace(tool))]
	return e.handler, ok
}

func (r *Registry) Description(tool string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[strings.ToLower(strings.TrimSpace(tool))].description
}

func (r *Registry) Tools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
