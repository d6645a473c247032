// Package processor hosts the named stage processors and the registry the
// stage executor resolves them from. Processors are the seam to domain
// logic: a processor reads the task's file and metadata and returns a result
// map that is merged into the task metadata on success. Processors must
// tolerate re-invocation for the same task.
package processor

import (
	"context"
	"sort"
	"sync"

	"conveyor/internal/queue"
)

// Func is one registered stage processor.
type Func func(ctx context.Context, task *queue.Task) (map[string]any, error)

// Registry maps processor names to implementations. Registration happens at
// startup; lookups are read-mostly afterwards.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Func
}

// NewRegistry returns an empty processor registry.
func NewRegistry() *Registry {
	return &Registry{processors: make(map[string]Func)}
}

// Register binds a name to a processor, replacing any previous binding.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[name] = fn
}

// Lookup resolves a processor by name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.processors[name]
	return fn, ok
}

// Names returns the registered processor names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
