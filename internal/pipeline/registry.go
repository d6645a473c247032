package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"conveyor/internal/services"
)

// Registry stores pipeline definitions and resolves one per file type.
// Registration happens at startup; resolution is read-mostly afterwards.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]*Pipeline
	byType    map[string]string
	defaultID string
}

// NewRegistry returns an empty registry. defaultID names the pipeline used
// when no file-type mapping applies; it must be registered before Resolve is
// called.
func NewRegistry(defaultID string) *Registry {
	return &Registry{
		pipelines: make(map[string]*Pipeline),
		byType:    make(map[string]string),
		defaultID: defaultID,
	}
}

// Register adds a pipeline definition. Registering an id twice fails.
func (r *Registry) Register(p *Pipeline) error {
	if err := p.Validate(); err != nil {
		return services.Wrap(services.ErrValidation, "", "register pipeline", p.ID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pipelines[p.ID]; exists {
		return services.Wrap(services.ErrDuplicatePipeline, "", "register pipeline",
			fmt.Sprintf("pipeline %q already registered", p.ID), nil)
	}
	r.pipelines[p.ID] = p
	return nil
}

// MapFileType routes a file type to a pipeline id.
func (r *Registry) MapFileType(fileType, pipelineID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[fileType] = pipelineID
}

// Resolve selects the pipeline for a file type. Missing mappings, missing
// pipelines, and disabled pipelines all fall back to the default pipeline;
// resolution never fails once the default is registered.
func (r *Registry) Resolve(fileType string) *Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.byType[fileType]; ok {
		if p, ok := r.pipelines[id]; ok && p.Enabled {
			return p
		}
	}
	return r.pipelines[r.defaultID]
}

// Get returns a pipeline by id, or nil.
func (r *Registry) Get(id string) *Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pipelines[id]
}

// List returns all registered pipelines sorted by id.
func (r *Registry) List() []*Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Pipeline, 0, len(r.pipelines))
	for _, p := range r.pipelines {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Mappings returns the file-type routing table sorted by file type.
func (r *Registry) Mappings() [][2]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([][2]string, 0, len(r.byType))
	for fileType, id := range r.byType {
		out = append(out, [2]string{fileType, id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// DefaultID returns the configured default pipeline id.
func (r *Registry) DefaultID() string {
	return r.defaultID
}
