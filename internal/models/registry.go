// Package models keeps the model descriptors the connector and the schema
// synchronizer work from.
package models

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

// Metadata is a registered descriptor plus bookkeeping.
type Metadata struct {
	Descriptor *core.ModelDescriptor

	// CreatedAt is when the model was first registered.
	CreatedAt time.Time

	// UpdatedAt is when the descriptor was last replaced.
	UpdatedAt time.Time
}

// Registry is a thread-safe core.ModelRegistry.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Metadata
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Metadata)}
}

// Register adds or replaces a model. Replacing keeps the original CreatedAt.
func (r *Registry) Register(desc *core.ModelDescriptor) error {
	if desc == nil {
		return fmt.Errorf("model descriptor cannot be nil")
	}
	if desc.Name == "" {
		return fmt.Errorf("model name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	meta := &Metadata{Descriptor: desc, CreatedAt: now, UpdatedAt: now}
	if existing, ok := r.models[desc.Name]; ok {
		meta.CreatedAt = existing.CreatedAt
	}
	r.models[desc.Name] = meta
	return nil
}

// RegisterAll registers each descriptor, stopping at the first invalid one.
func (r *Registry) RegisterAll(descs []*core.ModelDescriptor) error {
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.models, name)
}

func (r *Registry) Model(name string) (*core.ModelDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.models[name]
	if !ok {
		return nil, false
	}
	return meta.Descriptor, true
}

// Metadata returns the bookkeeping record of a model.
func (r *Registry) Metadata(name string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.models[name]
	if !ok {
		return Metadata{}, false
	}
	return *meta, true
}

// Models returns the registered names, sorted.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}
