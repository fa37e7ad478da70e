package core

import "context"

// TypeDate is the property type name whose values are expanded into time.Time on read.
const TypeDate = "Date"

// Property describes one declared property or settings entry of a model.
type Property struct {
	// Type is the host framework type name, e.g. "String", "Number", "Date".
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Index marks the entry as a candidate index.
	Index bool `json:"index,omitempty" yaml:"index,omitempty"`

	// IndexOption is passed to the store when the index is created (e.g. "unique").
	IndexOption map[string]any `json:"indexOption,omitempty" yaml:"indexOption,omitempty"`

	// IndexFields declares a compound or derived index as ordered field paths.
	// Empty means the index covers the entry's own name.
	IndexFields []string `json:"indexFields,omitempty" yaml:"indexFields,omitempty"`
}

// ModelDescriptor is the host framework's metadata for one model.
// The model name doubles as the collection name.
type ModelDescriptor struct {
	Name       string              `json:"name" yaml:"name"`
	Properties map[string]Property `json:"properties,omitempty" yaml:"properties,omitempty"`
	Settings   map[string]Property `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Collection returns the collection backing the model.
func (m *ModelDescriptor) Collection() string {
	return m.Name
}

// IndexSpec is a single index declaration handed to a store.
type IndexSpec struct {
	Name    string
	Fields  []string
	Unique  bool
	Options map[string]any
}

// ModelRegistry supplies model descriptors by name.
type ModelRegistry interface {
	// Model returns the descriptor registered under name.
	Model(name string) (*ModelDescriptor, bool)

	// Models returns the names of every registered model.
	Models() []string
}

// IncludeResolver resolves related records requested through Filter.Include.
type IncludeResolver interface {
	Include(ctx context.Context, model string, rows []Record, include any, options map[string]any) ([]Record, error)
}

// IncludeResolverFunc adapts a function to IncludeResolver.
type IncludeResolverFunc func(ctx context.Context, model string, rows []Record, include any, options map[string]any) ([]Record, error)

// Include calls f.
func (f IncludeResolverFunc) Include(ctx context.Context, model string, rows []Record, include any, options map[string]any) ([]Record, error) {
	return f(ctx, model, rows, include, options)
}
