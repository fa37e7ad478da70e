// Package store holds the document-store transports behind core.Store and the
// registry that selects one by configured type.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rzpsarthak13/docbridge/internal/config"
	"github.com/rzpsarthak13/docbridge/internal/core"
)

// Factory creates one kind of store transport. Each transport registers its
// factory from init(), and the same value validates the transport's config.
type Factory interface {
	// Create dials the store and returns a live handle.
	Create(ctx context.Context, cfg config.StoreConfig) (core.Store, error)

	// Type returns the type identifier (e.g. "mongodb", "redis").
	Type() string

	// DefaultPort is the store's standard port, used when none is configured.
	DefaultPort() int

	// Validate validates the configuration specific to this store type.
	Validate(cfg *config.StoreConfig) error
}

var (
	factoryRegistry = make(map[string]Factory)
	registryMutex   sync.RWMutex
)

// RegisterFactory registers a store factory and its config validator.
// Panics on nil, unnamed or duplicate factories.
func RegisterFactory(factory Factory) {
	if factory == nil {
		panic("factory cannot be nil")
	}
	if factory.Type() == "" {
		panic("factory type cannot be empty")
	}

	registryMutex.Lock()
	if _, exists := factoryRegistry[factory.Type()]; exists {
		registryMutex.Unlock()
		panic(fmt.Sprintf("factory for type %q is already registered", factory.Type()))
	}
	factoryRegistry[factory.Type()] = factory
	registryMutex.Unlock()

	config.RegisterValidator(factory)
}

// Create validates cfg and dials the store of type cfg.Type.
func Create(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("store type is required")
	}

	factory, ok := Lookup(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}

	if err := factory.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", cfg.Type, err)
	}

	s, err := factory.Create(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Type, err)
	}
	return s, nil
}

// Lookup returns the factory registered for a store type.
func Lookup(storeType string) (Factory, bool) {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	f, ok := factoryRegistry[storeType]
	return f, ok
}

// GetRegisteredTypes returns the registered store types, sorted.
func GetRegisteredTypes() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	types := make([]string, 0, len(factoryRegistry))
	for t := range factoryRegistry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsTypeRegistered reports whether a store type is registered.
func IsTypeRegistered(storeType string) bool {
	_, ok := Lookup(storeType)
	return ok
}
