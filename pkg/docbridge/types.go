package docbridge

import (
	"github.com/rzpsarthak13/docbridge/internal/config"
	"github.com/rzpsarthak13/docbridge/internal/core"
)

// Config is the root configuration of a client.
type Config = config.Config

// Record is one stored document.
type Record = core.Record

// Filter selects, orders and pages rows.
type Filter = core.Filter

// ModelDescriptor describes a model's properties and index settings.
type ModelDescriptor = core.ModelDescriptor

// Property describes one property or settings entry of a model.
type Property = core.Property

// IncludeResolver resolves Filter.Include after a read.
type IncludeResolver = core.IncludeResolver

// ChangeEvent describes one successful write.
type ChangeEvent = core.ChangeEvent

var (
	ErrDuplicateKey  = core.ErrDuplicateKey
	ErrStoreReported = core.ErrStoreReported
	ErrNotConnected  = core.ErrNotConnected
	ErrUnknownModel  = core.ErrUnknownModel
)

// DefaultConfig returns a configuration with defaults filled in.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads a YAML or JSON configuration file and applies
// DOCBRIDGE_* environment overrides on top of it.
func LoadConfig(path string) (*Config, error) {
	m := config.NewManager()
	if path != "" {
		if err := m.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := m.LoadFromEnv(); err != nil {
		return nil, err
	}
	return m.Config(), nil
}
