package models

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

// document is the on-disk layout of a models file:
//
//	models:
//	  - name: users
//	    properties:
//	      email: {type: String, index: true, indexOption: {unique: true}}
//	    settings:
//	      name_age: {index: true, indexFields: [name, age]}
type document struct {
	Models []map[string]any `yaml:"models"`
}

// LoadFile reads model descriptors from a YAML or JSON file.
func LoadFile(path string) ([]*core.ModelDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read models file: %w", err)
	}
	return Load(data)
}

// Load parses model descriptors. Scalars are coerced to the declared field
// types, so "true" works for index flags.
func Load(data []byte) ([]*core.ModelDescriptor, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse models: %w", err)
	}

	descs := make([]*core.ModelDescriptor, 0, len(doc.Models))
	for i, raw := range doc.Models {
		desc := &core.ModelDescriptor{}
		if err := decode(raw, desc); err != nil {
			return nil, fmt.Errorf("model #%d: %w", i, err)
		}
		if desc.Name == "" {
			return nil, fmt.Errorf("model #%d: name is required", i)
		}
		descs = append(descs, desc)
	}
	return descs, nil
}

// LoadInto loads a models file and registers every descriptor.
func LoadInto(r *Registry, path string) error {
	descs, err := LoadFile(path)
	if err != nil {
		return err
	}
	return r.RegisterAll(descs)
}

func decode(src any, tgt any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           tgt,
	})
	if err != nil {
		return err
	}
	return dec.Decode(src)
}
