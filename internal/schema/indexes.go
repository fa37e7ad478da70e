package schema

import (
	"sort"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

// DeclaredIndexes merges a model's properties and settings into the set of
// indexes the store should carry. An entry is indexed when either side flags
// it; on a name clash the settings entry supplies the fields and options it
// declares. The id field is skipped.
func DeclaredIndexes(desc *core.ModelDescriptor) []core.IndexSpec {
	if desc == nil {
		return nil
	}

	merged := make(map[string]core.Property, len(desc.Properties)+len(desc.Settings))
	for name, prop := range desc.Properties {
		merged[name] = prop
	}
	for name, setting := range desc.Settings {
		prop, ok := merged[name]
		if !ok {
			merged[name] = setting
			continue
		}
		prop.Index = prop.Index || setting.Index
		if len(setting.IndexFields) > 0 {
			prop.IndexFields = setting.IndexFields
		}
		if len(setting.IndexOption) > 0 {
			prop.IndexOption = setting.IndexOption
		}
		merged[name] = prop
	}

	specs := make([]core.IndexSpec, 0, len(merged))
	for name, prop := range merged {
		if name == core.IDField || !prop.Index {
			continue
		}

		fields := prop.IndexFields
		if len(fields) == 0 {
			fields = []string{name}
		}

		spec := core.IndexSpec{
			Name:   name,
			Fields: append([]string(nil), fields...),
		}
		if len(prop.IndexOption) > 0 {
			spec.Options = make(map[string]any, len(prop.IndexOption))
			for k, v := range prop.IndexOption {
				spec.Options[k] = v
			}
			if unique, ok := prop.IndexOption["unique"].(bool); ok {
				spec.Unique = unique
			}
		}
		specs = append(specs, spec)
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// missingIndexes returns the declared indexes absent from actual.
func missingIndexes(declared []core.IndexSpec, actual []string) []core.IndexSpec {
	have := make(map[string]struct{}, len(actual))
	for _, name := range actual {
		have[name] = struct{}{}
	}

	var out []core.IndexSpec
	for _, spec := range declared {
		if _, ok := have[spec.Name]; !ok {
			out = append(out, spec)
		}
	}
	return out
}
