package core

// IDField is the identifier field every record carries.
const IDField = "id"

// Record is a single stored document, keyed by field name.
type Record map[string]any

// ID returns the record identifier, or nil when the record has none.
func (r Record) ID() any {
	return r[IDField]
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge copies every field of patch into the record, overwriting existing values.
func (r Record) Merge(patch Record) Record {
	for k, v := range patch {
		r[k] = v
	}
	return r
}

// Filter is the caller-supplied query description for reads, updates and deletes.
type Filter struct {
	// Where is the raw condition tree. Nil applies no restriction.
	Where map[string]any `json:"where,omitempty" yaml:"where,omitempty"`

	// Order lists sort keys such as "age DESC". Empty means ascending by id.
	Order []string `json:"order,omitempty" yaml:"order,omitempty"`

	// Skip takes precedence over Offset when both are set.
	Skip   int `json:"skip,omitempty" yaml:"skip,omitempty"`
	Offset int `json:"offset,omitempty" yaml:"offset,omitempty"`

	// Limit bounds the number of returned rows. Zero means unbounded.
	Limit int `json:"limit,omitempty" yaml:"limit,omitempty"`

	// Include names relations resolved by the host framework after the read.
	Include any `json:"include,omitempty" yaml:"include,omitempty"`
}

// SortKey is one ordering term of a plan.
type SortKey struct {
	Field      string
	Descending bool
}

// Plan is an executable query over a single collection.
type Plan struct {
	Collection string
	Predicate  Expr
	Order      []SortKey
	Skip       int
	Limit      int
}
