// Package filter parses JSON-shaped where clauses into a typed condition tree,
// compiles that tree into store-neutral predicates and evaluates predicates in process.
package filter

import (
	"reflect"
	"sort"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

// Op is a field operator recognised inside a where clause.
type Op string

const (
	OpBetween Op = "between"
	OpGt      Op = "gt"
	OpLt      Op = "lt"
	OpGte     Op = "gte"
	OpLte     Op = "lte"
	OpInq     Op = "inq"
	OpNin     Op = "nin"
	OpNeq     Op = "neq"
	OpLike    Op = "like"
	OpNlike   Op = "nlike"
)

const (
	keyAnd = "and"
	keyOr  = "or"

	// keyOptions carries regex flags next to like/nlike.
	keyOptions = "options"
)

var knownOps = map[Op]struct{}{
	OpBetween: {}, OpGt: {}, OpLt: {}, OpGte: {}, OpLte: {},
	OpInq: {}, OpNin: {}, OpNeq: {}, OpLike: {}, OpNlike: {},
}

// IsKnown reports whether op is a recognised operator.
func IsKnown(op Op) bool {
	_, ok := knownOps[op]
	return ok
}

// Condition is a node of a parsed where clause.
type Condition interface {
	isCondition()
}

// Equality matches records whose field equals Value.
type Equality struct {
	Field string
	Value any
}

// Operator applies a recognised operator to a field.
type Operator struct {
	Field   string
	Op      Op
	Value   any
	Options string
}

// And holds when every term holds. Top-level keys of a where clause form an And.
type And struct {
	Terms []Condition
}

// Or holds when any term holds.
type Or struct {
	Terms []Condition
}

func (Equality) isCondition() {}
func (Operator) isCondition() {}
func (And) isCondition()      {}
func (Or) isCondition()       {}

// Parse builds the condition tree of a where clause.
// It returns false when where is not an object, meaning no filter applies.
func Parse(where any) (Condition, bool) {
	m, ok := asObject(where)
	if !ok {
		return nil, false
	}
	return parseObject(m), true
}

func parseObject(m map[string]any) And {
	keys := sortedKeys(m)
	terms := make([]Condition, 0, len(keys))

	for _, key := range keys {
		value := m[key]
		switch key {
		case keyAnd, keyOr:
			children, ok := asList(value)
			if !ok {
				continue
			}
			sub := make([]Condition, 0, len(children))
			for _, child := range children {
				cm, ok := asObject(child)
				if !ok {
					continue
				}
				sub = append(sub, parseObject(cm))
			}
			if key == keyAnd {
				terms = append(terms, And{Terms: sub})
			} else {
				terms = append(terms, Or{Terms: sub})
			}
		default:
			terms = append(terms, parseLeaf(key, value)...)
		}
	}

	return And{Terms: terms}
}

func parseLeaf(field string, value any) []Condition {
	ops, ok := asObject(value)
	if !ok || !hasKnownOperator(ops) {
		return []Condition{Equality{Field: field, Value: value}}
	}

	options, _ := ops[keyOptions].(string)
	out := make([]Condition, 0, len(ops))
	for _, key := range sortedKeys(ops) {
		op := Op(key)
		if !IsKnown(op) {
			continue
		}
		out = append(out, Operator{Field: field, Op: op, Value: ops[key], Options: options})
	}
	return out
}

func hasKnownOperator(m map[string]any) bool {
	for key := range m {
		if IsKnown(Op(key)) {
			return true
		}
	}
	return false
}

func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case core.Record:
		return map[string]any(m), true
	default:
		return nil, false
	}
}

// asList accepts any slice or array, so []string and []int work like []any.
func asList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
