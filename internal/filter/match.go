package filter

import (
	"fmt"
	"strings"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

// Matches evaluates expr against a record. A nil expression matches everything.
// A field missing from the record fails every comparison and match, mirroring
// stores that skip rows whose predicate errors.
func Matches(expr core.Expr, rec core.Record) bool {
	switch e := expr.(type) {
	case nil:
		return true
	case core.Constant:
		return e.Value
	case core.Conjunction:
		for _, t := range e.Terms {
			if !Matches(t, rec) {
				return false
			}
		}
		return true
	case core.Disjunction:
		for _, t := range e.Terms {
			if Matches(t, rec) {
				return true
			}
		}
		return false
	case core.Comparison:
		v, ok := Lookup(rec, e.Field)
		if !ok {
			return false
		}
		return compare(e.Op, v, e.Value)
	case core.Match:
		v, ok := Lookup(rec, e.Field)
		if !ok || v == nil {
			return false
		}
		re, err := compilePattern(e.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(stringForm(v)) != e.Negate
	default:
		return false
	}
}

// Lookup resolves a field, falling back to a dotted path through nested objects.
func Lookup(rec core.Record, field string) (any, bool) {
	if v, ok := rec[field]; ok {
		return v, true
	}
	if !strings.Contains(field, ".") {
		return nil, false
	}

	var cur any = map[string]any(rec)
	for _, part := range strings.Split(field, ".") {
		m, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func compare(op core.CompareOp, a, b any) bool {
	switch op {
	case core.OpEq:
		return Equal(a, b)
	case core.OpNe:
		return !Equal(a, b)
	}

	c, ok := orderSameKind(a, b)
	if !ok {
		return false
	}
	switch op {
	case core.OpGt:
		return c > 0
	case core.OpGe:
		return c >= 0
	case core.OpLt:
		return c < 0
	case core.OpLe:
		return c <= 0
	default:
		return false
	}
}

func stringForm(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
