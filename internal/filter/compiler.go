package filter

import "github.com/rzpsarthak13/docbridge/internal/core"

// Where parses and compiles a raw where clause in one step.
// A nil result means no restriction.
func Where(where any) core.Expr {
	cond, ok := Parse(where)
	if !ok {
		return nil
	}
	return Compile(cond)
}

// Compile turns a condition tree into a predicate. Compositions whose terms all
// compile to nothing yield nil, which callers treat as "no filter".
func Compile(c Condition) core.Expr {
	switch n := c.(type) {
	case And:
		return conjoin(compileAll(n.Terms))
	case Or:
		return disjoin(compileAll(n.Terms))
	case Equality:
		return core.Comparison{Field: n.Field, Op: core.OpEq, Value: n.Value}
	case Operator:
		return compileOperator(n)
	default:
		return nil
	}
}

func compileAll(terms []Condition) []core.Expr {
	out := make([]core.Expr, 0, len(terms))
	for _, t := range terms {
		if e := Compile(t); e != nil {
			out = append(out, e)
		}
	}
	return out
}

func compileOperator(o Operator) core.Expr {
	switch o.Op {
	case OpBetween:
		bounds, ok := asList(o.Value)
		if !ok || len(bounds) != 2 {
			return nil
		}
		// Both bounds are exclusive.
		return core.Conjunction{Terms: []core.Expr{
			core.Comparison{Field: o.Field, Op: core.OpGt, Value: bounds[0]},
			core.Comparison{Field: o.Field, Op: core.OpLt, Value: bounds[1]},
		}}
	case OpGt:
		return core.Comparison{Field: o.Field, Op: core.OpGt, Value: o.Value}
	case OpLt:
		return core.Comparison{Field: o.Field, Op: core.OpLt, Value: o.Value}
	case OpGte:
		return core.Comparison{Field: o.Field, Op: core.OpGe, Value: o.Value}
	case OpLte:
		return core.Comparison{Field: o.Field, Op: core.OpLe, Value: o.Value}
	case OpNeq:
		return core.Comparison{Field: o.Field, Op: core.OpNe, Value: o.Value}
	case OpInq:
		values := listOrScalar(o.Value)
		if len(values) == 0 {
			return core.Constant{Value: false}
		}
		terms := make([]core.Expr, len(values))
		for i, v := range values {
			terms[i] = core.Comparison{Field: o.Field, Op: core.OpEq, Value: v}
		}
		return disjoin(terms)
	case OpNin:
		values := listOrScalar(o.Value)
		if len(values) == 0 {
			return core.Constant{Value: true}
		}
		terms := make([]core.Expr, len(values))
		for i, v := range values {
			terms[i] = core.Comparison{Field: o.Field, Op: core.OpNe, Value: v}
		}
		return conjoin(terms)
	case OpLike, OpNlike:
		return core.Match{
			Field:   o.Field,
			Pattern: NormalizePattern(o.Value, o.Options),
			Negate:  o.Op == OpNlike,
		}
	default:
		return nil
	}
}

func listOrScalar(v any) []any {
	if list, ok := asList(v); ok {
		return list
	}
	if v == nil {
		return nil
	}
	return []any{v}
}

func conjoin(terms []core.Expr) core.Expr {
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return terms[0]
	default:
		return core.Conjunction{Terms: terms}
	}
}

func disjoin(terms []core.Expr) core.Expr {
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return terms[0]
	default:
		return core.Disjunction{Terms: terms}
	}
}
