package query

import (
	"sort"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/filter"
)

// Apply runs a plan in process over rows: filter, stable sort, skip, limit.
// Transports without server-side query support use it after fetching rows.
func Apply(rows []core.Record, plan *core.Plan) []core.Record {
	out := make([]core.Record, 0, len(rows))
	for _, r := range rows {
		if filter.Matches(plan.Predicate, r) {
			out = append(out, r)
		}
	}

	if len(plan.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			return Less(out[i], out[j], plan.Order)
		})
	}

	if plan.Skip > 0 {
		if plan.Skip >= len(out) {
			return []core.Record{}
		}
		out = out[plan.Skip:]
	}
	if plan.Limit > 0 && plan.Limit < len(out) {
		out = out[:plan.Limit]
	}
	return out
}

// Less reports whether a sorts before b under the given keys.
func Less(a, b core.Record, order []core.SortKey) bool {
	for _, key := range order {
		va, _ := filter.Lookup(a, key.Field)
		vb, _ := filter.Lookup(b, key.Field)
		c := filter.CompareValues(va, vb)
		if c == 0 {
			continue
		}
		if key.Descending {
			return c > 0
		}
		return c < 0
	}
	return false
}
