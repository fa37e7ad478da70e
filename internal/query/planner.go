// Package query turns caller filters into executable plans.
package query

import (
	"strings"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/filter"
)

const (
	markerAsc  = "ASC"
	markerDesc = "DESC"
)

// Build compiles a filter into a plan over collection. It performs no I/O.
// Without explicit ordering the plan sorts by id ascending so pagination is stable.
func Build(collection string, f *core.Filter) *core.Plan {
	plan := &core.Plan{Collection: collection}
	if f == nil {
		f = &core.Filter{}
	}

	if f.Where != nil {
		plan.Predicate = filter.Where(f.Where)
	}

	plan.Order = ParseOrder(f.Order)
	if len(plan.Order) == 0 {
		plan.Order = []core.SortKey{{Field: core.IDField}}
	}

	switch {
	case f.Skip > 0:
		plan.Skip = f.Skip
	case f.Offset > 0:
		plan.Skip = f.Offset
	}
	if f.Limit > 0 {
		plan.Limit = f.Limit
	}

	return plan
}

// ParseOrder parses keys such as "age DESC" or "name". The direction marker is
// case-insensitive and defaults to ascending; blank keys are skipped.
func ParseOrder(keys []string) []core.SortKey {
	out := make([]core.SortKey, 0, len(keys))
	for _, key := range keys {
		fields := strings.Fields(key)
		if len(fields) == 0 {
			continue
		}

		desc := false
		if n := len(fields); n > 1 {
			switch strings.ToUpper(fields[n-1]) {
			case markerDesc:
				desc = true
				fields = fields[:n-1]
			case markerAsc:
				fields = fields[:n-1]
			}
		}

		out = append(out, core.SortKey{Field: strings.Join(fields, " "), Descending: desc})
	}
	return out
}

// SplitOrder splits a comma-separated order string into keys.
func SplitOrder(order string) []string {
	if strings.TrimSpace(order) == "" {
		return nil
	}
	parts := strings.Split(order, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
