package query

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

// ParseFilter converts a raw, JSON-decoded filter object into a core.Filter.
// "order" may be a comma-separated string or a list of strings; numeric fields
// may arrive as numbers, json.Number or numeric strings.
func ParseFilter(raw map[string]any) (*core.Filter, error) {
	f := &core.Filter{}
	if raw == nil {
		return f, nil
	}

	if where, ok := raw["where"]; ok && where != nil {
		m, ok := where.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("where must be an object, got %T", where)
		}
		f.Where = m
	}

	switch order := raw["order"].(type) {
	case nil:
	case string:
		f.Order = SplitOrder(order)
	case []string:
		f.Order = order
	case []any:
		for _, o := range order {
			s, ok := o.(string)
			if !ok {
				return nil, fmt.Errorf("order entries must be strings, got %T", o)
			}
			f.Order = append(f.Order, s)
		}
	default:
		return nil, fmt.Errorf("order must be a string or a list, got %T", order)
	}

	var err error
	if f.Skip, err = intField(raw, "skip"); err != nil {
		return nil, err
	}
	if f.Offset, err = intField(raw, "offset"); err != nil {
		return nil, err
	}
	if f.Limit, err = intField(raw, "limit"); err != nil {
		return nil, err
	}

	f.Include = raw["include"]
	return f, nil
}

func intField(raw map[string]any, key string) (int, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, nil
	}

	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%s must be an integer, got %v", key, x)
		}
		n = int(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer: %w", key, err)
		}
		n = int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer: %w", key, err)
		}
		n = i
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}

	if n < 0 {
		return 0, fmt.Errorf("%s must be non-negative, got %d", key, n)
	}
	return n, nil
}
