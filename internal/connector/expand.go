package connector

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/filter"
)

// Expand converts Date-typed properties that hold Unix seconds into time.Time.
// Values already holding a time, nil values and non-numeric values are kept.
// The record is modified in place and returned.
func Expand(desc *core.ModelDescriptor, rec core.Record) core.Record {
	if desc == nil || rec == nil {
		return rec
	}
	for name, prop := range desc.Properties {
		if !strings.EqualFold(prop.Type, core.TypeDate) {
			continue
		}
		v, ok := rec[name]
		if !ok || v == nil {
			continue
		}
		if t, ok := unixSeconds(v); ok {
			rec[name] = t
		}
	}
	return rec
}

func unixSeconds(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time, *time.Time:
		return time.Time{}, false
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return time.Time{}, false
		}
		return fromSeconds(f), true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromSeconds(f), true
	}
	if f, ok := filter.ToFloat(v); ok {
		return fromSeconds(f), true
	}
	return time.Time{}, false
}

func fromSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// normalize copies a record for writing, turning typed nil values into nil.
func normalize(rec core.Record) core.Record {
	out := make(core.Record, len(rec))
	for k, v := range rec {
		if isNil(v) {
			out[k] = nil
			continue
		}
		out[k] = v
	}
	return out
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
