package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/filter"
)

// Times are stored as tagged objects so they survive a JSON round trip.
const (
	typeTagKey   = "$type"
	typeTagTime  = "TIME"
	epochTimeKey = "epoch_time"
	timezoneKey  = "timezone"
	utcTimezone  = "+00:00"
)

// EncodeDocument serializes a record to JSON, tagging time values.
func EncodeDocument(rec core.Record) ([]byte, error) {
	data, err := json.Marshal(encodeValue(map[string]any(rec)))
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

// DecodeDocument parses a document written by EncodeDocument. Integral numbers
// decode as int64, other numbers as float64.
func DecodeDocument(data []byte) (core.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return core.Record(decodeValue(raw).(map[string]any)), nil
}

// EncodeValue serializes a single field value the way EncodeDocument does.
func EncodeValue(v any) ([]byte, error) {
	return json.Marshal(encodeValue(v))
}

func encodeValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return map[string]any{
			typeTagKey:   typeTagTime,
			epochTimeKey: float64(x.UnixMilli()) / 1000,
			timezoneKey:  utcTimezone,
		}
	case *time.Time:
		if x == nil {
			return nil
		}
		return encodeValue(*x)
	case core.Record:
		return encodeValue(map[string]any(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = encodeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = encodeValue(val)
		}
		return out
	default:
		return v
	}
}

func decodeValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		if x[typeTagKey] == typeTagTime {
			if epoch, ok := filter.ToFloat(decodeValue(x[epochTimeKey])); ok {
				return time.UnixMilli(int64(math.Round(epoch * 1000))).UTC()
			}
		}
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = decodeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = decodeValue(val)
		}
		return out
	default:
		return v
	}
}

// KeyOf renders a record identifier as a string key. Integers keep every
// digit; floats use their shortest decimal form so 7 and 7.0 share a key.
func KeyOf(id any) string {
	switch x := id.(type) {
	case string:
		return x
	case nil:
		return ""
	}
	if s, ok := filter.FormatInteger(id); ok {
		return s
	}
	if f, ok := filter.ToFloat(id); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(id)
}
