package filter

import (
	"cmp"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Equal reports whether two field values are equal. Numbers compare by value
// across Go numeric types and times compare by instant.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := compareNumbers(a, b); ok {
		return c == 0
	}
	if _, ok := ToFloat(a); ok {
		return false
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// CompareValues orders two values for sorting. Values of different kinds order
// as nil < bool < number < string < time < anything else.
func CompareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	if c, ok := orderSameKind(a, b); ok {
		return c
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func orderSameKind(a, b any) (int, bool) {
	if c, ok := compareNumbers(a, b); ok {
		return c, true
	}
	if _, ok := ToFloat(a); ok {
		return 0, false
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}

func rank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := ToFloat(v); ok {
		return 2
	}
	switch v.(type) {
	case bool:
		return 1
	case string:
		return 3
	case time.Time:
		return 4
	default:
		return 5
	}
}

// compareNumbers orders two numbers. Integers compare exactly; a float on
// either side compares as float64.
func compareNumbers(a, b any) (int, bool) {
	if ia, ok := toInteger(a); ok {
		if ib, ok := toInteger(b); ok {
			return ia.compare(ib), true
		}
	}
	fa, ok := ToFloat(a)
	if !ok {
		return 0, false
	}
	fb, ok := ToFloat(b)
	if !ok {
		return 0, false
	}
	return cmp.Compare(fa, fb), true
}

// integer is an exact signed 65-bit value: a sign and a magnitude.
type integer struct {
	neg bool
	mag uint64
}

func (i integer) compare(o integer) int {
	if i.neg != o.neg {
		if i.neg {
			return -1
		}
		return 1
	}
	c := cmp.Compare(i.mag, o.mag)
	if i.neg {
		return -c
	}
	return c
}

func (i integer) String() string {
	s := strconv.FormatUint(i.mag, 10)
	if i.neg {
		return "-" + s
	}
	return s
}

func fromInt64(n int64) integer {
	if n < 0 {
		return integer{neg: true, mag: uint64(-(n + 1)) + 1}
	}
	return integer{mag: uint64(n)}
}

// toInteger accepts Go integer kinds and json.Number literals without a
// fraction or exponent. Floats are rejected even when integral.
func toInteger(v any) (integer, bool) {
	switch n := v.(type) {
	case int:
		return fromInt64(int64(n)), true
	case int64:
		return fromInt64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return fromInt64(i), true
		}
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return integer{mag: u}, true
		}
		return integer{}, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fromInt64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return integer{mag: rv.Uint()}, true
	default:
		return integer{}, false
	}
}

// FormatInteger renders an integer value in decimal without passing through
// float64. It reports false for non-integers.
func FormatInteger(v any) (string, bool) {
	i, ok := toInteger(v)
	if !ok {
		return "", false
	}
	return i.String(), true
}

// ToFloat converts any Go number or json.Number to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
