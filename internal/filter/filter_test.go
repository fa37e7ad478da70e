package filter

import (
	"encoding/json"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

func TestParse(t *testing.T) {
	cond, ok := Parse(map[string]any{
		"name": "Ann",
		"age":  map[string]any{"gt": 18, "lte": 65},
		"or":   []any{map[string]any{"city": "Oslo"}, map[string]any{"city": "Rome"}},
		"tags": map[string]any{"color": "red"},
	})
	assert.True(t, ok)
	assert.Equal(t, And{Terms: []Condition{
		Operator{Field: "age", Op: OpGt, Value: 18},
		Operator{Field: "age", Op: OpLte, Value: 65},
		Equality{Field: "name", Value: "Ann"},
		Or{Terms: []Condition{
			And{Terms: []Condition{Equality{Field: "city", Value: "Oslo"}}},
			And{Terms: []Condition{Equality{Field: "city", Value: "Rome"}}},
		}},
		Equality{Field: "tags", Value: map[string]any{"color": "red"}},
	}}, cond)

	_, ok = Parse("name = 'Ann'")
	assert.False(t, ok)
	_, ok = Parse(nil)
	assert.False(t, ok)
}

func TestParseIgnoresUnknownOperatorsBesideKnownOnes(t *testing.T) {
	cond, _ := Parse(map[string]any{"age": map[string]any{"gt": 1, "bogus": 2}})
	assert.Equal(t, And{Terms: []Condition{Operator{Field: "age", Op: OpGt, Value: 1}}}, cond)
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name  string
		where map[string]any
		want  core.Expr
	}{
		{
			name:  "equality",
			where: map[string]any{"name": "Ann"},
			want:  core.Comparison{Field: "name", Op: core.OpEq, Value: "Ann"},
		},
		{
			name:  "between is exclusive",
			where: map[string]any{"age": map[string]any{"between": []any{10, 20}}},
			want: core.Conjunction{Terms: []core.Expr{
				core.Comparison{Field: "age", Op: core.OpGt, Value: 10},
				core.Comparison{Field: "age", Op: core.OpLt, Value: 20},
			}},
		},
		{
			name:  "malformed between is dropped",
			where: map[string]any{"age": map[string]any{"between": []any{10}}},
			want:  nil,
		},
		{
			name:  "empty inq matches nothing",
			where: map[string]any{"id": map[string]any{"inq": []any{}}},
			want:  core.Constant{Value: false},
		},
		{
			name:  "empty nin matches everything",
			where: map[string]any{"id": map[string]any{"nin": []string{}}},
			want:  core.Constant{Value: true},
		},
		{
			name:  "inq becomes a disjunction",
			where: map[string]any{"id": map[string]any{"inq": []int{1, 2}}},
			want: core.Disjunction{Terms: []core.Expr{
				core.Comparison{Field: "id", Op: core.OpEq, Value: 1},
				core.Comparison{Field: "id", Op: core.OpEq, Value: 2},
			}},
		},
		{
			name:  "nin becomes a conjunction",
			where: map[string]any{"id": map[string]any{"nin": []any{"a", "b"}}},
			want: core.Conjunction{Terms: []core.Expr{
				core.Comparison{Field: "id", Op: core.OpNe, Value: "a"},
				core.Comparison{Field: "id", Op: core.OpNe, Value: "b"},
			}},
		},
		{
			name:  "like with options",
			where: map[string]any{"name": map[string]any{"like": "^a", "options": "i"}},
			want:  core.Match{Field: "name", Pattern: "(?i)^a"},
		},
		{
			name:  "nlike",
			where: map[string]any{"name": map[string]any{"nlike": "x$"}},
			want:  core.Match{Field: "name", Pattern: "x$", Negate: true},
		},
		{
			name:  "empty composition",
			where: map[string]any{"and": []any{}},
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Where(tt.where))
		})
	}

	assert.Nil(t, Where(nil))
	assert.Nil(t, Where(map[string]any{}))
}

func TestMatches(t *testing.T) {
	born := time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)
	rec := core.Record{
		"id":      "u1",
		"name":    "Alice",
		"age":     int64(30),
		"score":   json.Number("9.5"),
		"born":    born,
		"address": map[string]any{"city": "Oslo"},
		"nothing": nil,
	}

	tests := []struct {
		name  string
		where map[string]any
		want  bool
	}{
		{"equal across numeric types", map[string]any{"age": 30.0}, true},
		{"json number compares by value", map[string]any{"score": map[string]any{"gt": 9}}, true},
		{"between excludes bounds", map[string]any{"age": map[string]any{"between": []any{30, 40}}}, false},
		{"between includes interior", map[string]any{"age": map[string]any{"between": []any{29, 31}}}, true},
		{"time comparison", map[string]any{"born": map[string]any{"lt": born.Add(time.Hour)}}, true},
		{"missing field fails neq", map[string]any{"email": map[string]any{"neq": "x"}}, false},
		{"nil equals nil", map[string]any{"nothing": nil}, true},
		{"dotted path", map[string]any{"address.city": "Oslo"}, true},
		{"case-insensitive like", map[string]any{"name": map[string]any{"like": "^al", "options": "i"}}, true},
		{"case-sensitive like", map[string]any{"name": map[string]any{"like": "^al"}}, false},
		{"nlike", map[string]any{"name": map[string]any{"nlike": "^Bo"}}, true},
		{"nlike on missing field", map[string]any{"email": map[string]any{"nlike": "x"}}, false},
		{"regexp operand", map[string]any{"name": map[string]any{"like": regexp.MustCompile("ice$")}}, true},
		{"or", map[string]any{"or": []any{map[string]any{"age": 1}, map[string]any{"name": "Alice"}}}, true},
		{"and", map[string]any{"and": []any{map[string]any{"age": 30}, map[string]any{"name": "Bob"}}}, false},
		{"string against number fails ordering", map[string]any{"name": map[string]any{"gt": 5}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(Where(tt.where), rec))
		})
	}
}

func TestNormalizePattern(t *testing.T) {
	assert.Equal(t, "(?i)ab+", NormalizePattern("/ab+/i", ""))
	assert.Equal(t, "ab+", NormalizePattern("/ab+/g", ""))
	assert.Equal(t, "/a/zz", NormalizePattern("/a/zz", ""))
	assert.Equal(t, "(?i)x", NormalizePattern("(?i)x", "i"))
	assert.Equal(t, "", NormalizePattern(nil, ""))

	body, ci := SplitCaseInsensitive("(?i)abc")
	assert.Equal(t, "abc", body)
	assert.True(t, ci)
}

func TestCompareValues(t *testing.T) {
	now := time.Now()
	assert.Negative(t, CompareValues(nil, false))
	assert.Negative(t, CompareValues(true, 1))
	assert.Negative(t, CompareValues(100, "a"))
	assert.Negative(t, CompareValues("z", now))
	assert.Negative(t, CompareValues(int32(1), 1.5))
	assert.Zero(t, CompareValues(int64(2), 2.0))
	assert.Positive(t, CompareValues(now.Add(time.Second), now))
}

func TestLargeIntegersCompareExactly(t *testing.T) {
	big := int64(1 << 53)
	assert.False(t, Equal(big, big+1))
	assert.True(t, Equal(big+1, json.Number("9007199254740993")))
	assert.Negative(t, CompareValues(big, big+1))
	assert.Positive(t, CompareValues(uint64(math.MaxUint64), int64(math.MaxInt64)))
	assert.Negative(t, CompareValues(int64(math.MinInt64), uint64(0)))
	assert.True(t, Equal(int64(7), 7.0))
}
