package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/filter"
)

func TestMongoFilter(t *testing.T) {
	tests := []struct {
		name string
		expr core.Expr
		want bson.D
	}{
		{
			name: "nil matches all",
			want: bson.D{},
		},
		{
			name: "false constant",
			expr: core.Constant{Value: false},
			want: bson.D{{Key: "$expr", Value: false}},
		},
		{
			name: "id maps to _id",
			expr: core.Comparison{Field: "id", Op: core.OpEq, Value: "a"},
			want: bson.D{{Key: "_id", Value: bson.D{{Key: "$eq", Value: "a"}}}},
		},
		{
			name: "inequality requires the field",
			expr: core.Comparison{Field: "age", Op: core.OpNe, Value: 3},
			want: bson.D{{Key: "age", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: 3}}}},
		},
		{
			name: "case-insensitive pattern",
			expr: core.Match{Field: "name", Pattern: "(?i)^jo"},
			want: bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: bson.Regex{Pattern: "^jo", Options: "i"}}}}},
		},
		{
			name: "negated pattern",
			expr: core.Match{Field: "name", Pattern: "x$", Negate: true},
			want: bson.D{{Key: "name", Value: bson.D{
				{Key: "$exists", Value: true},
				{Key: "$not", Value: bson.Regex{Pattern: "x$"}},
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MongoFilter(tt.expr))
		})
	}
}

func TestMongoFilterFromWhere(t *testing.T) {
	expr := filter.Where(map[string]any{
		"or": []any{
			map[string]any{"age": map[string]any{"gte": 21}},
			map[string]any{"vip": true},
		},
	})

	want := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: 21}}}},
		bson.D{{Key: "vip", Value: bson.D{{Key: "$eq", Value: true}}}},
	}}}
	assert.Equal(t, want, MongoFilter(expr))
}

func TestMongoSort(t *testing.T) {
	got := MongoSort([]core.SortKey{{Field: "id"}, {Field: "age", Descending: true}})
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}, {Key: "age", Value: -1}}, got)
}

func TestFromMongoDocument(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := bson.M{
		"_id":     "a",
		"count":   int32(4),
		"at":      bson.NewDateTimeFromTime(at),
		"address": bson.D{{Key: "city", Value: "Oslo"}},
		"tags":    bson.A{"x", int32(1)},
	}

	rec := fromMongoDocument(doc)
	assert.Equal(t, core.Record{
		"id":      "a",
		"count":   int64(4),
		"at":      at,
		"address": map[string]any{"city": "Oslo"},
		"tags":    []any{"x", int64(1)},
	}, rec)
}

func TestToMongoDocument(t *testing.T) {
	assert.Equal(t, bson.M{"_id": 1, "name": "x"}, toMongoDocument(core.Record{"id": 1, "name": "x"}))
}
