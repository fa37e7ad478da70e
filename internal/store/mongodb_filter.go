package store

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/filter"
)

const mongoIDField = "_id"

var mongoOperators = map[core.CompareOp]string{
	core.OpEq: "$eq",
	core.OpNe: "$ne",
	core.OpGt: "$gt",
	core.OpGe: "$gte",
	core.OpLt: "$lt",
	core.OpLe: "$lte",
}

// MongoFilter translates a predicate into a MongoDB query document. A missing
// field never matches, so inequality and negated patterns also require the
// field to exist.
func MongoFilter(expr core.Expr) bson.D {
	switch e := expr.(type) {
	case nil:
		return bson.D{}
	case core.Constant:
		if e.Value {
			return bson.D{}
		}
		return bson.D{{Key: "$expr", Value: false}}
	case core.Comparison:
		cond := bson.D{{Key: mongoOperators[e.Op], Value: e.Value}}
		if e.Op == core.OpNe || e.Value == nil {
			cond = append(bson.D{{Key: "$exists", Value: true}}, cond...)
		}
		return bson.D{{Key: mongoField(e.Field), Value: cond}}
	case core.Match:
		re := mongoRegex(e.Pattern)
		if e.Negate {
			return bson.D{{Key: mongoField(e.Field), Value: bson.D{
				{Key: "$exists", Value: true},
				{Key: "$not", Value: re},
			}}}
		}
		return bson.D{{Key: mongoField(e.Field), Value: bson.D{{Key: "$regex", Value: re}}}}
	case core.Conjunction:
		return bson.D{{Key: "$and", Value: mongoTerms(e.Terms)}}
	case core.Disjunction:
		return bson.D{{Key: "$or", Value: mongoTerms(e.Terms)}}
	default:
		return bson.D{{Key: "$expr", Value: false}}
	}
}

// MongoSort translates sort keys into a sort document.
func MongoSort(keys []core.SortKey) bson.D {
	sort := make(bson.D, 0, len(keys))
	for _, k := range keys {
		dir := 1
		if k.Descending {
			dir = -1
		}
		sort = append(sort, bson.E{Key: mongoField(k.Field), Value: dir})
	}
	return sort
}

func mongoTerms(terms []core.Expr) bson.A {
	out := make(bson.A, 0, len(terms))
	for _, t := range terms {
		out = append(out, MongoFilter(t))
	}
	return out
}

func mongoRegex(pattern string) bson.Regex {
	body, insensitive := filter.SplitCaseInsensitive(pattern)
	re := bson.Regex{Pattern: body}
	if insensitive {
		re.Options = "i"
	}
	return re
}

func mongoField(field string) string {
	if field == core.IDField {
		return mongoIDField
	}
	return field
}

// toMongoDocument renames the record identifier to _id.
func toMongoDocument(rec core.Record) bson.M {
	doc := make(bson.M, len(rec))
	for k, v := range rec {
		doc[mongoField(k)] = v
	}
	return doc
}

// fromMongoDocument renames _id back to id and converts driver types.
func fromMongoDocument(doc bson.M) core.Record {
	rec := make(core.Record, len(doc))
	for k, v := range doc {
		if k == mongoIDField {
			k = core.IDField
		}
		rec[k] = fromMongoValue(v)
	}
	return rec
}

func fromMongoValue(v any) any {
	switch val := v.(type) {
	case bson.D:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = fromMongoValue(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(val))
		for k, e := range val {
			m[k] = fromMongoValue(e)
		}
		return m
	case bson.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = fromMongoValue(e)
		}
		return out
	case bson.DateTime:
		return val.Time().UTC()
	case bson.ObjectID:
		return val.Hex()
	case bson.Decimal128:
		return val.String()
	case int32:
		return int64(val)
	default:
		return v
	}
}
