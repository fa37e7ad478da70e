package store

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/filter"
)

// Documents live in a two-column table: the string key and the JSON body.
const (
	mysqlIDColumn  = "`id`"
	mysqlDocColumn = "`doc`"

	// mysqlNoLimit is the largest LIMIT MySQL accepts, used when only OFFSET is wanted.
	mysqlNoLimit = "18446744073709551615"
)

var mysqlOperators = map[core.CompareOp]string{
	core.OpEq: "=",
	core.OpNe: "<>",
	core.OpGt: ">",
	core.OpGe: ">=",
	core.OpLt: "<",
	core.OpLe: "<=",
}

var indexFieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

type sqlBuilder struct {
	sb   strings.Builder
	args []any
}

func (b *sqlBuilder) write(parts ...string) {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
}

func (b *sqlBuilder) arg(v any) {
	b.args = append(b.args, v)
}

func (b *sqlBuilder) String() string {
	return b.sb.String()
}

// predicate appends a boolean SQL expression for expr. Missing fields extract
// as SQL NULL, so they fail every comparison.
func (b *sqlBuilder) predicate(expr core.Expr) error {
	switch e := expr.(type) {
	case nil:
		b.write("TRUE")
	case core.Constant:
		if e.Value {
			b.write("TRUE")
		} else {
			b.write("FALSE")
		}
	case core.Comparison:
		return b.comparison(e)
	case core.Match:
		body, insensitive := filter.SplitCaseInsensitive(e.Pattern)
		flags := "c"
		if insensitive {
			flags = "i"
		}
		if e.Negate {
			b.write("NOT ")
		}
		b.write("REGEXP_LIKE(JSON_UNQUOTE(JSON_EXTRACT(", mysqlDocColumn, ", ?)), ?, ?)")
		b.arg(fieldPath(e.Field))
		b.arg(body)
		b.arg(flags)
	case core.Conjunction:
		return b.terms(e.Terms, " AND ")
	case core.Disjunction:
		return b.terms(e.Terms, " OR ")
	default:
		return fmt.Errorf("unsupported predicate %T", expr)
	}
	return nil
}

func (b *sqlBuilder) comparison(c core.Comparison) error {
	op, ok := mysqlOperators[c.Op]
	if !ok {
		return fmt.Errorf("unsupported comparison %q", c.Op)
	}

	if c.Field == core.IDField && (c.Op == core.OpEq || c.Op == core.OpNe) && c.Value != nil {
		b.write(mysqlIDColumn, " ", op, " ?")
		b.arg(KeyOf(c.Value))
		return nil
	}

	if t, isTime := c.Value.(time.Time); isTime {
		b.write("JSON_EXTRACT(", mysqlDocColumn, ", ?) ", op, " CAST(? AS JSON)")
		b.arg(fieldPath(c.Field) + "." + epochTimeKey)
		b.arg(strconv.FormatFloat(float64(t.UnixMilli())/1000, 'f', -1, 64))
		return nil
	}

	value, err := EncodeValue(c.Value)
	if err != nil {
		return err
	}
	b.write("JSON_EXTRACT(", mysqlDocColumn, ", ?) ", op, " CAST(? AS JSON)")
	b.arg(fieldPath(c.Field))
	b.arg(string(value))
	return nil
}

func (b *sqlBuilder) terms(terms []core.Expr, sep string) error {
	if len(terms) == 0 {
		if sep == " AND " {
			b.write("TRUE")
		} else {
			b.write("FALSE")
		}
		return nil
	}
	b.write("(")
	for i, t := range terms {
		if i > 0 {
			b.write(sep)
		}
		if err := b.predicate(t); err != nil {
			return err
		}
	}
	b.write(")")
	return nil
}

func (b *sqlBuilder) orderBy(keys []core.SortKey) {
	if len(keys) == 0 {
		return
	}
	b.write(" ORDER BY ")
	for i, k := range keys {
		if i > 0 {
			b.write(", ")
		}
		b.write("JSON_EXTRACT(", mysqlDocColumn, ", ?)")
		b.arg(fieldPath(k.Field))
		if k.Descending {
			b.write(" DESC")
		} else {
			b.write(" ASC")
		}
	}
}

// mysqlSelect renders the query for a plan.
func mysqlSelect(plan *core.Plan) (string, []any, error) {
	b := &sqlBuilder{}
	b.write("SELECT ", mysqlDocColumn, " FROM ", quoteIdent(plan.Collection), " WHERE ")
	if err := b.predicate(plan.Predicate); err != nil {
		return "", nil, err
	}
	b.orderBy(plan.Order)
	switch {
	case plan.Limit > 0:
		b.write(" LIMIT ?")
		b.arg(plan.Limit)
		if plan.Skip > 0 {
			b.write(" OFFSET ?")
			b.arg(plan.Skip)
		}
	case plan.Skip > 0:
		b.write(" LIMIT ", mysqlNoLimit, " OFFSET ?")
		b.arg(plan.Skip)
	}
	return b.String(), b.args, nil
}

func mysqlCount(table string, pred core.Expr) (string, []any, error) {
	b := &sqlBuilder{}
	b.write("SELECT COUNT(*) FROM ", quoteIdent(table), " WHERE ")
	if err := b.predicate(pred); err != nil {
		return "", nil, err
	}
	return b.String(), b.args, nil
}

func mysqlDelete(table string, pred core.Expr) (string, []any, error) {
	b := &sqlBuilder{}
	b.write("DELETE FROM ", quoteIdent(table), " WHERE ")
	if err := b.predicate(pred); err != nil {
		return "", nil, err
	}
	return b.String(), b.args, nil
}

// mysqlUpdate merges fields into the JSON body of every matching row. The id
// field is never rewritten.
func mysqlUpdate(table string, pred core.Expr, fields core.Record) (string, []any, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != core.IDField {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", nil, fmt.Errorf("no fields to update")
	}
	sort.Strings(keys)

	b := &sqlBuilder{}
	b.write("UPDATE ", quoteIdent(table), " SET ", mysqlDocColumn, " = JSON_SET(", mysqlDocColumn)
	for _, k := range keys {
		value, err := EncodeValue(fields[k])
		if err != nil {
			return "", nil, err
		}
		b.write(", ?, CAST(? AS JSON)")
		b.arg(keyPath(k))
		b.arg(string(value))
	}
	b.write(") WHERE ")
	if err := b.predicate(pred); err != nil {
		return "", nil, err
	}
	return b.String(), b.args, nil
}

func mysqlCreateTable(table string) string {
	return "CREATE TABLE " + quoteIdent(table) + " (" +
		mysqlIDColumn + " VARCHAR(191) NOT NULL PRIMARY KEY, " +
		mysqlDocColumn + " JSON NOT NULL" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
}

// mysqlCreateIndex renders a functional index over JSON fields.
func mysqlCreateIndex(table string, spec core.IndexSpec) (string, error) {
	if len(spec.Fields) == 0 {
		return "", fmt.Errorf("index %s has no fields", spec.Name)
	}

	parts := make([]string, 0, len(spec.Fields))
	for _, field := range spec.Fields {
		if !indexFieldPattern.MatchString(field) {
			return "", fmt.Errorf("index %s: unsupported field path %q", spec.Name, field)
		}
		parts = append(parts, fmt.Sprintf("(CAST(%s->>'%s' AS CHAR(255)) COLLATE utf8mb4_bin)", mysqlDocColumn, fieldPath(field)))
	}

	kind := "INDEX"
	if spec.Unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, quoteIdent(spec.Name), quoteIdent(table), strings.Join(parts, ", ")), nil
}

// fieldPath is the JSON path of a field, descending through dotted segments.
func fieldPath(field string) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, part := range strings.Split(field, ".") {
		sb.WriteString(".")
		sb.WriteString(quotePathKey(part))
	}
	return sb.String()
}

// keyPath is the JSON path of a single top-level key, dots included.
func keyPath(key string) string {
	return "$." + quotePathKey(key)
}

func quotePathKey(key string) string {
	key = strings.ReplaceAll(key, `\`, `\\`)
	key = strings.ReplaceAll(key, `"`, `\"`)
	return `"` + key + `"`
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
