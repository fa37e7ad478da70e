package core

// Expr is a store-neutral boolean predicate over a record.
// Transports translate it into their native query form.
type Expr interface {
	isExpr()
}

// CompareOp is a relational operator.
type CompareOp string

const (
	OpEq CompareOp = "eq"
	OpNe CompareOp = "ne"
	OpGt CompareOp = "gt"
	OpGe CompareOp = "ge"
	OpLt CompareOp = "lt"
	OpLe CompareOp = "le"
)

// Comparison compares a field against a literal value.
type Comparison struct {
	Field string
	Op    CompareOp
	Value any
}

// Match is a regular-expression test against the string form of a field.
// A leading (?i) in Pattern marks a case-insensitive match.
type Match struct {
	Field   string
	Pattern string
	Negate  bool
}

// Conjunction holds when every term holds.
type Conjunction struct {
	Terms []Expr
}

// Disjunction holds when at least one term holds.
type Disjunction struct {
	Terms []Expr
}

// Constant is a predicate with a fixed outcome.
type Constant struct {
	Value bool
}

func (Comparison) isExpr()  {}
func (Match) isExpr()       {}
func (Conjunction) isExpr() {}
func (Disjunction) isExpr() {}
func (Constant) isExpr()    {}

// IDEquals returns the predicate selecting the record with the given identifier.
func IDEquals(id any) Expr {
	return Comparison{Field: IDField, Op: OpEq, Value: id}
}
