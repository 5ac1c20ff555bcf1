package core

// The AST is a closed tagged variant: every node kind is enumerated below
// and the optimizer, canonicalizer and feature extractor are written as
// exhaustive matches over these kinds rather than over a dynamic node type.

// StmtKind tags the single statement shape this router accepts.
type StmtKind int

const (
	StmtSelect StmtKind = iota
)

// Stmt is the parsed representation of a single SELECT statement.
type Stmt struct {
	Kind StmtKind

	Projections []Projection
	From        TableRef
	Joins       []JoinClause
	Where       *Expr // nil when no WHERE clause
	GroupBy     []Expr
	Having      *Expr // nil when no HAVING clause
	OrderBy     []OrderTerm
	Limit       *int64
	Distinct    bool
}

// Projection is a single SELECT-list item.
type Projection struct {
	Expr  Expr
	Alias string // "" when none given
	Star  bool   // true for `*` or `alias.*`
}

// TableRef names a catalog table and its alias in the FROM clause.
type TableRef struct {
	Table string
	Alias string
}

// JoinKind tags the supported join types.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
	JoinFull
)

// JoinClause is one joined table plus its ON condition.
type JoinClause struct {
	Kind   JoinKind
	Table  TableRef
	On     Expr
}

// OrderDirection tags ascending/descending order.
type OrderDirection int

const (
	Asc OrderDirection = iota
	Desc
)

// OrderTerm is a single ORDER BY item.
type OrderTerm struct {
	Expr      Expr
	Direction OrderDirection
}

// ExprKind tags the shape of an expression node.
type ExprKind int

const (
	ExprLiteral ExprKind = iota
	ExprColumn
	ExprBinary
	ExprUnary
	ExprAnd
	ExprOr
	ExprNot
	ExprFuncCall
	ExprIn
	ExprIsNull
	ExprIsNotNull
	ExprBetween
	ExprStar
)

// BinaryOp enumerates the comparison and arithmetic operators the parser
// recognizes.
type BinaryOp int

const (
	OpEq BinaryOp = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpConcat
)

// Expr is a node in the expression tree. Only the fields relevant to Kind
// are populated; the rest are zero. This mirrors the Predicate/Literal
// tagged-struct idiom used across the router rather than a Go interface, so
// that AST equality (used by the optimizer's idempotence check) is plain
// struct equality after normalization.
type Expr struct {
	Kind ExprKind

	// ExprLiteral
	Literal Literal

	// ExprColumn
	Table  string // alias as written, "" if unqualified
	Column string

	// ExprBinary
	Op    BinaryOp
	Left  *Expr
	Right *Expr

	// ExprUnary / ExprNot
	Operand *Expr

	// ExprAnd / ExprOr: flattened list of conjuncts/disjuncts
	Args []Expr

	// ExprFuncCall
	Func string
	Call []Expr
	Over bool // true when the call carries an OVER (...) clause

	// ExprIn
	InList []Expr
	Negate bool // NOT IN

	// ExprBetween
	Low, High *Expr

	// ExprIsNull / ExprIsNotNull share Operand
}

// IsAggregateFunc reports whether name is one of the aggregate functions the
// feature extractor and complexity scorer recognize.
func IsAggregateFunc(name string) bool {
	switch name {
	case "SUM", "COUNT", "AVG", "MIN", "MAX":
		return true
	default:
		return false
	}
}

// IsWindowFunc reports whether name is a recognized window function; window
// functions are only counted when the call carries an OVER clause, tracked
// separately by the parser via the Expr.Over flag of an ExprFuncCall node.
func IsWindowFunc(name string) bool {
	switch name {
	case "ROW_NUMBER", "RANK", "DENSE_RANK", "LAG", "LEAD", "NTILE":
		return true
	default:
		return false
	}
}
