package sqlfront

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/irouter/qrouter/core"
)

// Canonicalizer renders a Stmt to the deterministic text form spec.md
// section 4.1 requires: every column qualified with its table alias,
// conjuncts within an AND sorted by the lexicographic order of their own
// rendered text, whitespace normalized to single spaces, keywords
// upper-cased, identifiers lower-cased, and literal spellings normalized.
//
// Because sorting happens on already-rendered text and rendering is a pure
// function of the (already flattened) AST, two ASTs
// in the same rewrite equivalence class always render to the same bytes.
type Canonicalizer struct {
	defaultTable string
}

func NewCanonicalizer() *Canonicalizer { return &Canonicalizer{} }

// Canonicalize returns the canonical text for stmt.
func (c *Canonicalizer) Canonicalize(stmt *core.Stmt) string {
	c.defaultTable = strings.ToLower(stmt.From.Alias)

	var b strings.Builder
	b.WriteString("SELECT ")
	if stmt.Distinct {
		b.WriteString("DISTINCT ")
	}
	projs := make([]string, len(stmt.Projections))
	for i, p := range stmt.Projections {
		projs[i] = c.renderProjection(p)
	}
	b.WriteString(strings.Join(projs, ", "))

	b.WriteString(" FROM ")
	b.WriteString(strings.ToLower(stmt.From.Table))
	b.WriteString(" ")
	b.WriteString(strings.ToLower(stmt.From.Alias))

	for _, j := range stmt.Joins {
		b.WriteString(" ")
		b.WriteString(joinKeyword(j.Kind))
		b.WriteString(" ")
		b.WriteString(strings.ToLower(j.Table.Table))
		b.WriteString(" ")
		b.WriteString(strings.ToLower(j.Table.Alias))
		b.WriteString(" ON ")
		b.WriteString(c.renderSorted(j.On))
	}

	if stmt.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(c.renderSorted(*stmt.Where))
	}

	if len(stmt.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		parts := make([]string, len(stmt.GroupBy))
		for i, g := range stmt.GroupBy {
			parts[i] = c.renderExpr(g)
		}
		b.WriteString(strings.Join(parts, ", "))
	}

	if stmt.Having != nil {
		b.WriteString(" HAVING ")
		b.WriteString(c.renderSorted(*stmt.Having))
	}

	if len(stmt.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		parts := make([]string, len(stmt.OrderBy))
		for i, o := range stmt.OrderBy {
			dir := "ASC"
			if o.Direction == core.Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", c.renderExpr(o.Expr), dir)
		}
		b.WriteString(strings.Join(parts, ", "))
	}

	if stmt.Limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *stmt.Limit)
	}

	return b.String()
}

func joinKeyword(k core.JoinKind) string {
	switch k {
	case core.JoinLeft:
		return "LEFT JOIN"
	case core.JoinRight:
		return "RIGHT JOIN"
	case core.JoinFull:
		return "FULL JOIN"
	default:
		return "JOIN"
	}
}

func (c *Canonicalizer) renderProjection(p core.Projection) string {
	if p.Star {
		return "*"
	}
	s := c.renderExpr(p.Expr)
	if p.Alias != "" {
		s += " AS " + strings.ToLower(p.Alias)
	}
	return s
}

// renderSorted renders a boolean expression tree, sorting AND/OR argument
// lists by the lexicographic order of each argument's own rendered text
// before joining them.
func (c *Canonicalizer) renderSorted(e core.Expr) string {
	switch e.Kind {
	case core.ExprAnd, core.ExprOr:
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			parts[i] = c.renderSorted(a)
		}
		sort.Strings(parts)
		sep := " AND "
		if e.Kind == core.ExprOr {
			sep = " OR "
		}
		joined := strings.Join(parts, sep)
		if e.Kind == core.ExprOr {
			return "(" + joined + ")"
		}
		return joined
	default:
		return c.renderExpr(e)
	}
}

func (c *Canonicalizer) renderExpr(e core.Expr) string {
	switch e.Kind {
	case core.ExprLiteral:
		return canonicalLiteral(e.Literal)

	case core.ExprColumn:
		table := strings.ToLower(e.Table)
		if table == "" {
			table = c.defaultTable
		}
		if table == "" {
			return strings.ToLower(e.Column)
		}
		return table + "." + strings.ToLower(e.Column)

	case core.ExprStar:
		if e.Table != "" {
			return strings.ToLower(e.Table) + ".*"
		}
		return "*"

	case core.ExprBinary:
		return fmt.Sprintf("%s %s %s", c.renderExpr(*e.Left), binaryOpText(e.Op), c.renderExpr(*e.Right))

	case core.ExprUnary:
		return fmt.Sprintf("-%s", c.renderExpr(*e.Operand))

	case core.ExprNot:
		return fmt.Sprintf("NOT %s", c.renderSorted(*e.Operand))

	case core.ExprAnd, core.ExprOr:
		return c.renderSorted(e)

	case core.ExprFuncCall:
		args := make([]string, len(e.Call))
		for i, a := range e.Call {
			args[i] = c.renderExpr(a)
		}
		s := fmt.Sprintf("%s(%s)", e.Func, strings.Join(args, ", "))
		if e.Over {
			s += " OVER ()"
		}
		return s

	case core.ExprIn:
		args := make([]string, len(e.InList))
		for i, a := range e.InList {
			args[i] = c.renderExpr(a)
		}
		sort.Strings(args)
		kw := "IN"
		if e.Negate {
			kw = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", c.renderExpr(*e.Left), kw, strings.Join(args, ", "))

	case core.ExprIsNull:
		return fmt.Sprintf("%s IS NULL", c.renderExpr(*e.Operand))

	case core.ExprIsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", c.renderExpr(*e.Operand))

	case core.ExprBetween:
		return fmt.Sprintf("%s BETWEEN %s AND %s", c.renderExpr(*e.Left), c.renderExpr(*e.Low), c.renderExpr(*e.High))
	}
	return ""
}

func binaryOpText(op core.BinaryOp) string {
	switch op {
	case core.OpEq:
		return "="
	case core.OpNeq:
		return "!="
	case core.OpLt:
		return "<"
	case core.OpLte:
		return "<="
	case core.OpGt:
		return ">"
	case core.OpGte:
		return ">="
	case core.OpAdd:
		return "+"
	case core.OpSub:
		return "-"
	case core.OpMul:
		return "*"
	case core.OpDiv:
		return "/"
	case core.OpConcat:
		return "||"
	}
	return "?"
}

// canonicalLiteral renders a literal per spec.md 4.1(e): integers without
// leading zeros, dates as YYYY-MM-DD, strings single-quoted with doubled
// internal quotes.
func canonicalLiteral(l core.Literal) string {
	switch l.Kind {
	case core.LitInt:
		return strconv.FormatInt(l.Int, 10)
	case core.LitFloat:
		return strconv.FormatFloat(l.Flt, 'g', -1, 64)
	case core.LitBool:
		if l.Bool {
			return "TRUE"
		}
		return "FALSE"
	case core.LitDate:
		return "'" + core.DaysToDate(l.Int) + "'"
	case core.LitTimestamp:
		return "'" + core.NanosToTimestamp(l.Int) + "'"
	case core.LitString:
		return "'" + strings.ReplaceAll(l.Str, "'", "''") + "'"
	}
	return ""
}
