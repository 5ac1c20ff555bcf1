package flightsql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/irouter/qrouter/core"
)

// render turns an analyzed Stmt back into SQL text addressed at table
// names directly rather than a pruned file list: the remote Flight SQL
// coordinator owns its own storage layout and scan planning, so this router
// only needs to hand it a statement it can execute, not a file list.
func render(stmt *core.Stmt) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if stmt.Distinct {
		b.WriteString("DISTINCT ")
	}
	for i, p := range stmt.Projections {
		if i > 0 {
			b.WriteString(", ")
		}
		if p.Star {
			b.WriteString("*")
			continue
		}
		b.WriteString(renderExpr(p.Expr))
		if p.Alias != "" {
			b.WriteString(" AS ")
			b.WriteString(quoteIdent(p.Alias))
		}
	}

	b.WriteString(" FROM ")
	b.WriteString(source(stmt.From))

	for _, j := range stmt.Joins {
		b.WriteString(" ")
		b.WriteString(joinKeyword(j.Kind))
		b.WriteString(" ")
		b.WriteString(source(j.Table))
		b.WriteString(" ON ")
		b.WriteString(renderExpr(j.On))
	}

	if stmt.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(renderExpr(*stmt.Where))
	}

	if len(stmt.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		for i, e := range stmt.GroupBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(renderExpr(e))
		}
	}

	if stmt.Having != nil {
		b.WriteString(" HAVING ")
		b.WriteString(renderExpr(*stmt.Having))
	}

	if len(stmt.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range stmt.OrderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(renderExpr(o.Expr))
			if o.Direction == core.Desc {
				b.WriteString(" DESC")
			}
		}
	}

	if stmt.Limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *stmt.Limit)
	}

	return b.String()
}

func source(ref core.TableRef) string {
	if ref.Alias == "" || ref.Alias == ref.Table {
		return quoteIdent(ref.Table)
	}
	return quoteIdent(ref.Table) + " AS " + quoteIdent(ref.Alias)
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
		return "INNER JOIN"
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func renderExpr(e core.Expr) string {
	switch e.Kind {
	case core.ExprStar:
		return "*"
	case core.ExprLiteral:
		return renderLiteral(e.Literal)
	case core.ExprColumn:
		if e.Table != "" {
			return quoteIdent(e.Table) + "." + quoteIdent(e.Column)
		}
		return quoteIdent(e.Column)
	case core.ExprBinary:
		return fmt.Sprintf("(%s %s %s)", renderExpr(*e.Left), binOpText(e.Op), renderExpr(*e.Right))
	case core.ExprUnary:
		return fmt.Sprintf("(-%s)", renderExpr(*e.Operand))
	case core.ExprAnd:
		return joinArgs(e.Args, " AND ")
	case core.ExprOr:
		return joinArgs(e.Args, " OR ")
	case core.ExprNot:
		return fmt.Sprintf("(NOT %s)", renderExpr(*e.Operand))
	case core.ExprFuncCall:
		args := make([]string, len(e.Call))
		for i, a := range e.Call {
			args[i] = renderExpr(a)
		}
		call := fmt.Sprintf("%s(%s)", e.Func, strings.Join(args, ", "))
		if e.Over {
			call += " OVER ()"
		}
		return call
	case core.ExprIn:
		items := make([]string, len(e.InList))
		for i, a := range e.InList {
			items[i] = renderExpr(a)
		}
		neg := ""
		if e.Negate {
			neg = "NOT "
		}
		return fmt.Sprintf("(%s %sIN (%s))", renderExpr(*e.Left), neg, strings.Join(items, ", "))
	case core.ExprIsNull:
		return fmt.Sprintf("(%s IS NULL)", renderExpr(*e.Operand))
	case core.ExprIsNotNull:
		return fmt.Sprintf("(%s IS NOT NULL)", renderExpr(*e.Operand))
	case core.ExprBetween:
		return fmt.Sprintf("(%s BETWEEN %s AND %s)", renderExpr(*e.Left), renderExpr(*e.Low), renderExpr(*e.High))
	default:
		return ""
	}
}

func joinArgs(args []core.Expr, sep string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = renderExpr(a)
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func binOpText(op core.BinaryOp) string {
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
	default:
		return "?"
	}
}

func renderLiteral(l core.Literal) string {
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
		return "DATE '" + core.DaysToDate(l.Int) + "'"
	case core.LitTimestamp:
		return "TIMESTAMP '" + core.NanosToTimestamp(l.Int) + "'"
	default:
		return "'" + strings.ReplaceAll(l.Str, "'", "''") + "'"
	}
}
