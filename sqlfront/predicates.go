package sqlfront

import "github.com/irouter/qrouter/core"

// ExtractPredicates collects the conjuncts of the top-level WHERE clause
// that reference a single table column and a literal, reshaping them into
// core.Predicate values keyed by the table they reference. Conjuncts that
// reference multiple columns, subqueries, or functions are classified as
// core.PredOther and grouped under every table the query references, since
// pruning ignores them but the executor still needs them.
//
// resolveTable resolves an (alias, unqualified-column-implies-default-table)
// pair to the table name a predicate should be attributed to; for a single
// FROM table with no joins the default alias always resolves to that table.
func ExtractPredicates(stmt *core.Stmt) map[string][]core.Predicate {
	out := map[string][]core.Predicate{}
	aliasToTable := map[string]string{stmt.From.Alias: stmt.From.Table}
	for _, j := range stmt.Joins {
		aliasToTable[j.Table.Alias] = j.Table.Table
	}

	if stmt.Where == nil {
		return out
	}

	conjuncts := conjunctsOf(*stmt.Where)
	for _, c := range conjuncts {
		pred, table, ok := toPredicate(c, stmt.From.Alias, aliasToTable)
		if !ok {
			// Other: opaque to pruning, attach to every referenced table so
			// the executor still receives it verbatim via the AST (predicates
			// are informational here; the AST itself carries the real filter).
			for _, t := range allTables(stmt) {
				out[t] = append(out[t], core.Predicate{Kind: core.PredOther, Table: t, RawText: exprDebugText(c)})
			}
			continue
		}
		out[table] = append(out[table], pred)
	}
	return out
}

func allTables(stmt *core.Stmt) []string {
	tables := []string{stmt.From.Table}
	for _, j := range stmt.Joins {
		tables = append(tables, j.Table.Table)
	}
	return tables
}

// conjunctsOf flattens an AND tree (post-optimization, already flattened)
// into its list of conjuncts; a non-AND expression is a single conjunct.
func conjunctsOf(e core.Expr) []core.Expr {
	if e.Kind == core.ExprAnd {
		return e.Args
	}
	return []core.Expr{e}
}

// toPredicate attempts to reshape a single conjunct into a core.Predicate.
// It succeeds only for expressions of the shape `column OP literal` (or the
// reverse), IN, IS [NOT] NULL and BETWEEN over a single column.
func toPredicate(e core.Expr, defaultAlias string, aliasToTable map[string]string) (core.Predicate, string, bool) {
	switch e.Kind {
	case core.ExprBinary:
		col, lit, colIsLeft, ok := columnLiteralPair(e.Left, e.Right)
		if !ok {
			return core.Predicate{}, "", false
		}
		table, ok := resolveTable(col, defaultAlias, aliasToTable)
		if !ok {
			return core.Predicate{}, "", false
		}
		switch e.Op {
		case core.OpEq:
			return core.Predicate{Kind: core.PredEq, Table: table, Col: col.Column, Value: lit}, table, true
		case core.OpNeq:
			return core.Predicate{Kind: core.PredNeq, Table: table, Col: col.Column, Value: lit}, table, true
		case core.OpLt:
			return rangePredicate(table, col.Column, colIsLeft, lit, false, false), table, true
		case core.OpLte:
			return rangePredicate(table, col.Column, colIsLeft, lit, true, false), table, true
		case core.OpGt:
			return rangePredicate(table, col.Column, colIsLeft, lit, false, true), table, true
		case core.OpGte:
			return rangePredicate(table, col.Column, colIsLeft, lit, true, true), table, true
		}
		return core.Predicate{}, "", false

	case core.ExprIn:
		if e.Left.Kind != core.ExprColumn {
			return core.Predicate{}, "", false
		}
		table, ok := resolveTable(*e.Left, defaultAlias, aliasToTable)
		if !ok {
			return core.Predicate{}, "", false
		}
		var lits []core.Literal
		for _, item := range e.InList {
			if item.Kind != core.ExprLiteral {
				return core.Predicate{}, "", false
			}
			lits = append(lits, item.Literal)
		}
		kind := core.PredIn
		if e.Negate {
			// NOT IN has no direct predicate kind in spec.md; treat as Other so
			// pruning stays conservative rather than mis-modeling it as IN.
			return core.Predicate{}, "", false
		}
		return core.Predicate{Kind: kind, Table: table, Col: e.Left.Column, Set: lits}, table, true

	case core.ExprIsNull, core.ExprIsNotNull:
		if e.Operand.Kind != core.ExprColumn {
			return core.Predicate{}, "", false
		}
		table, ok := resolveTable(*e.Operand, defaultAlias, aliasToTable)
		if !ok {
			return core.Predicate{}, "", false
		}
		kind := core.PredIsNull
		if e.Kind == core.ExprIsNotNull {
			kind = core.PredIsNotNull
		}
		return core.Predicate{Kind: kind, Table: table, Col: e.Operand.Column}, table, true

	case core.ExprBetween:
		if e.Left.Kind != core.ExprColumn || e.Low.Kind != core.ExprLiteral || e.High.Kind != core.ExprLiteral {
			return core.Predicate{}, "", false
		}
		table, ok := resolveTable(*e.Left, defaultAlias, aliasToTable)
		if !ok {
			return core.Predicate{}, "", false
		}
		lo, hi := e.Low.Literal, e.High.Literal
		return core.Predicate{
			Kind: core.PredRange, Table: table, Col: e.Left.Column,
			Lo: &lo, Hi: &hi, LoInclusive: true, HiInclusive: true,
		}, table, true
	}
	return core.Predicate{}, "", false
}

func resolveTable(col core.Expr, defaultAlias string, aliasToTable map[string]string) (string, bool) {
	alias := col.Table
	if alias == "" {
		alias = defaultAlias
	}
	table, ok := aliasToTable[alias]
	return table, ok
}

// columnLiteralPair returns (column, literal, colIsLeft, true) when exactly
// one of left/right is a bare column reference and the other a literal.
func columnLiteralPair(left, right *core.Expr) (core.Expr, core.Literal, bool, bool) {
	if left.Kind == core.ExprColumn && right.Kind == core.ExprLiteral {
		return *left, right.Literal, true, true
	}
	if right.Kind == core.ExprColumn && left.Kind == core.ExprLiteral {
		return *right, left.Literal, false, true
	}
	return core.Expr{}, core.Literal{}, false, false
}

// rangePredicate builds a PredRange from a single-sided comparison.
// colIsLeft indicates whether the column appeared on the left of the
// operator (`col < lit` vs `lit < col`), which flips which bound the
// literal constrains.
func rangePredicate(table, col string, colIsLeft bool, lit core.Literal, inclusive, isLowerBoundOp bool) core.Predicate {
	// isLowerBoundOp is true for > and >=, meaning "col >= lit" constrains the
	// lower bound when the column is on the left; if the column is on the
	// right (`lit >= col`), the same operator constrains the upper bound.
	lowerBound := isLowerBoundOp == colIsLeft
	p := core.Predicate{Kind: core.PredRange, Table: table, Col: col}
	if lowerBound {
		p.Lo = &lit
		p.LoInclusive = inclusive
	} else {
		p.Hi = &lit
		p.HiInclusive = inclusive
	}
	return p
}

// exprDebugText renders an opaque conjunct for PruneWarning/Predicate.RawText
// purposes; it need not be canonical, only stable enough for tests.
func exprDebugText(e core.Expr) string {
	c := NewCanonicalizer()
	return c.renderExpr(e)
}
