package sqlfront

import "github.com/irouter/qrouter/core"

// Optimizer rewrites WHERE, HAVING, GROUP BY and JOIN ON expressions by
// repeating, until nothing changes, NOT de Morgan normalization, constant
// folding, flattening of conjunctions and removal of trivially true/false
// branches, and prunes the SELECT list by dropping exact duplicates. It does
// no predicate pushdown to scans. It is idempotent: Optimize(Optimize(ast)) is
// structurally equal to Optimize(ast), because every rewrite below is
// itself a fixpoint of its own normal form.
type Optimizer struct{}

func NewOptimizer() *Optimizer { return &Optimizer{} }

// Optimize returns a new, rewritten Stmt; the input is never mutated.
func (o *Optimizer) Optimize(stmt *core.Stmt) *core.Stmt {
	out := *stmt

	if stmt.Where != nil {
		w := o.rewriteExpr(*stmt.Where)
		out.Where = &w
	}
	if stmt.Having != nil {
		h := o.rewriteExpr(*stmt.Having)
		out.Having = &h
	}
	out.GroupBy = append([]core.Expr(nil), stmt.GroupBy...)
	for i := range out.GroupBy {
		out.GroupBy[i] = o.rewriteExpr(out.GroupBy[i])
	}
	out.Joins = append([]core.JoinClause(nil), stmt.Joins...)
	for i := range out.Joins {
		out.Joins[i].On = o.rewriteExpr(out.Joins[i].On)
	}

	out.Projections = pruneProjections(stmt.Projections)

	return &out
}

// rewriteExpr applies de Morgan normalization, constant folding, conjunction
// flattening and trivial-branch removal to a fixpoint.
func (o *Optimizer) rewriteExpr(e core.Expr) core.Expr {
	for {
		next := deMorgan(e)
		next = foldConstants(next)
		next = flatten(next)
		next = removeTrivial(next)
		if exprEqual(next, e) {
			return next
		}
		e = next
	}
}

// deMorgan pushes NOT down towards the leaves: NOT(a AND b) -> NOT a OR NOT
// b, NOT(a OR b) -> NOT a AND NOT b, NOT(NOT a) -> a, and NOT of a comparison
// becomes the negated comparison.
func deMorgan(e core.Expr) core.Expr {
	switch e.Kind {
	case core.ExprNot:
		inner := deMorgan(*e.Operand)
		switch inner.Kind {
		case core.ExprNot:
			return *inner.Operand
		case core.ExprAnd:
			args := make([]core.Expr, len(inner.Args))
			for i, a := range inner.Args {
				neg := deMorgan(core.Expr{Kind: core.ExprNot, Operand: &a})
				args[i] = neg
			}
			return core.Expr{Kind: core.ExprOr, Args: args}
		case core.ExprOr:
			args := make([]core.Expr, len(inner.Args))
			for i, a := range inner.Args {
				neg := deMorgan(core.Expr{Kind: core.ExprNot, Operand: &a})
				args[i] = neg
			}
			return core.Expr{Kind: core.ExprAnd, Args: args}
		case core.ExprBinary:
			if negatable, ok := negateOp(inner.Op); ok {
				return core.Expr{Kind: core.ExprBinary, Op: negatable, Left: inner.Left, Right: inner.Right}
			}
		case core.ExprIsNull:
			return core.Expr{Kind: core.ExprIsNotNull, Operand: inner.Operand}
		case core.ExprIsNotNull:
			return core.Expr{Kind: core.ExprIsNull, Operand: inner.Operand}
		case core.ExprIn:
			return core.Expr{Kind: core.ExprIn, Left: inner.Left, InList: inner.InList, Negate: !inner.Negate}
		}
		return core.Expr{Kind: core.ExprNot, Operand: &inner}

	case core.ExprAnd, core.ExprOr:
		args := make([]core.Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = deMorgan(a)
		}
		e.Args = args
		return e

	default:
		return e
	}
}

func negateOp(op core.BinaryOp) (core.BinaryOp, bool) {
	switch op {
	case core.OpEq:
		return core.OpNeq, true
	case core.OpNeq:
		return core.OpEq, true
	case core.OpLt:
		return core.OpGte, true
	case core.OpLte:
		return core.OpGt, true
	case core.OpGt:
		return core.OpLte, true
	case core.OpGte:
		return core.OpLt, true
	}
	return op, false
}

// flatten merges nested AND-of-AND (resp. OR-of-OR) into a single Args list.
func flatten(e core.Expr) core.Expr {
	switch e.Kind {
	case core.ExprAnd, core.ExprOr:
		var args []core.Expr
		for _, a := range e.Args {
			fa := flatten(a)
			if fa.Kind == e.Kind {
				args = append(args, fa.Args...)
			} else {
				args = append(args, fa)
			}
		}
		e.Args = args
		return e
	case core.ExprNot:
		inner := flatten(*e.Operand)
		return core.Expr{Kind: core.ExprNot, Operand: &inner}
	default:
		return e
	}
}

// removeTrivial drops literal TRUE/FALSE branches: an AND short-circuits to
// FALSE if any conjunct is FALSE and drops any TRUE conjuncts; an OR is
// symmetric.
func removeTrivial(e core.Expr) core.Expr {
	switch e.Kind {
	case core.ExprAnd:
		var args []core.Expr
		for _, a := range e.Args {
			a = removeTrivial(a)
			if isBoolLiteral(a, false) {
				return boolLiteral(false)
			}
			if isBoolLiteral(a, true) {
				continue
			}
			args = append(args, a)
		}
		if len(args) == 0 {
			return boolLiteral(true)
		}
		if len(args) == 1 {
			return args[0]
		}
		return core.Expr{Kind: core.ExprAnd, Args: args}

	case core.ExprOr:
		var args []core.Expr
		for _, a := range e.Args {
			a = removeTrivial(a)
			if isBoolLiteral(a, true) {
				return boolLiteral(true)
			}
			if isBoolLiteral(a, false) {
				continue
			}
			args = append(args, a)
		}
		if len(args) == 0 {
			return boolLiteral(false)
		}
		if len(args) == 1 {
			return args[0]
		}
		return core.Expr{Kind: core.ExprOr, Args: args}

	default:
		return e
	}
}

func isBoolLiteral(e core.Expr, v bool) bool {
	return e.Kind == core.ExprLiteral && e.Literal.Kind == core.LitBool && e.Literal.Bool == v
}

func boolLiteral(v bool) core.Expr {
	return core.Expr{Kind: core.ExprLiteral, Literal: core.Literal{Kind: core.LitBool, Bool: v}}
}

// foldConstants evaluates arithmetic and comparisons between two literals at
// optimize time.
func foldConstants(e core.Expr) core.Expr {
	switch e.Kind {
	case core.ExprBinary:
		left := foldConstants(*e.Left)
		right := foldConstants(*e.Right)
		if left.Kind == core.ExprLiteral && right.Kind == core.ExprLiteral {
			if folded, ok := foldBinary(e.Op, left.Literal, right.Literal); ok {
				return core.Expr{Kind: core.ExprLiteral, Literal: folded}
			}
		}
		return core.Expr{Kind: core.ExprBinary, Op: e.Op, Left: &left, Right: &right}

	case core.ExprAnd, core.ExprOr:
		args := make([]core.Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = foldConstants(a)
		}
		e.Args = args
		return e

	case core.ExprNot:
		inner := foldConstants(*e.Operand)
		if inner.Kind == core.ExprLiteral && inner.Literal.Kind == core.LitBool {
			return boolLiteral(!inner.Literal.Bool)
		}
		return core.Expr{Kind: core.ExprNot, Operand: &inner}

	default:
		return e
	}
}

func foldBinary(op core.BinaryOp, l, r core.Literal) (core.Literal, bool) {
	isCompare := op == core.OpEq || op == core.OpNeq || op == core.OpLt ||
		op == core.OpLte || op == core.OpGt || op == core.OpGte
	if isCompare {
		cmp, ok := compareLiterals(l, r)
		if !ok {
			return core.Literal{}, false
		}
		var result bool
		switch op {
		case core.OpEq:
			result = cmp == 0
		case core.OpNeq:
			result = cmp != 0
		case core.OpLt:
			result = cmp < 0
		case core.OpLte:
			result = cmp <= 0
		case core.OpGt:
			result = cmp > 0
		case core.OpGte:
			result = cmp >= 0
		}
		return core.Literal{Kind: core.LitBool, Bool: result}, true
	}

	if l.Kind == core.LitInt && r.Kind == core.LitInt {
		switch op {
		case core.OpAdd:
			return core.Literal{Kind: core.LitInt, Int: l.Int + r.Int}, true
		case core.OpSub:
			return core.Literal{Kind: core.LitInt, Int: l.Int - r.Int}, true
		case core.OpMul:
			return core.Literal{Kind: core.LitInt, Int: l.Int * r.Int}, true
		case core.OpDiv:
			if r.Int != 0 {
				return core.Literal{Kind: core.LitInt, Int: l.Int / r.Int}, true
			}
		}
	}
	if op == core.OpConcat && l.Kind == core.LitString && r.Kind == core.LitString {
		return core.Literal{Kind: core.LitString, Str: l.Str + r.Str}, true
	}
	return core.Literal{}, false
}

// compareLiterals compares two literals of matching Kind. Cross-kind
// comparisons are undefined here (surfaced as core.PredOther upstream).
func compareLiterals(l, r core.Literal) (int, bool) {
	if l.Kind != r.Kind {
		return 0, false
	}
	switch l.Kind {
	case core.LitInt, core.LitDate, core.LitTimestamp:
		switch {
		case l.Int < r.Int:
			return -1, true
		case l.Int > r.Int:
			return 1, true
		default:
			return 0, true
		}
	case core.LitFloat:
		switch {
		case l.Flt < r.Flt:
			return -1, true
		case l.Flt > r.Flt:
			return 1, true
		default:
			return 0, true
		}
	case core.LitString:
		switch {
		case l.Str < r.Str:
			return -1, true
		case l.Str > r.Str:
			return 1, true
		default:
			return 0, true
		}
	case core.LitBool:
		if l.Bool == r.Bool {
			return 0, true
		}
		if !l.Bool && r.Bool {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// pruneProjections removes exact structural duplicates from the SELECT list,
// preserving first occurrence order.
func pruneProjections(projs []core.Projection) []core.Projection {
	var out []core.Projection
	for _, p := range projs {
		dup := false
		for _, seen := range out {
			if projectionEqual(p, seen) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}

func projectionEqual(a, b core.Projection) bool {
	if a.Star != b.Star || a.Alias != b.Alias {
		return false
	}
	if a.Star {
		return true
	}
	return exprEqual(a.Expr, b.Expr)
}
