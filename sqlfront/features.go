package sqlfront

import "github.com/irouter/qrouter/core"

// FeatureExtractor walks an optimized AST once, accumulating the Features
// tuple spec.md section 4.1 defines: counts of joins, aggregations, window
// functions, DISTINCT/ORDER BY flags, LIMIT, projected column count, and a
// heuristic selectivity estimate.
type FeatureExtractor struct{}

func NewFeatureExtractor() *FeatureExtractor { return &FeatureExtractor{} }

// Extract computes Features for stmt from the AST alone; bytes scanned are
// not an input here (they belong to the cost model).
func (fx *FeatureExtractor) Extract(stmt *core.Stmt) core.Features {
	f := core.Features{
		Distinct:         stmt.Distinct,
		OrderBy:          len(stmt.OrderBy) > 0,
		Limit:            stmt.Limit,
		ProjectedColumns: len(stmt.Projections),
		Joins:            len(stmt.Joins),
	}

	for _, p := range stmt.Projections {
		if !p.Star {
			countAggWindow(p.Expr, &f)
		}
	}
	for _, o := range stmt.OrderBy {
		countAggWindow(o.Expr, &f)
	}

	f.ComplexityScore = f.Joins*3 + f.Aggregations*2 + f.Windows*4
	if f.Distinct {
		f.ComplexityScore++
	}
	if f.OrderBy {
		f.ComplexityScore++
	}

	f.Selectivity = estimateSelectivity(stmt.Where)

	return f
}

func countAggWindow(e core.Expr, f *core.Features) {
	if e.Kind != core.ExprFuncCall {
		return
	}
	if e.Over {
		f.Windows++
	} else if core.IsAggregateFunc(e.Func) {
		f.Aggregations++
	}
	for _, arg := range e.Call {
		countAggWindow(arg, f)
	}
}

// estimateSelectivity implements the heuristic in spec.md section 4.1:
// equality contributes 1/100, range 1/10, IN(k) contributes k/100 capped at
// 1, IS NULL 1/1000; conjunctions multiply, disjunctions add (clamped to 1).
func estimateSelectivity(where *core.Expr) float64 {
	if where == nil {
		return 1.0
	}
	return selectivityOf(*where)
}

func selectivityOf(e core.Expr) float64 {
	switch e.Kind {
	case core.ExprAnd:
		s := 1.0
		for _, a := range e.Args {
			s *= selectivityOf(a)
		}
		return s

	case core.ExprOr:
		s := 0.0
		for _, a := range e.Args {
			s += selectivityOf(a)
		}
		if s > 1 {
			s = 1
		}
		return s

	case core.ExprNot:
		return 1 - selectivityOf(*e.Operand)

	case core.ExprBinary:
		switch e.Op {
		case core.OpEq:
			return 0.01
		case core.OpLt, core.OpLte, core.OpGt, core.OpGte, core.OpNeq:
			return 0.1
		}
		return 1.0

	case core.ExprBetween:
		return 0.1

	case core.ExprIn:
		k := float64(len(e.InList))
		s := k / 100
		if s > 1 {
			s = 1
		}
		return s

	case core.ExprIsNull:
		return 0.001

	case core.ExprIsNotNull:
		return 1 - 0.001

	default:
		return 1.0
	}
}
