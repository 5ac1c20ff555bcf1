package sqlfront

import "github.com/irouter/qrouter/core"

// exprEqual is plain structural equality over the closed Expr variant, used
// by the optimizer's fixpoint loop and its idempotence tests.
func exprEqual(a, b core.Expr) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case core.ExprLiteral:
		return literalEqual(a.Literal, b.Literal)
	case core.ExprColumn:
		return a.Table == b.Table && a.Column == b.Column
	case core.ExprStar:
		return a.Table == b.Table
	case core.ExprBinary:
		return a.Op == b.Op && exprEqual(*a.Left, *b.Left) && exprEqual(*a.Right, *b.Right)
	case core.ExprUnary:
		return a.Op == b.Op && exprEqual(*a.Operand, *b.Operand)
	case core.ExprNot, core.ExprIsNull, core.ExprIsNotNull:
		return exprEqual(*a.Operand, *b.Operand)
	case core.ExprAnd, core.ExprOr:
		if len(a.Args) != len(b.Args) {
			return false
		}
		for i := range a.Args {
			if !exprEqual(a.Args[i], b.Args[i]) {
				return false
			}
		}
		return true
	case core.ExprFuncCall:
		if a.Func != b.Func || a.Over != b.Over || len(a.Call) != len(b.Call) {
			return false
		}
		for i := range a.Call {
			if !exprEqual(a.Call[i], b.Call[i]) {
				return false
			}
		}
		return true
	case core.ExprIn:
		if a.Negate != b.Negate || len(a.InList) != len(b.InList) {
			return false
		}
		if !exprEqual(*a.Left, *b.Left) {
			return false
		}
		for i := range a.InList {
			if !exprEqual(a.InList[i], b.InList[i]) {
				return false
			}
		}
		return true
	case core.ExprBetween:
		return exprEqual(*a.Left, *b.Left) && exprEqual(*a.Low, *b.Low) && exprEqual(*a.High, *b.High)
	}
	return false
}

func literalEqual(a, b core.Literal) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case core.LitInt, core.LitDate, core.LitTimestamp:
		return a.Int == b.Int
	case core.LitFloat:
		return a.Flt == b.Flt
	case core.LitBool:
		return a.Bool == b.Bool
	case core.LitString:
		return a.Str == b.Str
	}
	return false
}
