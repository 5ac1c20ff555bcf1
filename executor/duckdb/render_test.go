package duckdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irouter/qrouter/core"
)

func col(name string) core.Expr {
	return core.Expr{Kind: core.ExprColumn, Column: name}
}

func strLit(s string) core.Expr {
	return core.Expr{Kind: core.ExprLiteral, Literal: core.Literal{Kind: core.LitString, Str: s}}
}

func TestRenderSubstitutesFilesForTable(t *testing.T) {
	stmt := &core.Stmt{
		Projections: []core.Projection{{Expr: core.Expr{Kind: core.ExprStar}, Star: true}},
		From:        core.TableRef{Table: "sales"},
	}
	files := map[string][]string{
		"sales": {"/data/sales/date=2024-11-01/part-0.parquet", "/data/sales/date=2024-11-02/part-0.parquet"},
	}

	sql, err := render(stmt, files)
	require.NoError(t, err)
	assert.Contains(t, sql, "read_parquet([")
	assert.Contains(t, sql, "'/data/sales/date=2024-11-01/part-0.parquet'")
	assert.Contains(t, sql, "union_by_name=true")
	assert.Contains(t, sql, `AS "sales"`)
}

func TestRenderMissingFilesIsPermanentError(t *testing.T) {
	stmt := &core.Stmt{
		Projections: []core.Projection{{Star: true}},
		From:        core.TableRef{Table: "sales"},
	}
	_, err := render(stmt, map[string][]string{})

	rerr, ok := err.(*core.Error)
	require.True(t, ok)
	assert.Equal(t, core.ErrExecutor, rerr.Kind)
	assert.Equal(t, core.ExecPermanent, rerr.ExecKind)
}

func TestRenderWhereAndGroupByAndLimit(t *testing.T) {
	where := core.Expr{
		Kind: core.ExprBinary,
		Op:   core.OpGte,
		Left: ptr(col("amount")),
		Right: ptr(core.Expr{Kind: core.ExprLiteral, Literal: core.Literal{Kind: core.LitFloat, Flt: 100}}),
	}
	limit := int64(10)
	stmt := &core.Stmt{
		Projections: []core.Projection{{Expr: col("region")}},
		From:        core.TableRef{Table: "sales", Alias: "s"},
		Where:       &where,
		GroupBy:     []core.Expr{col("region")},
		Limit:       &limit,
	}
	files := map[string][]string{"sales": {"/data/sales/part-0.parquet"}}

	sql, err := render(stmt, files)
	require.NoError(t, err)
	assert.Contains(t, sql, `AS "s"`)
	assert.Contains(t, sql, "WHERE (\"amount\" >= 100)")
	assert.Contains(t, sql, "GROUP BY \"region\"")
	assert.Contains(t, sql, "LIMIT 10")
}

func TestRenderLiteralKinds(t *testing.T) {
	assert.Equal(t, "42", renderLiteral(core.Literal{Kind: core.LitInt, Int: 42}))
	assert.Equal(t, "TRUE", renderLiteral(core.Literal{Kind: core.LitBool, Bool: true}))
	assert.Equal(t, "FALSE", renderLiteral(core.Literal{Kind: core.LitBool, Bool: false}))
	assert.Equal(t, "'it''s'", renderLiteral(core.Literal{Kind: core.LitString, Str: "it's"}))
	assert.Contains(t, renderLiteral(core.Literal{Kind: core.LitDate, Int: 0}), "DATE '")
	assert.Contains(t, renderLiteral(core.Literal{Kind: core.LitTimestamp, Int: 0}), "epoch_ns(")
}

func TestRenderInExpression(t *testing.T) {
	in := core.Expr{
		Kind: core.ExprIn,
		Left: ptr(col("region")),
		InList: []core.Expr{
			strLit("east"),
			strLit("west"),
		},
	}
	stmt := &core.Stmt{
		Projections: []core.Projection{{Star: true}},
		From:        core.TableRef{Table: "sales"},
		Where:       &in,
	}
	files := map[string][]string{"sales": {"/data/sales/part-0.parquet"}}

	sql, err := render(stmt, files)
	require.NoError(t, err)
	assert.Contains(t, sql, `("region" IN ('east', 'west'))`)
}

func ptr(e core.Expr) *core.Expr { return &e }
