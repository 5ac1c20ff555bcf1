package flightsql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/irouter/qrouter/core"
)

func TestRenderAddressesBareTableName(t *testing.T) {
	stmt := &core.Stmt{
		Projections: []core.Projection{{Star: true}},
		From:        core.TableRef{Table: "sales"},
	}
	sql := render(stmt)
	assert.Equal(t, `SELECT * FROM "sales"`, sql)
	assert.NotContains(t, sql, "read_parquet")
}

func TestRenderAliasedTable(t *testing.T) {
	stmt := &core.Stmt{
		Projections: []core.Projection{{Star: true}},
		From:        core.TableRef{Table: "sales", Alias: "s"},
	}
	sql := render(stmt)
	assert.Contains(t, sql, `"sales" AS "s"`)
}

func TestRenderJoinAndLimit(t *testing.T) {
	limit := int64(5)
	stmt := &core.Stmt{
		Projections: []core.Projection{{Star: true}},
		From:        core.TableRef{Table: "sales"},
		Joins: []core.JoinClause{{
			Kind:  core.JoinLeft,
			Table: core.TableRef{Table: "regions"},
			On: core.Expr{
				Kind: core.ExprBinary,
				Op:   core.OpEq,
				Left: &core.Expr{Kind: core.ExprColumn, Table: "sales", Column: "region_id"},
				Right: &core.Expr{Kind: core.ExprColumn, Table: "regions", Column: "id"},
			},
		}},
		Limit: &limit,
	}
	sql := render(stmt)
	assert.Contains(t, sql, "LEFT JOIN")
	assert.Contains(t, sql, `"regions"`)
	assert.Contains(t, sql, "LIMIT 5")
}

func TestRenderTimestampLiteralUsesTimestampLiteralSyntax(t *testing.T) {
	got := renderLiteral(core.Literal{Kind: core.LitTimestamp, Int: 0})
	assert.Contains(t, got, "TIMESTAMP '")
	assert.NotContains(t, got, "epoch_ns")
}
