package partition

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irouter/qrouter/core"
)

func writeFile(t *testing.T, fs afero.Fs, path string, size int, mtime time.Time) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, make([]byte, size), 0o644))
	require.NoError(t, fs.Chtimes(path, mtime, mtime))
}

func newSalesFixture(t *testing.T) (afero.Fs, *Catalog) {
	fs := afero.NewMemMapFs()
	base := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)

	writeFile(t, fs, "/data/sales/date=2024-11-01/region=east/part-0.parquet", 1000, base)
	writeFile(t, fs, "/data/sales/date=2024-11-01/region=west/part-0.parquet", 2000, base)
	writeFile(t, fs, "/data/sales/date=2024-11-02/region=east/part-0.parquet", 1500, base.AddDate(0, 0, 1))
	writeFile(t, fs, "/data/sales/date=2024-11-03/region=west/part-0.parquet", 3000, base.AddDate(0, 0, 2))

	cat := NewCatalog(fs)
	cat.Register("sales", "/data/sales", core.Schema{
		{Name: "date", Type: core.TypeDate},
		{Name: "region", Type: core.TypeString},
		{Name: "amount", Type: core.TypeFloat64},
	})
	return fs, cat
}

func TestIndexBuildsPartitionsFromDirectoryLayout(t *testing.T) {
	_, cat := newSalesFixture(t)
	idx, err := cat.IndexFor("sales")
	require.NoError(t, err)

	parts, err := idx.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, parts, 4)

	for _, p := range parts {
		require.Len(t, p.Keys, 2)
		assert.Equal(t, "date", p.Keys[0].Key)
		assert.Equal(t, "region", p.Keys[1].Key)
	}
}

func TestIndexDetectsInconsistentPartitionKeys(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Now()
	writeFile(t, fs, "/data/mixed/date=2024-11-01/region=east/part-0.parquet", 100, now)
	writeFile(t, fs, "/data/mixed/customer=42/part-0.parquet", 100, now)

	cat := NewCatalog(fs)
	cat.Register("mixed", "/data/mixed", nil)
	idx, err := cat.IndexFor("mixed")
	require.NoError(t, err)

	_, err = idx.Snapshot(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrPartitionLayout))
}

func literal(t *testing.T, kind core.LiteralKind, s string) core.Literal {
	t.Helper()
	l, ok := core.CoerceString(s, kind)
	require.True(t, ok)
	return l
}

func TestPrunerRangePruning(t *testing.T) {
	_, cat := newSalesFixture(t)
	pruner := NewPruner(cat)

	lo := literal(t, core.LitDate, "2024-11-02")
	preds := map[string][]core.Predicate{
		"sales": {
			{Kind: core.PredRange, Table: "sales", Col: "date", Lo: &lo, LoInclusive: true},
		},
	}

	plan, err := pruner.Plan(context.Background(), []string{"sales"}, preds)
	require.NoError(t, err)

	assert.Equal(t, 4, plan.PartitionsTotal)
	assert.Equal(t, 2, plan.PartitionsScanned) // 11-02 and 11-03 partitions retained
	assert.InDelta(t, 0.5, plan.FractionPruned, 1e-9)
	assert.Equal(t, int64(1500+3000), plan.TotalBytes)
}

func TestPrunerEqualityOnNonKeyColumnRetainsAll(t *testing.T) {
	_, cat := newSalesFixture(t)
	pruner := NewPruner(cat)

	amount := core.Literal{Kind: core.LitFloat, Flt: 500}
	preds := map[string][]core.Predicate{
		"sales": {{Kind: core.PredEq, Table: "sales", Col: "amount", Value: amount}},
	}

	plan, err := pruner.Plan(context.Background(), []string{"sales"}, preds)
	require.NoError(t, err)
	assert.Equal(t, 4, plan.PartitionsScanned)
}

func TestPrunerInSet(t *testing.T) {
	_, cat := newSalesFixture(t)
	pruner := NewPruner(cat)

	preds := map[string][]core.Predicate{
		"sales": {{
			Kind: core.PredIn, Table: "sales", Col: "region",
			Set: []core.Literal{literal(t, core.LitString, "east")},
		}},
	}

	plan, err := pruner.Plan(context.Background(), []string{"sales"}, preds)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.PartitionsScanned)
}

func TestPredicateExcludesInCoercesEachSetMemberByItsOwnKind(t *testing.T) {
	// A mixed-kind Set must give a member of a different kind than the
	// first a fair, correctly-typed comparison: coercing the partition's
	// raw value once against Set[0]'s kind (LitString here) would make "5"
	// fail to match IntLit(5) even though they represent the same value.
	p := core.Predicate{
		Kind: core.PredIn,
		Set: []core.Literal{
			literal(t, core.LitString, "foo"),
			{Kind: core.LitInt, Int: 5},
		},
	}
	assert.False(t, predicateExcludesIn(p, "5"), "partition value \"5\" matches the int member and must not be excluded")
	assert.True(t, predicateExcludesIn(p, "bar"), "partition value matching no member, of any kind, must be excluded")
}

func TestPrunerNeqExcludesMatchingPartition(t *testing.T) {
	_, cat := newSalesFixture(t)
	pruner := NewPruner(cat)

	preds := map[string][]core.Predicate{
		"sales": {{
			Kind: core.PredNeq, Table: "sales", Col: "region",
			Value: literal(t, core.LitString, "east"),
		}},
	}

	plan, err := pruner.Plan(context.Background(), []string{"sales"}, preds)
	require.NoError(t, err)

	// Two of the four partitions are region=west and two are region=east;
	// the two region=east partitions must be excluded since their key value
	// equals the disallowed literal.
	assert.Equal(t, 2, plan.PartitionsScanned)
	for _, scan := range plan.Tables {
		for _, p := range scan.Partitions {
			for _, kv := range p.Keys {
				if kv.Key == "region" {
					assert.NotEqual(t, "east", kv.Value)
				}
			}
		}
	}
}

func TestIndexAutoRefreshesOnNewerMTimeWithoutInvalidate(t *testing.T) {
	fs, cat := newSalesFixture(t)
	idx, err := cat.IndexFor("sales")
	require.NoError(t, err)

	first, err := idx.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, 4)

	writeFile(t, fs, "/data/sales/date=2024-11-04/region=east/part-0.parquet", 500, time.Now().Add(time.Hour))

	// No Invalidate call: Snapshot alone must detect the newer file via its
	// mtime-only walk and rebuild.
	second, err := idx.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, second, 5)
}

func TestCatalogInvalidateForcesRebuild(t *testing.T) {
	fs, cat := newSalesFixture(t)
	idx, err := cat.IndexFor("sales")
	require.NoError(t, err)
	first, err := idx.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, 4)

	writeFile(t, fs, "/data/sales/date=2024-11-04/region=east/part-0.parquet", 500, time.Now())
	cat.Invalidate("sales")

	idx2, err := cat.IndexFor("sales")
	require.NoError(t, err)
	second, err := idx2.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, second, 5)
}
