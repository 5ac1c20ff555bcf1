package engine

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irouter/qrouter/core"
	"github.com/irouter/qrouter/executor"
	"github.com/irouter/qrouter/partition"
)

// stubExecutor is a minimal executor.Executor used to exercise engine
// dispatch/retry logic without a real DuckDB or Flight SQL backend.
type stubExecutor struct {
	kind      core.BackendKind
	fail      *core.Error // returned once, then nil on subsequent calls
	failCount int
	calls     int
}

func (s *stubExecutor) Kind() core.BackendKind { return s.kind }

func (s *stubExecutor) Execute(ctx context.Context, stmt *core.Stmt, plan *core.ScanPlan) (core.RowSet, error) {
	s.calls++
	if s.fail != nil && s.calls <= s.failCount {
		return core.RowSet{}, s.fail
	}
	return core.RowSet{}, nil
}

func newFixture(t *testing.T) (*Engine, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	now := time.Now()
	require.NoError(t, afero.WriteFile(fs, "/data/sales/date=2024-11-01/part-0.parquet", make([]byte, 1000), 0o644))
	require.NoError(t, fs.Chtimes("/data/sales/date=2024-11-01/part-0.parquet", now, now))

	cat := partition.NewCatalog(fs)
	cat.Register("sales", "/data/sales", core.Schema{
		{Name: "date", Type: core.TypeDate},
		{Name: "amount", Type: core.TypeFloat64},
	})

	reg := executor.NewRegistry()
	reg.Register(&stubExecutor{kind: core.Vectorized})
	reg.Register(&stubExecutor{kind: core.Parallel})
	reg.Register(&stubExecutor{kind: core.Distributed})

	eng, err := New(cat, reg, Options{CacheCapacity: 10, CacheTTL: time.Hour})
	require.NoError(t, err)
	return eng, fs
}

func TestEngineExecuteCachesResult(t *testing.T) {
	eng, _ := newFixture(t)
	ctx := context.Background()

	r1, err := eng.Execute(ctx, "SELECT * FROM sales WHERE date = '2024-11-01'", ExecOptions{})
	require.NoError(t, err)
	assert.False(t, r1.FromCache)

	r2, err := eng.Execute(ctx, "SELECT * FROM sales WHERE date = '2024-11-01'", ExecOptions{})
	require.NoError(t, err)
	assert.True(t, r2.FromCache)

	stats := eng.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
}

func TestEngineExecuteCacheHitOnCanonicalEquivalence(t *testing.T) {
	eng, _ := newFixture(t)
	ctx := context.Background()

	_, err := eng.Execute(ctx, "SELECT * FROM sales WHERE date = '2024-11-01'", ExecOptions{})
	require.NoError(t, err)

	r2, err := eng.Execute(ctx, "select * from sales where date = '2024-11-01'", ExecOptions{})
	require.NoError(t, err)
	assert.True(t, r2.FromCache)
}

func TestEngineExplainDoesNotDispatchOrCache(t *testing.T) {
	eng, _ := newFixture(t)
	ctx := context.Background()

	_, err := eng.Explain(ctx, "SELECT * FROM sales WHERE date = '2024-11-01'")
	require.NoError(t, err)
	assert.Equal(t, 0, eng.cache.Len())
	for _, kind := range []core.BackendKind{core.Vectorized, core.Parallel, core.Distributed} {
		exec, ok := eng.executors.Get(kind)
		require.True(t, ok)
		assert.Equal(t, 0, exec.(*stubExecutor).calls)
	}
}

func TestEngineForceBackendOverridesSelection(t *testing.T) {
	eng, _ := newFixture(t)
	ctx := context.Background()

	forced := core.Distributed
	result, err := eng.Execute(ctx, "SELECT * FROM sales", ExecOptions{ForceBackend: &forced, SkipCache: true})
	require.NoError(t, err)
	assert.Equal(t, core.Distributed, result.BackendUsed)
}

func TestEngineRetriesAfterTransientExecutorFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Now()
	require.NoError(t, afero.WriteFile(fs, "/data/sales/date=2024-11-01/part-0.parquet", make([]byte, 1000), 0o644))
	require.NoError(t, fs.Chtimes("/data/sales/date=2024-11-01/part-0.parquet", now, now))

	cat := partition.NewCatalog(fs)
	cat.Register("sales", "/data/sales", nil)

	reg := executor.NewRegistry()
	reg.Register(&stubExecutor{
		kind:      core.Vectorized,
		fail:      core.NewExecutorError(core.ExecTransientResource, "disk hiccup", nil),
		failCount: 1,
	})
	reg.Register(&stubExecutor{kind: core.Parallel})
	reg.Register(&stubExecutor{kind: core.Distributed})

	eng, err := New(cat, reg, Options{CacheCapacity: 10})
	require.NoError(t, err)

	result, err := eng.Execute(context.Background(), "SELECT * FROM sales", ExecOptions{SkipCache: true})
	require.NoError(t, err)
	assert.NotEqual(t, core.Vectorized, result.BackendUsed)
}

func TestEngineAutoDetectsStaleWitnessWithoutInvalidate(t *testing.T) {
	// spec.md scenario S4: touching a witnessed file's mtime and re-running
	// the same query must observe the change through the ordinary Execute
	// path, with no explicit InvalidateTable call.
	eng, fs := newFixture(t)
	ctx := context.Background()

	_, err := eng.Execute(ctx, "SELECT * FROM sales WHERE date = '2024-11-01'", ExecOptions{})
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, fs.Chtimes("/data/sales/date=2024-11-01/part-0.parquet", later, later))

	result, err := eng.Execute(ctx, "SELECT * FROM sales WHERE date = '2024-11-01'", ExecOptions{})
	require.NoError(t, err)
	assert.False(t, result.FromCache)

	stats := eng.CacheStats()
	assert.Equal(t, int64(1), stats.StaleInvalidations)
}

func TestEngineInvalidateTableForcesReprune(t *testing.T) {
	eng, fs := newFixture(t)
	ctx := context.Background()

	_, err := eng.Execute(ctx, "SELECT * FROM sales", ExecOptions{})
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, afero.WriteFile(fs, "/data/sales/date=2024-11-02/part-0.parquet", make([]byte, 500), 0o644))
	require.NoError(t, fs.Chtimes("/data/sales/date=2024-11-02/part-0.parquet", later, later))

	eng.InvalidateTable("sales", "/data/sales")

	result, err := eng.Execute(ctx, "SELECT * FROM sales", ExecOptions{})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
}
