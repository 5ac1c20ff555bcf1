package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irouter/qrouter/core"
)

func TestSelectorPrefersVectorizedForSmallScans(t *testing.T) {
	sel := NewSelector(NewModel(Config{}))
	winner, all, err := sel.Select(10<<20, core.Features{Selectivity: 0.5}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.Vectorized, winner.Kind)
	assert.Len(t, all, 3)
}

func TestSelectorMovesOffVectorizedForLargeScans(t *testing.T) {
	sel := NewSelector(NewModel(Config{}))
	winner, _, err := sel.Select(50<<30, core.Features{Selectivity: 1.0, ComplexityScore: 4}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, core.Vectorized, winner.Kind)
}

func TestSelectorExcludesBackendAfterOOM(t *testing.T) {
	sel := NewSelector(NewModel(Config{}))
	excluded := map[core.BackendKind]string{core.Vectorized: "out_of_memory on prior attempt"}
	winner, all, err := sel.Select(10<<20, core.Features{Selectivity: 0.5}, excluded)
	require.NoError(t, err)
	assert.NotEqual(t, core.Vectorized, winner.Kind)

	for _, c := range all {
		if c.Kind == core.Vectorized {
			assert.False(t, c.Feasible)
		}
	}
}

func TestSelectorNoFeasibleBackendWhenAllExcluded(t *testing.T) {
	sel := NewSelector(NewModel(Config{}))
	excluded := map[core.BackendKind]string{
		core.Vectorized:  "oom",
		core.Parallel:    "oom",
		core.Distributed: "oom",
	}
	_, _, err := sel.Select(10<<20, core.Features{Selectivity: 0.5}, excluded)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrNoFeasibleBackend))
}

func TestSelectorTieBreakDeterministic(t *testing.T) {
	m := NewModel(Config{})
	sel := NewSelector(m)
	// A zero-byte scan collapses every backend's scan/memory term to its
	// startup constant, which never ties across profiles here, but the
	// tie-break table itself must still order Vectorized before Parallel
	// before Distributed when costs are forced equal.
	a := core.CostEstimate{Kind: core.Parallel, EstimatedMS: 10, Feasible: true}
	b := core.CostEstimate{Kind: core.Vectorized, EstimatedMS: 10, Feasible: true}
	assert.True(t, better(b, a))
	assert.False(t, better(a, b))
	_ = sel
}

func TestConfigurableMemoryLimitExcludesVectorizedThenReadmitsAfterRaise(t *testing.T) {
	// spec.md scenario S5: a large scan is infeasible for Vectorized under a
	// tight configured limit, then becomes feasible again once the limit is
	// raised, without touching Parallel's or Distributed's ceilings.
	m := NewModel(Config{VectorizedMemoryLimitBytes: 8 << 30})
	sel := NewSelector(m)

	// 50 GiB scanned at Vectorized's memoryPerByte factor exceeds an 8 GB
	// ceiling comfortably.
	_, all, err := sel.Select(50<<30, core.Features{Selectivity: 1.0}, nil)
	require.NoError(t, err)
	for _, c := range all {
		if c.Kind == core.Vectorized {
			assert.False(t, c.Feasible, "vectorized should be infeasible under an 8 GB limit")
		}
	}

	m.SetMemoryLimit(core.Vectorized, 200<<30)
	_, all, err = sel.Select(50<<30, core.Features{Selectivity: 1.0}, nil)
	require.NoError(t, err)
	for _, c := range all {
		if c.Kind == core.Vectorized {
			assert.True(t, c.Feasible, "vectorized should be feasible once raised to 200 GB")
		}
	}
}

func TestDistributedNodesScaleThroughput(t *testing.T) {
	single := NewModel(Config{DistributedNodes: 1})
	cluster := NewModel(Config{DistributedNodes: 10})

	var singleMS, clusterMS float64
	for _, c := range single.Estimate(100<<30, core.Features{Selectivity: 1.0}) {
		if c.Kind == core.Distributed {
			singleMS = c.EstimatedMS
		}
	}
	for _, c := range cluster.Estimate(100<<30, core.Features{Selectivity: 1.0}) {
		if c.Kind == core.Distributed {
			clusterMS = c.EstimatedMS
		}
	}
	assert.Greater(t, singleMS, clusterMS, "a 10-node cluster should scan faster than a single node")
}

func TestSelectorReasonCitesMemoryWhenPreferredBackendExcluded(t *testing.T) {
	// spec.md scenario S5, first step: an 8 GB vectorized limit forces
	// Parallel to win, and the reason must cite the exclusion that put it
	// there rather than a generic cost message.
	m := NewModel(Config{VectorizedMemoryLimitBytes: 8 << 30})
	sel := NewSelector(m)

	winner, _, err := sel.Select(20<<30, core.Features{Selectivity: 1.0}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.Parallel, winner.Kind)
	assert.Contains(t, winner.Reason, "memory")
	assert.Contains(t, winner.Reason, core.Vectorized.String())
}

func TestSelectorReasonCitesStartupAmortizationForDistributed(t *testing.T) {
	// spec.md scenario S5, second step: once memory ceilings are raised high
	// enough that every backend is feasible, a large enough cluster makes
	// Distributed win outright on cost, dominated by its fixed startup term.
	m := NewModel(Config{
		VectorizedMemoryLimitBytes: 200 << 30,
		ParallelMemoryLimitBytes:   200 << 30,
		DistributedNodes:           100,
	})
	sel := NewSelector(m)

	winner, all, err := sel.Select(50<<30, core.Features{Selectivity: 1.0}, nil)
	require.NoError(t, err)
	for _, c := range all {
		assert.True(t, c.Feasible, "%s should be feasible under the raised limits", c.Kind)
	}
	assert.Equal(t, core.Distributed, winner.Kind)
	assert.Contains(t, winner.Reason, "startup amortization")
}

func TestSelectivityFactorFlooredAtOneTenth(t *testing.T) {
	m := NewModel(Config{})
	floored := m.Estimate(1<<30, core.Features{Selectivity: 0.001})
	unfloored := m.Estimate(1<<30, core.Features{Selectivity: 0.1})
	for i := range floored {
		assert.Equal(t, unfloored[i].ScanMS, floored[i].ScanMS,
			"selectivity below 0.1 must be floored to 0.1, matching a query with selectivity exactly 0.1")
	}
}
