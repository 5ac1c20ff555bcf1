// Package cost implements the per-backend cost model and the selector that
// picks the cheapest feasible backend for an analyzed, pruned query, per the
// formula and constants of spec.md section 4.3.
package cost

import (
	"math"

	"github.com/irouter/qrouter/core"
)

// mbpsToBytesPerMS converts a throughput given in MB/s (spec.md's units)
// into bytes/ms (the formula's units): 1 MB/s = 1,000,000 bytes/sec /
// 1,000 ms/sec = 1,000 bytes/ms.
const mbpsToBytesPerMS = 1_000.0

// backendProfile holds the fixed per-BackendKind constants from spec.md
// section 4.3's cost table: startup cost, single-node scan throughput, and
// the backend's own complexity coefficient (each backend scales with query
// complexity differently, e.g. Distributed is least sensitive to it).
type backendProfile struct {
	kind                  core.BackendKind
	startupMS             float64
	throughputBytesPerMS  float64 // per node for Distributed
	complexityCoefficient float64 // complexity_multiplier = 1 + coefficient*ComplexityScore
	memoryPerByte         float64 // estimated resident memory per scanned byte
}

// defaultProfiles mirrors spec.md section 4.3's table literally.
var defaultProfiles = []backendProfile{
	{
		kind:                  core.Vectorized,
		startupMS:             100,
		throughputBytesPerMS:  2_000 * mbpsToBytesPerMS,
		complexityCoefficient: 0.10,
		memoryPerByte:         1.2,
	},
	{
		kind:                  core.Parallel,
		startupMS:             200,
		throughputBytesPerMS:  1_800 * mbpsToBytesPerMS,
		complexityCoefficient: 0.08,
		memoryPerByte:         0.6,
	},
	{
		kind:                  core.Distributed,
		startupMS:             15_000,
		throughputBytesPerMS:  1_500 * mbpsToBytesPerMS,
		complexityCoefficient: 0.05,
		memoryPerByte:         0.2,
	},
}

// Default memory ceilings and cluster size for the two configurable knobs
// spec.md section 6 names: selector.memory_limit_bytes.{vectorized,parallel}
// and selector.distributed_nodes.
const (
	DefaultVectorizedMemoryLimitBytes = 2 << 30  // 2 GiB
	DefaultParallelMemoryLimitBytes   = 16 << 30 // 16 GiB
	DefaultDistributedNodes           = 1
)

// Config holds the model's runtime-tunable knobs.
type Config struct {
	VectorizedMemoryLimitBytes int64
	ParallelMemoryLimitBytes   int64
	DistributedNodes           int
}

// Model estimates execution cost for each candidate backend given a query's
// extracted Features and the bytes a ScanPlan says will be scanned.
type Model struct {
	profiles []backendProfile

	vectorizedMemoryLimitBytes int64
	parallelMemoryLimitBytes   int64
	distributedNodes           int
}

// NewModel builds a Model over the default backend profiles, applying cfg's
// memory limits and node count (falling back to the package defaults for any
// zero-valued field).
func NewModel(cfg Config) *Model {
	if cfg.VectorizedMemoryLimitBytes <= 0 {
		cfg.VectorizedMemoryLimitBytes = DefaultVectorizedMemoryLimitBytes
	}
	if cfg.ParallelMemoryLimitBytes <= 0 {
		cfg.ParallelMemoryLimitBytes = DefaultParallelMemoryLimitBytes
	}
	if cfg.DistributedNodes <= 0 {
		cfg.DistributedNodes = DefaultDistributedNodes
	}
	return &Model{
		profiles:                   defaultProfiles,
		vectorizedMemoryLimitBytes: cfg.VectorizedMemoryLimitBytes,
		parallelMemoryLimitBytes:   cfg.ParallelMemoryLimitBytes,
		distributedNodes:           cfg.DistributedNodes,
	}
}

// SetMemoryLimit reconfigures kind's memory ceiling at runtime (spec.md
// scenario S5: "configure vectorized memory limit to 8 GB ... raise to
// 200 GB"). A no-op for Distributed, which has no ceiling.
func (m *Model) SetMemoryLimit(kind core.BackendKind, bytes int64) {
	switch kind {
	case core.Vectorized:
		m.vectorizedMemoryLimitBytes = bytes
	case core.Parallel:
		m.parallelMemoryLimitBytes = bytes
	}
}

// SetDistributedNodes reconfigures the assumed cluster size backing the
// Distributed backend's aggregate throughput.
func (m *Model) SetDistributedNodes(nodes int) {
	if nodes > 0 {
		m.distributedNodes = nodes
	}
}

// Estimate returns one CostEstimate per known backend kind, unordered,
// implementing spec.md section 4.3's formula literally:
//
//	estimated_ms = startup_ms + bytes_scanned/throughput_bytes_per_ms
//	               × complexity_multiplier × selectivity_factor
//
// with complexity_multiplier = 1 + coefficient·ComplexityScore (coefficient
// varies per backend) and selectivity_factor = max(0.1, selectivity).
func (m *Model) Estimate(bytesScanned int64, features core.Features) []core.CostEstimate {
	selectivityFactor := math.Max(0.1, features.Selectivity)

	out := make([]core.CostEstimate, 0, len(m.profiles))
	for _, p := range m.profiles {
		throughput := p.throughputBytesPerMS
		if p.kind == core.Distributed {
			throughput *= float64(m.distributedNodes)
		}

		complexityMultiplier := 1.0 + float64(features.ComplexityScore)*p.complexityCoefficient
		baseScanMS := float64(bytesScanned) / throughput * selectivityFactor
		scanMS := baseScanMS * complexityMultiplier
		estMS := p.startupMS + scanMS

		estMemory := int64(float64(bytesScanned) * p.memoryPerByte)

		out = append(out, core.CostEstimate{
			Kind:              p.kind,
			ScanMS:            baseScanMS,
			ComputeOverheadMS: scanMS - baseScanMS,
			StartupMS:         p.startupMS,
			EstimatedMS:       estMS,
			EstimatedMemory:   estMemory,
			Feasible:          true,
		})
	}
	return out
}

// memoryLimit exposes a backend's configured ceiling for the Selector; 0
// means unbounded (always true for Distributed).
func (m *Model) memoryLimit(kind core.BackendKind) int64 {
	switch kind {
	case core.Vectorized:
		return m.vectorizedMemoryLimitBytes
	case core.Parallel:
		return m.parallelMemoryLimitBytes
	default:
		return 0
	}
}
