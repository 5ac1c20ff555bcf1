package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/irouter/qrouter/core"
	"github.com/irouter/qrouter/cost"
	"github.com/irouter/qrouter/engine"
	"github.com/irouter/qrouter/executor"
	duckdbexec "github.com/irouter/qrouter/executor/duckdb"
	flightsqlexec "github.com/irouter/qrouter/executor/flightsql"
	"github.com/irouter/qrouter/partition"
)

// buildEngine registers every immediate subdirectory of flags.dataDir as a
// table (undeclared schema; the front-end falls back to untyped literal
// handling for such tables), wires the DuckDB-backed Vectorized/Parallel
// executors, and optionally dials a remote Flight SQL endpoint for
// Distributed.
func buildEngine(ctx context.Context, flags *rootFlags) (*engine.Engine, error) {
	fs := afero.NewOsFs()
	catalog := partition.NewCatalog(fs)

	entries, err := os.ReadDir(flags.dataDir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			catalog.Register(entry.Name(), filepath.Join(flags.dataDir, entry.Name()), nil)
		}
	}

	registry := executor.NewRegistry()

	vectorized, err := duckdbexec.New(core.Vectorized, duckdbexec.Config{Threads: 1, MemoryMB: 2048, AccessRO: true})
	if err != nil {
		return nil, err
	}
	registry.Register(vectorized)

	parallel, err := duckdbexec.New(core.Parallel, duckdbexec.Config{Threads: 8, MemoryMB: 16384, AccessRO: true})
	if err != nil {
		return nil, err
	}
	registry.Register(parallel)

	if flags.flightAddr != "" {
		remote, err := flightsqlexec.Dial(ctx, flags.flightAddr, true)
		if err != nil {
			return nil, err
		}
		registry.Register(remote)
	}

	logger, err := core.NewLogger()
	if err != nil {
		return nil, err
	}

	return engine.New(catalog, registry, engine.Options{
		Logger:   logger,
		CacheTTL: time.Duration(flags.cacheTTLMS) * time.Millisecond,
		CostModel: cost.Config{
			VectorizedMemoryLimitBytes: flags.vectorizedMemoryLimitBytes,
			ParallelMemoryLimitBytes:   flags.parallelMemoryLimitBytes,
			DistributedNodes:           flags.distributedNodes,
		},
	})
}
