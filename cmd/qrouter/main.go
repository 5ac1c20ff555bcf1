// Command qrouter is the thin CLI surface over the engine package: execute a
// query, explain its plan, and inspect/clear the result cache. Built with
// spf13/cobra, the same command framework the retrieval pack's tooling
// examples reach for.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/irouter/qrouter/cachestore"
	"github.com/irouter/qrouter/core"
)

// Exit codes per the router's documented CLI contract.
const (
	exitOK          = 0
	exitUserError   = 2
	exitDataError   = 3
	exitExecutorErr = 4
	exitInterrupted = 130
)

// rootFlags collects every persistent flag the subcommands share, including
// the cost model's configurable knobs (spec.md section 6:
// selector.memory_limit_bytes.{vectorized,parallel}, selector.distributed_nodes).
type rootFlags struct {
	dataDir    string
	flightAddr string
	jsonOutput bool

	vectorizedMemoryLimitBytes int64
	parallelMemoryLimitBytes   int64
	distributedNodes           int
	cacheTTLMS                 int64
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "qrouter",
		Short: "Cost-based SQL query router over partitioned parquet tables",
	}
	cmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "./data", "root directory containing table partitions")
	cmd.PersistentFlags().StringVar(&flags.flightAddr, "flightsql-addr", "", "address of a remote Flight SQL endpoint for the distributed backend")
	cmd.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "emit machine-readable JSON output")
	cmd.PersistentFlags().Int64Var(&flags.vectorizedMemoryLimitBytes, "vectorized-memory-limit-bytes", 0, "memory ceiling for the vectorized backend (0 = default)")
	cmd.PersistentFlags().Int64Var(&flags.parallelMemoryLimitBytes, "parallel-memory-limit-bytes", 0, "memory ceiling for the parallel backend (0 = default)")
	cmd.PersistentFlags().IntVar(&flags.distributedNodes, "distributed-nodes", 0, "assumed cluster size behind the distributed backend (0 = default)")
	cmd.PersistentFlags().Int64Var(&flags.cacheTTLMS, "cache-ttl-ms", int64(cachestore.DefaultTTL/1_000_000), "result cache entry lifetime in milliseconds (0 disables TTL expiry)")

	cmd.AddCommand(
		newExecuteCmd(flags),
		newExplainCmd(flags),
		newCacheStatsCmd(flags),
		newCacheClearCmd(flags),
		newBenchmarkCmd(flags),
	)
	return cmd
}

func exitCodeFor(err error) int {
	rerr, ok := err.(*core.Error)
	if !ok {
		return exitExecutorErr
	}
	switch rerr.Kind {
	case core.ErrParse, core.ErrUnsupportedStatement, core.ErrUnknownTable, core.ErrAmbiguousColumn:
		return exitUserError
	case core.ErrPartitionLayout:
		return exitDataError
	case core.ErrCancelled:
		return exitInterrupted
	case core.ErrNoFeasibleBackend, core.ErrExecutor:
		return exitExecutorErr
	default:
		return exitExecutorErr
	}
}

func fail(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err)
	return err
}
