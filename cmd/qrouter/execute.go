package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/irouter/qrouter/core"
	"github.com/irouter/qrouter/engine"
)

func newExecuteCmd(flags *rootFlags) *cobra.Command {
	var force string
	var skipCache bool

	cmd := &cobra.Command{
		Use:   "execute <sql>",
		Short: "Run a query and print its result summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context(), flags)
			if err != nil {
				return fail(cmd, err)
			}

			opts := engine.ExecOptions{SkipCache: skipCache}
			if force != "" {
				kind, err := parseBackendKind(force)
				if err != nil {
					return fail(cmd, err)
				}
				opts.ForceBackend = &kind
			}

			result, err := eng.Execute(cmd.Context(), args[0], opts)
			if err != nil {
				return fail(cmd, err)
			}

			return printResult(cmd, result, flags.jsonOutput)
		},
	}
	cmd.Flags().StringVar(&force, "force-backend", "", "force a specific backend: vectorized, parallel, distributed")
	cmd.Flags().BoolVar(&skipCache, "skip-cache", false, "bypass the result cache for this call")
	return cmd
}

func parseBackendKind(s string) (core.BackendKind, error) {
	switch s {
	case "vectorized":
		return core.Vectorized, nil
	case "parallel":
		return core.Parallel, nil
	case "distributed":
		return core.Distributed, nil
	default:
		return 0, fmt.Errorf("unknown backend %q", s)
	}
}

func printResult(cmd *cobra.Command, result *core.QueryResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"backend_used":        result.BackendUsed.String(),
			"execution_time_ms":   result.ExecutionTimeMS,
			"rows_processed":      result.RowsProcessed,
			"from_cache":          result.FromCache,
			"partitions_scanned":  result.ScanPlanSummary.PartitionsScanned,
			"partitions_total":    result.ScanPlanSummary.PartitionsTotal,
			"fraction_pruned":     result.ScanPlanSummary.FractionPruned,
			"total_bytes_scanned": result.ScanPlanSummary.TotalBytes,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "backend=%s rows=%d time=%.2fms cache=%v pruned=%.1f%% (%d/%d partitions)\n",
		result.BackendUsed, result.RowsProcessed, result.ExecutionTimeMS, result.FromCache,
		result.ScanPlanSummary.FractionPruned*100,
		result.ScanPlanSummary.PartitionsScanned, result.ScanPlanSummary.PartitionsTotal)
	return nil
}
