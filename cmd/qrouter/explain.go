package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/irouter/qrouter/engine"
)

func newExplainCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <sql>",
		Short: "Show the plan a query would run without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context(), flags)
			if err != nil {
				return fail(cmd, err)
			}

			result, err := eng.Explain(cmd.Context(), args[0])
			if err != nil && result == nil {
				return fail(cmd, err)
			}

			if flags.jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(explainToJSON(result))
			}

			printExplain(cmd, result)
			if err != nil {
				return fail(cmd, err)
			}
			return nil
		},
	}
	return cmd
}

func explainToJSON(r *engine.ExplainResult) map[string]any {
	candidates := make([]map[string]any, len(r.Candidates))
	for i, c := range r.Candidates {
		candidates[i] = map[string]any{
			"backend":          c.Kind.String(),
			"estimated_ms":     c.EstimatedMS,
			"estimated_memory": c.EstimatedMemory,
			"feasible":         c.Feasible,
			"reason":           c.Reason,
		}
	}
	return map[string]any{
		"canonical_text":  r.CanonicalText,
		"partitions_total": r.ScanPlan.PartitionsTotal,
		"partitions_scanned": r.ScanPlan.PartitionsScanned,
		"fraction_pruned": r.ScanPlan.FractionPruned,
		"total_bytes":     r.ScanPlan.TotalBytes,
		"chosen_backend":  r.Chosen.String(),
		"chosen_reason":   r.ChosenReason,
		"would_hit_cache": r.WouldHitCache,
		"candidates":      candidates,
	}
}

func printExplain(cmd *cobra.Command, r *engine.ExplainResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "canonical: %s\n", r.CanonicalText)
	fmt.Fprintf(out, "scan: %d/%d partitions (%.1f%% pruned), %d bytes\n",
		r.ScanPlan.PartitionsScanned, r.ScanPlan.PartitionsTotal, r.ScanPlan.FractionPruned*100, r.ScanPlan.TotalBytes)
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "warning: %s (%s.%s)\n", w.Message, w.Table, w.Column)
	}
	for _, c := range r.Candidates {
		fmt.Fprintf(out, "  %-11s estimated=%.2fms feasible=%v %s\n", c.Kind, c.EstimatedMS, c.Feasible, c.Reason)
	}
	fmt.Fprintf(out, "chosen: %s (%s)\n", r.Chosen, r.ChosenReason)
	fmt.Fprintf(out, "would hit cache: %v\n", r.WouldHitCache)
}
