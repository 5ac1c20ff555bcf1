package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cache-stats",
		Short: "Print cumulative result cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context(), flags)
			if err != nil {
				return fail(cmd, err)
			}
			stats := eng.CacheStats()

			if flags.jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"hits":                stats.Hits,
					"misses":              stats.Misses,
					"evictions":           stats.Evictions,
					"invalidated":         stats.Invalidated,
					"expirations":         stats.Expirations,
					"stale_invalidations": stats.StaleInvalidations,
					"hit_rate":            stats.HitRate(),
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "hits=%d misses=%d evictions=%d invalidated=%d expirations=%d stale_invalidations=%d hit_rate=%.3f\n",
				stats.Hits, stats.Misses, stats.Evictions, stats.Invalidated, stats.Expirations, stats.StaleInvalidations, stats.HitRate())
			return nil
		},
	}
}

func newCacheClearCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cache-clear",
		Short: "Empty the result cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context(), flags)
			if err != nil {
				return fail(cmd, err)
			}
			eng.ClearCache()
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	}
}
