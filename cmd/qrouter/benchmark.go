package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/irouter/qrouter/engine"
)

func newBenchmarkCmd(flags *rootFlags) *cobra.Command {
	var iterations int
	var skipCache bool

	cmd := &cobra.Command{
		Use:   "benchmark <sql>",
		Short: "Run a query repeatedly and report wall-clock and cache-hit statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if iterations < 1 {
				iterations = 1
			}
			eng, err := buildEngine(cmd.Context(), flags)
			if err != nil {
				return fail(cmd, err)
			}

			opts := engine.ExecOptions{SkipCache: skipCache}
			wallMS := make([]float64, 0, iterations)
			var cacheHits int

			for i := 0; i < iterations; i++ {
				start := time.Now()
				result, err := eng.Execute(cmd.Context(), args[0], opts)
				if err != nil {
					return fail(cmd, err)
				}
				wallMS = append(wallMS, float64(time.Since(start).Microseconds())/1000)
				if result.FromCache {
					cacheHits++
				}
			}

			summary := summarizeBenchmark(wallMS, iterations, cacheHits)
			if flags.jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			printBenchmark(cmd, summary)
			return nil
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", 10, "number of times to run the query")
	cmd.Flags().BoolVar(&skipCache, "skip-cache", false, "bypass the result cache on every iteration")
	return cmd
}

type benchmarkSummary struct {
	Iterations int     `json:"iterations"`
	CacheHits  int     `json:"cache_hits"`
	MinMS      float64 `json:"min_ms"`
	MaxMS      float64 `json:"max_ms"`
	MeanMS     float64 `json:"mean_ms"`
	P50MS      float64 `json:"p50_ms"`
	P95MS      float64 `json:"p95_ms"`
}

func summarizeBenchmark(wallMS []float64, iterations, cacheHits int) benchmarkSummary {
	sorted := append([]float64(nil), wallMS...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return benchmarkSummary{
		Iterations: iterations,
		CacheHits:  cacheHits,
		MinMS:      sorted[0],
		MaxMS:      sorted[len(sorted)-1],
		MeanMS:     sum / float64(len(sorted)),
		P50MS:      percentile(sorted, 0.50),
		P95MS:      percentile(sorted, 0.95),
	}
}

// percentile expects sorted to be sorted ascending.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func printBenchmark(cmd *cobra.Command, s benchmarkSummary) {
	fmt.Fprintf(cmd.OutOrStdout(), "iterations=%d cache_hits=%d min=%.2fms mean=%.2fms p50=%.2fms p95=%.2fms max=%.2fms\n",
		s.Iterations, s.CacheHits, s.MinMS, s.MeanMS, s.P50MS, s.P95MS, s.MaxMS)
}
