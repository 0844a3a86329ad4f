// cmd/substrate/metricscmd.go
package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmem/substrate/internal/metrics"
)

var metricsSince time.Duration

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Summarize recent search and index activity",
	RunE:  runMetrics,
}

func init() {
	metricsCmd.Flags().DurationVar(&metricsSince, "since", 24*time.Hour, "Window to analyze")
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	analyzer := metrics.NewAnalyzer(metricsLogPath())
	summary, err := analyzer.Analyze(metricsSince)
	if err != nil {
		return err
	}

	fmt.Printf("Activity over the last %s:\n", metricsSince)
	fmt.Printf("  Searches:        %d\n", summary.TotalSearches)
	fmt.Printf("  Avg latency:     %dms\n", summary.AvgLatencyMs)
	fmt.Printf("  Cache hits:      %d\n", summary.CacheHits)
	fmt.Printf("  Zero results:    %d\n", summary.ZeroResultCount)
	if len(summary.TopQueries) > 0 {
		fmt.Println("  Top queries:")
		for _, q := range summary.TopQueries {
			fmt.Printf("    %3dx %s\n", q.Count, q.Query)
		}
	}

	zero, err := analyzer.GetZeroResultQueries(metricsSince)
	if err == nil && len(zero) > 0 {
		fmt.Println("  Zero-result queries:")
		for _, q := range zero {
			fmt.Printf("    %3dx %s\n", q.Count, q.Query)
		}
	}
	return nil
}
