// cmd/substrate/query.go
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmem/substrate/internal/metrics"
	"github.com/agentmem/substrate/internal/retrieval"
)

var (
	queryMode      string
	queryLimit     int
	queryProject   string
	queryAutoseed  bool
	queryIntersect bool
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Run a hybrid query against the index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryMode, "mode", "hybrid", "Retrieval mode: hybrid|text|vector|graph")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 5, "Maximum results")
	queryCmd.Flags().StringVar(&queryProject, "project", "", "Restrict to one project id")
	queryCmd.Flags().BoolVar(&queryAutoseed, "autoseed", false, "Seed graph traversal from top lexical+vector hits")
	queryCmd.Flags().BoolVar(&queryIntersect, "intersect", false, "Keep only results reachable in the graph lane")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	req := retrieval.Request{
		Query:          strings.Join(args, " "),
		Mode:           retrieval.Mode(queryMode),
		GraphAutoseed:  queryAutoseed,
		GraphIntersect: queryIntersect,
		Graph:          retrieval.GraphOptions{MaxDepth: retrieval.DepthUnset},
		Limit:          queryLimit,
	}
	req.Filter.ProjectID = queryProject

	start := time.Now()
	var resp *retrieval.Response
	if a.results != nil {
		resp, err = retrieval.NewCachedPlanner(a.planner, a.results,
			time.Duration(a.cfg.Cache.QueryTTLMinutes)*time.Minute).Search(context.Background(), req)
	} else {
		resp, err = a.planner.Search(context.Background(), req)
	}
	if err != nil {
		return err
	}

	if m, merr := metrics.NewLogger(metricsLogPath()); merr == nil {
		m.LogSearch(req.Query, string(req.Mode), len(resp.Results), time.Since(start).Milliseconds(), false)
		m.Close()
	}

	fmt.Printf("trace %s (%dms)\n\n", resp.Trace.TraceID, time.Since(start).Milliseconds())
	for i, r := range resp.Results {
		env := r.Record.GetEnvelope()
		fmt.Printf("%2d. [%.3f] %s %s\n", i+1, r.Score, env.Kind, env.ID)
		fmt.Printf("    %s\n", r.Explanation)
	}
	if len(resp.Results) == 0 {
		fmt.Println("no results")
		for _, s := range resp.Suggestions {
			fmt.Printf("  try: %s (%s)\n", s.Term, s.Reason)
		}
	}
	return nil
}
