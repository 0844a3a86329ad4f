// cmd/substrate/sync.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentmem/substrate/internal/metrics"
	"github.com/agentmem/substrate/internal/sync"
)

var syncSummary string

var syncCmd = &cobra.Command{
	Use:   "sync [create|edit|delete] [path]",
	Short: "Sync one file into the index",
	Args:  cobra.ExactArgs(2),
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncSummary, "summary", "", "Audit summary for the file log")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.orchestrator.Sync(context.Background(), sync.Request{
		Path:    args[1],
		Action:  sync.Action(args[0]),
		Summary: syncSummary,
	})
	if err != nil {
		return err
	}

	if m, merr := metrics.NewLogger(metricsLogPath()); merr == nil {
		m.LogSync(args[1], args[0], res.ChunksReplaced, res.RelationshipsUpdated)
		m.Close()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if res.Ambiguous {
		fmt.Fprintln(os.Stderr, "path is ambiguous; pick one of the candidates above")
	}
	return nil
}
