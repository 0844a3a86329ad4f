// cmd/substrate/cachecmd.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentmem/substrate/internal/metrics"
	"github.com/agentmem/substrate/internal/model"
)

var (
	cacheScope      string
	cacheKind       string
	cacheImportance float64
	cacheLimit      int
	cacheContent    bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Work with the episodic cache",
}

var cacheWriteCmd = &cobra.Command{
	Use:   "write [content]",
	Short: "Append an item to the scope's open block",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.cache.Write(context.Background(), cacheScope, model.CacheItem{
			Kind:       model.CacheItemKind(cacheKind),
			Content:    strings.Join(args, " "),
			Importance: cacheImportance,
		})
		if err != nil {
			return err
		}
		if m, merr := metrics.NewLogger(metricsLogPath()); merr == nil {
			m.LogCacheWrite(cacheScope, res.Deduplicated, res.ClosedBlock != nil)
			m.Close()
		}
		fmt.Printf("block %s seq %d (%d items", res.Block.ID, res.Block.Sequence, len(res.Block.Items))
		if res.Deduplicated {
			fmt.Print(", deduplicated")
		}
		if res.ClosedBlock != nil {
			fmt.Printf(", closed block seq %d", res.ClosedBlock.Sequence)
		}
		fmt.Println(")")
		return nil
	},
}

var cacheReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Read the scope's open block, or search closed summaries with --query",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if q, _ := cmd.Flags().GetString("query"); q != "" {
			hits, err := a.cache.Search(context.Background(), cacheScope, q, cacheLimit, cacheContent)
			if err != nil {
				return err
			}
			return enc.Encode(hits)
		}
		block, err := a.cache.GetCurrent(context.Background(), cacheScope)
		if err != nil {
			return err
		}
		return enc.Encode(block)
	},
}

var cacheCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Force-close the scope's open block",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		closed, err := a.cache.Compact(context.Background(), cacheScope)
		if err != nil {
			return err
		}
		if closed == nil {
			fmt.Println("nothing to compact")
			return nil
		}
		fmt.Printf("closed block seq %d\n%s\n", closed.Sequence, closed.Summary)
		return nil
	},
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheScope, "scope", "", "Cache scope, e.g. project:X or task:Y")
	cacheCmd.MarkPersistentFlagRequired("scope")
	cacheWriteCmd.Flags().StringVar(&cacheKind, "kind", "fact", "Item kind: fact|decision|snippet|warning")
	cacheWriteCmd.Flags().Float64Var(&cacheImportance, "importance", 0.5, "Importance in [0,1]")
	cacheReadCmd.Flags().String("query", "", "Semantic search over closed block summaries")
	cacheReadCmd.Flags().IntVar(&cacheLimit, "limit", 5, "Maximum blocks")
	cacheReadCmd.Flags().BoolVar(&cacheContent, "content", false, "Materialize matched blocks' items")
	cacheCmd.AddCommand(cacheWriteCmd, cacheReadCmd, cacheCompactCmd)
	rootCmd.AddCommand(cacheCmd)
}
