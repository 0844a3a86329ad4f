// cmd/substrate/status.go
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/objstore"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show record counts per kind",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	kinds := []model.Kind{
		model.KindProject, model.KindDirectory, model.KindFile, model.KindSymbol,
		model.KindFileChunk, model.KindFileLog, model.KindDecision, model.KindChangeSet,
		model.KindNote, model.KindRun, model.KindCacheBlock, model.KindLease,
	}
	fmt.Printf("object store: %s\n\n", a.cfg.ObjectStore.SQLite)
	for _, kind := range kinds {
		recs, err := a.store.List(ctx, objstore.Filter{Kinds: []model.Kind{kind}}, 0, 1000000)
		if err != nil {
			return err
		}
		if len(recs) > 0 {
			fmt.Printf("  %-12s %d\n", kind, len(recs))
		}
	}
	return nil
}
