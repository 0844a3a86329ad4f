// cmd/substrate/index.go
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/agentmem/substrate/internal/config"
	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/indexer"
	"github.com/agentmem/substrate/internal/metrics"
)

// Ingestion exit codes: 0 success, 2 partial (some files failed),
// 3 unreachable backend, 64 usage error.
const (
	exitPartial = 2
	exitBackend = 3
	exitUsage   = 64
)

var indexCmd = &cobra.Command{
	Use:   "index [repo-path]",
	Short: "Index a repository into the memory substrate",
	Args:  cobra.ExactArgs(1),
	Run:   runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) {
	absPath, err := filepath.Abs(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid path: %v\n", err)
		os.Exit(exitUsage)
	}
	if info, err := os.Stat(absPath); err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "repository not found: %s\n", absPath)
		os.Exit(exitUsage)
	}

	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(exitBackend)
	}
	defer a.close()

	// One index run at a time against a shared local object store.
	lock := flock.New(a.cfg.ObjectStore.SQLite + ".lock")
	locked, err := lock.TryLock()
	if err != nil || !locked {
		fmt.Fprintln(os.Stderr, "another index run holds the store lock")
		os.Exit(exitBackend)
	}
	defer lock.Unlock()

	// Per-repo include/exclude configuration when present.
	var include, exclude []string
	if repoCfg, err := config.LoadRepoConfig(absPath); err == nil {
		include = repoCfg.Include
		exclude = repoCfg.Exclude
	}

	fmt.Printf("Indexing %s...\n", absPath)
	idx := indexer.NewIndexer(a.orchestrator, a.store, a.logger)
	result, err := idx.Index(context.Background(), absPath, indexer.IndexOptions{
		Include: include,
		Exclude: exclude,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "indexing failed: %v\n", err)
		if errs.KindOf(err) == errs.BackendUnavailable || errs.KindOf(err) == errs.BackendTimeout {
			os.Exit(exitBackend)
		}
		os.Exit(1)
	}

	// Bump the query-cache index version so cached results invalidate.
	if a.results != nil {
		_, _ = a.results.IncrIndexVersion(context.Background(), absPath)
	}

	if m, merr := metrics.NewLogger(metricsLogPath()); merr == nil {
		m.LogIndexUpdate(absPath, result.FilesProcessed, result.Patterns+result.DocSections)
		m.Close()
	}

	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Files processed: %d\n", result.FilesProcessed)
	fmt.Printf("  Files failed:    %d\n", result.FilesFailed)
	fmt.Printf("  Patterns:        %d\n", result.Patterns)
	fmt.Printf("  Doc sections:    %d\n", result.DocSections)

	if len(result.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %v\n", e)
		}
	}
	if result.FilesFailed > 0 {
		os.Exit(exitPartial)
	}
}
