// Package indexer provides the file walker and whole-repository batch
// ingestion: every matched file goes through the sync orchestrator's
// per-file pipeline, then repository-level passes (pattern detection,
// navigation-doc ingestion) annotate the result.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/agentmem/substrate/internal/docs"
	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/parser"
	"github.com/agentmem/substrate/internal/pattern"
	"github.com/agentmem/substrate/internal/sync"
)

// ObjectStore is the subset the repository-level passes write to.
type ObjectStore interface {
	Upsert(ctx context.Context, rec model.Record) error
	UpsertEdge(ctx context.Context, e model.Edge) error
}

// Indexer coordinates batch ingestion of a repository.
type Indexer struct {
	orchestrator    *sync.Orchestrator
	store           ObjectStore
	patternDetector *pattern.Detector
	logger          *slog.Logger
}

// NewIndexer creates an indexer over the given orchestrator and store.
func NewIndexer(orchestrator *sync.Orchestrator, store ObjectStore, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		orchestrator: orchestrator,
		store:        store,
		patternDetector: pattern.NewDetector(pattern.DetectorConfig{
			MinClusterSize:      5,
			SimilarityThreshold: 0.8,
		}),
		logger: logger,
	}
}

// IndexResult contains statistics from an indexing run.
type IndexResult struct {
	FilesProcessed int
	FilesFailed    int
	Patterns       int
	DocSections    int
	Errors         []error
}

// IndexOptions configures the indexing behavior.
type IndexOptions struct {
	Include []string
	Exclude []string
}

// Index processes a repository: walk, per-file sync, then the
// repository-level pattern and docs passes. Per-file failures are
// collected, not fatal.
func (idx *Indexer) Index(ctx context.Context, repoPath string, opts IndexOptions) (*IndexResult, error) {
	result := &IndexResult{}

	info, err := os.Stat(repoPath)
	if err != nil || !info.IsDir() {
		return nil, errs.New(errs.InvalidInput, "not a directory: "+repoPath)
	}

	walker := NewWalker(opts.Include, opts.Exclude)
	var allSymbols []parser.Symbol
	projectID := ""

	err = walker.Walk(repoPath, func(path string) error {
		res, err := idx.orchestrator.Sync(ctx, sync.Request{
			Path:    path,
			Action:  sync.ActionCreate,
			Summary: "batch index",
		})
		if err != nil {
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Errorf("sync %s: %w", path, err))
			return nil // continue with other files
		}
		result.FilesProcessed++
		for _, w := range res.Warnings {
			idx.logger.Debug("index: file warning", "path", path, "warning", w)
		}

		// Collect symbols for the pattern pass.
		source, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		relPath, _ := filepath.Rel(repoPath, path)
		if parsed, err := parser.ParseFile(filepath.ToSlash(relPath), source, ""); err == nil {
			allSymbols = append(allSymbols, parsed.Symbols...)
		}
		if projectID == "" {
			projectID = res.FileID // any file id pins the project via its record
		}
		return nil
	})
	if err != nil {
		return result, errs.Wrap(errs.Internal, "walk repository", err)
	}

	patterns, err := idx.detectPatterns(ctx, repoPath, allSymbols)
	if err != nil {
		result.Errors = append(result.Errors, err)
	}
	result.Patterns = patterns

	sections, err := idx.ingestNavigationDocs(ctx, repoPath)
	if err != nil {
		result.Errors = append(result.Errors, err)
	}
	result.DocSections = sections

	idx.logger.Info("index complete",
		"repo", repoPath,
		"files", result.FilesProcessed,
		"failed", result.FilesFailed,
		"patterns", result.Patterns,
		"doc_sections", result.DocSections)
	return result, nil
}

// detectPatterns clusters files by method-name-set similarity and
// stores each detected architectural pattern as a searchable note, so a
// hybrid query can answer "what's the pattern for X".
func (idx *Indexer) detectPatterns(ctx context.Context, repoPath string, symbols []parser.Symbol) (int, error) {
	patterns := idx.patternDetector.Detect(symbols)
	projectID := sync.ProjectID(repoPath)
	for _, p := range patterns {
		note := &model.Note{
			Envelope: model.Envelope{
				ID:        uuid.NewString(),
				Kind:      model.KindNote,
				ProjectID: projectID,
			},
			Category: model.NoteInsight,
			Content:  p.NoteContent(),
		}
		if err := idx.store.Upsert(ctx, note); err != nil {
			return 0, err
		}
		for _, filePath := range p.Members {
			fileID := sync.FileID(projectID, filePath)
			// Link when the file record exists; patterns over unsynced
			// files stay unlinked.
			_ = idx.store.UpsertEdge(ctx, model.Edge{Kind: model.EdgeLinkedFiles, FromID: note.ID, ToID: fileID})
		}
	}
	return len(patterns), nil
}

// navigationDocNames are the hand-written project docs folded into the
// index with their headings preserved.
var navigationDocNames = []string{"AGENTS.md", "CLAUDE.md"}

// ingestNavigationDocs parses AGENTS.md/CLAUDE.md files into sections
// and stores each section as a searchable note linked to the doc file.
func (idx *Indexer) ingestNavigationDocs(ctx context.Context, repoPath string) (int, error) {
	projectID := sync.ProjectID(repoPath)
	total := 0
	for _, name := range navigationDocNames {
		path := filepath.Join(repoPath, name)
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		doc, err := docs.ParseAgentsMD(content, name, filepath.Base(repoPath))
		if err != nil {
			return total, err
		}
		for _, section := range doc.Sections {
			note := &model.Note{
				Envelope: model.Envelope{
					ID:        uuid.NewString(),
					Kind:      model.KindNote,
					ProjectID: projectID,
				},
				Category: model.NoteInsight,
				Content:  section.NoteContent(name),
			}
			if err := idx.store.Upsert(ctx, note); err != nil {
				return total, err
			}
			total++
		}
	}
	return total, nil
}
