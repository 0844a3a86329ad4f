// Package sync keeps the three index layers (temporal filelog, vector,
// graph) consistent with the working tree: a per-file create/edit/delete
// pipeline with content-hash change detection, plus a polling daemon and
// an fsnotify watcher that feed it.
package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	gosync "sync"
	"time"

	"github.com/agentmem/substrate/internal/chunk"
	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/filelog"
	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/objstore"
	"github.com/agentmem/substrate/internal/parser"
	"github.com/agentmem/substrate/internal/security"
)

// Action is a sync operation kind.
type Action string

const (
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// rootMarkerFile is the explicit project-root marker checked after
// version-control directories.
const rootMarkerFile = ".substrate-root"

// ObjectStore is the persistence surface the orchestrator needs.
type ObjectStore interface {
	Upsert(ctx context.Context, rec model.Record) error
	Get(ctx context.Context, id string) (model.Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f objstore.Filter, offset, limit int) ([]model.Record, error)
	UpsertEdge(ctx context.Context, e model.Edge) error
	RemoveEdges(ctx context.Context, id string) error
}

// Embedder embeds new or changed records. May be nil; records are then
// stored without vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text, contentHash string) ([]float32, error)
}

// Request is one sync call.
type Request struct {
	Path    string
	Action  Action
	Summary string
	RunID   string
	AgentID string
}

// LayersUpdated reports which index layers a sync touched.
type LayersUpdated struct {
	Temporal bool `json:"temporal"`
	Vector   bool `json:"vector"`
	Graph    bool `json:"graph"`
}

// Result is the outcome of one sync call. An ambiguous path resolution
// is a successful Result carrying the candidates, not an error.
type Result struct {
	FileID               string        `json:"file_id,omitempty"`
	Action               Action        `json:"action"`
	Layers               LayersUpdated `json:"layers_updated"`
	ChunksReplaced       int           `json:"chunks_replaced"`
	RelationshipsUpdated int           `json:"relationships_updated"`
	Ambiguous            bool          `json:"ambiguous,omitempty"`
	MatchingFiles        []string      `json:"matching_files,omitempty"`
	Hint                 string        `json:"hint,omitempty"`
	Warnings             []string      `json:"warnings,omitempty"`
}

// Config carries the orchestrator tunables.
type Config struct {
	TenantID      string
	MaxConcurrent int // cross-file parallelism bound; also queue bound
	EmbedParallel int // per-sync embedding parallelism
}

// Orchestrator serializes sync operations per file id and runs the
// parse -> chunk -> filelog -> embed pipeline.
type Orchestrator struct {
	store    ObjectStore
	embedder Embedder
	chunker  *chunk.SlidingWindow
	secrets  *security.SecretDetector
	cfg      Config
	logger   *slog.Logger

	fileMus gosync.Map // file id -> *gosync.Mutex
	slots   chan struct{}
}

// New creates an orchestrator.
func New(store ObjectStore, embedder Embedder, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.EmbedParallel <= 0 {
		cfg.EmbedParallel = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		embedder: embedder,
		chunker:  chunk.NewSlidingWindow(),
		secrets:  security.NewSecretDetector(),
		cfg:      cfg,
		logger:   logger,
		slots:    make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Sync processes one operation. Calls for the same file id serialize;
// calls for distinct files run in parallel up to the concurrency bound,
// beyond which Sync fails fast with Overloaded.
func (o *Orchestrator) Sync(ctx context.Context, req Request) (*Result, error) {
	if req.Path == "" {
		return nil, errs.New(errs.InvalidInput, "path must not be empty")
	}
	switch req.Action {
	case ActionCreate, ActionEdit, ActionDelete:
	default:
		return nil, errs.New(errs.InvalidInput, "unknown sync action: "+string(req.Action))
	}

	select {
	case o.slots <- struct{}{}:
		defer func() { <-o.slots }()
	default:
		return nil, errs.New(errs.Overloaded, "sync queue is full")
	}

	if req.Action == ActionCreate {
		return o.syncCreateOrEdit(ctx, req, req.Path)
	}

	// edit/delete accept absolute, project-relative, or bare-basename
	// paths against the stored file set.
	resolved, ambiguous, err := o.ResolvePath(ctx, req.Path)
	if err != nil {
		if errs.Is(err, errs.NotFound) && req.Action == ActionEdit {
			// Editing an untracked file behaves as create.
			return o.syncCreateOrEdit(ctx, req, req.Path)
		}
		return nil, err
	}
	if ambiguous != nil {
		return &Result{
			Action:        req.Action,
			Ambiguous:     true,
			MatchingFiles: ambiguous,
			Hint:          "multiple files match this path; retry with a project-relative or absolute path",
		}, nil
	}

	if req.Action == ActionDelete {
		return o.syncDelete(ctx, req, resolved)
	}
	return o.syncCreateOrEdit(ctx, req, o.diskPath(resolved))
}

func (o *Orchestrator) lockFile(id string) func() {
	muAny, _ := o.fileMus.LoadOrStore(id, &gosync.Mutex{})
	mu := muAny.(*gosync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// syncCreateOrEdit runs the full ingestion pipeline for one file.
func (o *Orchestrator) syncCreateOrEdit(ctx context.Context, req Request, path string) (*Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidInput, "resolve path", err)
	}
	source, err := os.ReadFile(abs)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "read file", err)
	}

	root := resolveProjectRoot(abs)
	project, dirID, err := o.ensureProject(ctx, root, filepath.Dir(abs))
	if err != nil {
		return nil, err
	}

	relPath, err := filepath.Rel(root, abs)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "relativize path", err)
	}
	canonical := filepath.ToSlash(relPath)

	fileID := FileID(project.ID, canonical)
	unlock := o.lockFile(fileID)
	defer unlock()

	contentHash := hashBytes(source)
	result := &Result{FileID: fileID, Action: req.Action}

	lang, _ := parser.DetectLanguage(canonical)
	prior, priorErr := o.store.Get(ctx, fileID)
	if priorErr == nil {
		if pf, ok := prior.(*model.File); ok && pf.ContentHash == contentHash && !pf.Deleted {
			// Unchanged content: record the audit entry, touch nothing else.
			if err := o.appendAudit(ctx, pf, req); err != nil {
				return nil, err
			}
			result.Layers.Temporal = true
			o.logger.Debug("sync: content unchanged", "path", canonical)
			return result, nil
		}
	}

	file := &model.File{
		Envelope: model.Envelope{
			ID:        fileID,
			Kind:      model.KindFile,
			TenantID:  o.cfg.TenantID,
			ProjectID: project.ID,
		},
		Path:        canonical,
		Language:    string(lang),
		ContentHash: contentHash,
		SizeBytes:   int64(len(source)),
		DirectoryID: dirID,
	}
	if priorErr == nil {
		file.CreatedAt = prior.GetEnvelope().CreatedAt
	}
	if err := o.store.Upsert(ctx, file); err != nil {
		return nil, err
	}
	if dirID != "" {
		if err := o.store.UpsertEdge(ctx, model.Edge{Kind: model.EdgeDefinedIn, FromID: fileID, ToID: dirID}); err != nil {
			return nil, err
		}
	}

	// Parse. An unsupported language still tracks the file; an
	// unparseable one yields zero symbols. Neither fails the sync.
	parseRes, parseErr := parser.ParseFile(canonical, source, "")
	if parseErr != nil {
		result.Warnings = append(result.Warnings, parseErr.Error())
		parseRes = &parser.Result{}
	}

	symbols, err := o.replaceSymbols(ctx, file, parseRes)
	if err != nil {
		return nil, err
	}
	rels, err := o.rewriteDependencyEdges(ctx, file, symbols, parseRes.Dependencies)
	if err != nil {
		return nil, err
	}
	result.RelationshipsUpdated = rels
	result.Layers.Graph = true

	chunks, err := o.replaceChunks(ctx, file, string(source))
	if err != nil {
		return nil, err
	}
	result.ChunksReplaced = len(chunks)

	log, err := o.writeFileLog(ctx, file, parseRes, req)
	if err != nil {
		return nil, err
	}
	result.Layers.Temporal = true

	embedded, warns := o.embedRecords(ctx, symbols, chunks, log)
	result.Warnings = append(result.Warnings, warns...)
	result.Layers.Vector = embedded > 0

	o.logger.Info("sync: file ingested",
		"path", canonical, "action", req.Action,
		"symbols", len(symbols), "chunks", len(chunks), "embedded", embedded)
	return result, nil
}

// syncDelete marks the File deleted, appends the audit entry, and
// removes its symbols, chunks, filelog, and touching edges.
func (o *Orchestrator) syncDelete(ctx context.Context, req Request, file *model.File) (*Result, error) {
	unlock := o.lockFile(file.ID)
	defer unlock()

	result := &Result{FileID: file.ID, Action: ActionDelete}

	for _, kind := range []model.Kind{model.KindSymbol, model.KindFileChunk} {
		children, err := o.recordsForFile(ctx, kind, file.ID)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if err := o.store.Delete(ctx, child.GetEnvelope().ID); err != nil {
				return nil, err
			}
		}
	}
	if err := o.store.Delete(ctx, filelog.IDFor(file.ID)); err != nil && !errs.Is(err, errs.NotFound) {
		return nil, err
	}
	if err := o.store.RemoveEdges(ctx, file.ID); err != nil {
		return nil, err
	}

	file.Deleted = true
	if err := o.store.Upsert(ctx, file); err != nil {
		return nil, err
	}

	result.Layers = LayersUpdated{Temporal: true, Vector: true, Graph: true}
	o.logger.Info("sync: file deleted", "path", file.Path)
	return result, nil
}

// ResolvePath resolves a caller-supplied path against the stored file
// set. Tier 1: exact, path-contains, or normalized match. Tier 2:
// basename-only; more than one basename match returns the candidate
// list instead of a file.
func (o *Orchestrator) ResolvePath(ctx context.Context, input string) (*model.File, []string, error) {
	files, err := o.trackedFiles(ctx)
	if err != nil {
		return nil, nil, err
	}

	norm := filepath.ToSlash(filepath.Clean(input))

	// Tier 1: exact, contains, normalized.
	var tier1 []*model.File
	for _, f := range files {
		switch {
		case f.Path == input || f.Path == norm:
			tier1 = append(tier1, f)
		case strings.HasSuffix(norm, "/"+f.Path) || strings.Contains(f.Path, norm):
			tier1 = append(tier1, f)
		}
	}
	if len(tier1) == 1 {
		return tier1[0], nil, nil
	}
	if len(tier1) > 1 {
		return nil, filePaths(tier1), nil
	}

	// Tier 2: basename only.
	base := filepath.Base(norm)
	var tier2 []*model.File
	for _, f := range files {
		if filepath.Base(f.Path) == base {
			tier2 = append(tier2, f)
		}
	}
	if len(tier2) == 1 {
		return tier2[0], nil, nil
	}
	if len(tier2) > 1 {
		return nil, filePaths(tier2), nil
	}
	return nil, nil, errs.New(errs.NotFound, "no tracked file matches "+input)
}

func filePaths(files []*model.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	sort.Strings(out)
	return out
}

func (o *Orchestrator) trackedFiles(ctx context.Context) ([]*model.File, error) {
	recs, err := o.store.List(ctx, objstore.Filter{Kinds: []model.Kind{model.KindFile}}, 0, 100000)
	if err != nil {
		return nil, err
	}
	var out []*model.File
	for _, rec := range recs {
		if f, ok := rec.(*model.File); ok && !f.Deleted {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// diskPath reconstructs the on-disk location of a tracked file from its
// project root and canonical path.
func (o *Orchestrator) diskPath(file *model.File) string {
	// ProjectID is derived from the root path; the Project record holds
	// the root itself.
	rec, err := o.store.Get(context.Background(), file.ProjectID)
	if err == nil {
		if p, ok := rec.(*model.Project); ok {
			return filepath.Join(p.Root, filepath.FromSlash(file.Path))
		}
	}
	return file.Path
}

// ensureProject establishes the Project record and the Directory chain
// from the project root down to dir, returning the project and the id
// of the file's immediate parent directory.
func (o *Orchestrator) ensureProject(ctx context.Context, root, dir string) (*model.Project, string, error) {
	projectID := ProjectID(root)
	var project *model.Project
	if rec, err := o.store.Get(ctx, projectID); err == nil {
		project = rec.(*model.Project)
	} else {
		project = &model.Project{
			Envelope: model.Envelope{
				ID:        projectID,
				Kind:      model.KindProject,
				TenantID:  o.cfg.TenantID,
				ProjectID: projectID,
			},
			Name: filepath.Base(root),
			Root: root,
		}
		if err := o.store.Upsert(ctx, project); err != nil {
			return nil, "", err
		}
	}

	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return project, "", nil
	}

	parentID := ""
	parentKindIsProject := true
	built := ""
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if built == "" {
			built = seg
		} else {
			built = built + "/" + seg
		}
		dirID := DirectoryID(projectID, built)
		if _, err := o.store.Get(ctx, dirID); err != nil {
			d := &model.Directory{
				Envelope: model.Envelope{
					ID:        dirID,
					Kind:      model.KindDirectory,
					TenantID:  o.cfg.TenantID,
					ProjectID: projectID,
				},
				Path:     built,
				ParentID: parentID,
			}
			if err := o.store.Upsert(ctx, d); err != nil {
				return nil, "", err
			}
			edgeTo := projectID
			if !parentKindIsProject {
				edgeTo = parentID
			}
			if err := o.store.UpsertEdge(ctx, model.Edge{Kind: model.EdgeDefinedIn, FromID: dirID, ToID: edgeTo}); err != nil {
				return nil, "", err
			}
		}
		parentID = dirID
		parentKindIsProject = false
	}
	return project, parentID, nil
}

// replaceSymbols swaps the file's stored symbol set for the freshly
// parsed one, keeping ids stable for symbols that survive. Each
// symbol's searchable Content comes from the hierarchical chunker:
// methods carry a file/class context header, oversized classes a
// method-list summary.
func (o *Orchestrator) replaceSymbols(ctx context.Context, file *model.File, parseRes *parser.Result) ([]*model.Symbol, error) {
	old, err := o.recordsForFile(ctx, model.KindSymbol, file.ID)
	if err != nil {
		return nil, err
	}

	hchunks := chunk.NewHierarchicalChunker().ChunkSymbols(
		parseRes.Symbols, file.Path, file.ProjectID, modulePathOf(file.Path), chunk.IsTestFile(file.Path))
	contentFor := map[string]chunk.Chunk{}
	for _, hc := range hchunks {
		contentFor[fmt.Sprintf("%s#%d", hc.SymbolName, hc.StartLine)] = hc
	}

	fresh := make([]*model.Symbol, 0, len(parseRes.Symbols))
	freshIDs := map[string]bool{}
	for _, ps := range parseRes.Symbols {
		content := ps.Content
		if hc, ok := contentFor[fmt.Sprintf("%s#%d", ps.Name, ps.StartLine)]; ok {
			content = hc.Content
			if hc.ContextHeader != "" {
				content = hc.ContextHeader + "\n" + hc.Content
			}
		}
		sym := &model.Symbol{
			Envelope: model.Envelope{
				ID:        SymbolID(file.ID, ps.Name, string(ps.Kind), ps.StartLine),
				Kind:      model.KindSymbol,
				TenantID:  file.TenantID,
				ProjectID: file.ProjectID,
			},
			Name:       ps.Name,
			SymbolKind: model.SymbolKind(ps.Kind),
			FileID:     file.ID,
			Path:       file.Path,
			Language:   string(parseRes.Language),
			Signature:  ps.Signature,
			Doc:        ps.Doc,
			StartLine:  ps.StartLine,
			EndLine:    ps.EndLine,
			Parent:     ps.Parent,
			Content:    o.redact(content),
			Exported:   ps.Exported,
		}
		freshIDs[sym.ID] = true
		fresh = append(fresh, sym)
	}

	for _, rec := range old {
		if !freshIDs[rec.GetEnvelope().ID] {
			if err := o.store.Delete(ctx, rec.GetEnvelope().ID); err != nil {
				return nil, err
			}
		}
	}
	for _, sym := range fresh {
		if err := o.store.Upsert(ctx, sym); err != nil {
			return nil, err
		}
		if err := o.store.UpsertEdge(ctx, model.Edge{Kind: model.EdgeDefinedIn, FromID: sym.ID, ToID: file.ID}); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

// rewriteDependencyEdges resolves the parse result's dependencies to
// stored records, best-effort and within-project only: imports resolve
// against tracked file paths, calls/extends/implements against symbol
// names in the same project.
func (o *Orchestrator) rewriteDependencyEdges(ctx context.Context, file *model.File, symbols []*model.Symbol, deps []parser.Dependency) (int, error) {
	for _, sym := range symbols {
		if err := o.store.RemoveEdges(ctx, sym.ID); err != nil {
			return 0, err
		}
		// RemoveEdges also dropped the defined_in edge; restore it.
		if err := o.store.UpsertEdge(ctx, model.Edge{Kind: model.EdgeDefinedIn, FromID: sym.ID, ToID: file.ID}); err != nil {
			return 0, err
		}
	}

	localByName := map[string]*model.Symbol{}
	for _, sym := range symbols {
		localByName[sym.Name] = sym
	}
	projectSymbols, err := o.symbolsForProject(ctx, file.ProjectID)
	if err != nil {
		return 0, err
	}
	files, err := o.trackedFiles(ctx)
	if err != nil {
		return 0, err
	}

	resolveSymbol := func(name string) *model.Symbol {
		// Trailing segment of a dotted/scoped reference names the callee.
		short := name
		for _, sep := range []string{".", "::", "->"} {
			if idx := strings.LastIndex(short, sep); idx >= 0 {
				short = short[idx+len(sep):]
			}
		}
		if s, ok := localByName[short]; ok {
			return s
		}
		if s, ok := projectSymbols[short]; ok {
			return s
		}
		return nil
	}

	count := 0
	for _, dep := range deps {
		switch dep.Kind {
		case parser.DependencyImports:
			target := importTargetFile(files, file, dep.Target)
			if target == nil {
				continue // external import; no within-project endpoint
			}
			// One representative depends_on edge per import: from the
			// importing symbol when the import is symbol-scoped, else
			// from the file's first symbol. A per-symbol fan-out would
			// drown the graph lane.
			from := ""
			if dep.SourceName != "" {
				if s := resolveSymbol(dep.SourceName); s != nil {
					from = s.ID
				}
			}
			if from == "" && len(symbols) > 0 {
				from = symbols[0].ID
			}
			if from != "" {
				if err := o.store.UpsertEdge(ctx, model.Edge{Kind: model.EdgeDependsOn, FromID: from, ToID: target.ID}); err == nil {
					count++
				}
			}
		case parser.DependencyCalls:
			src := resolveSymbol(dep.SourceName)
			dst := resolveSymbol(dep.Target)
			if src == nil || dst == nil || src.ID == dst.ID {
				continue
			}
			if err := o.store.UpsertEdge(ctx, model.Edge{Kind: model.EdgeCalls, FromID: src.ID, ToID: dst.ID}); err == nil {
				count++
			}
		case parser.DependencyExtends, parser.DependencyImplements:
			src := resolveSymbol(dep.SourceName)
			dst := resolveSymbol(dep.Target)
			if src == nil || dst == nil || src.ID == dst.ID {
				continue
			}
			kind := model.EdgeImplements
			if dep.Kind == parser.DependencyExtends {
				kind = model.EdgeDependsOn
			}
			if err := o.store.UpsertEdge(ctx, model.Edge{Kind: kind, FromID: src.ID, ToID: dst.ID}); err == nil {
				count++
			}
		}
	}
	return count, nil
}

// importTargetFile maps an import string to a tracked file in the same
// project: exact path, path suffix, or module-path match.
func importTargetFile(files []*model.File, from *model.File, target string) *model.File {
	slashed := strings.NewReplacer(".", "/", "::", "/").Replace(target)
	for _, f := range files {
		if f.ProjectID != from.ProjectID || f.ID == from.ID {
			continue
		}
		stem := strings.TrimSuffix(f.Path, filepath.Ext(f.Path))
		if f.Path == target || stem == slashed || strings.HasSuffix(stem, "/"+slashed) {
			return f
		}
	}
	return nil
}

func (o *Orchestrator) symbolsForProject(ctx context.Context, projectID string) (map[string]*model.Symbol, error) {
	recs, err := o.store.List(ctx, objstore.Filter{Kinds: []model.Kind{model.KindSymbol}, ProjectID: projectID}, 0, 100000)
	if err != nil {
		return nil, err
	}
	out := map[string]*model.Symbol{}
	for _, rec := range recs {
		if s, ok := rec.(*model.Symbol); ok {
			if _, exists := out[s.Name]; !exists {
				out[s.Name] = s
			}
		}
	}
	return out, nil
}

// replaceChunks re-chunks the file, upserting indices 0..n-1 and
// deleting any stale chunk with index >= n. Chunks whose content hash
// survived keep their embedding.
func (o *Orchestrator) replaceChunks(ctx context.Context, file *model.File, text string) ([]*model.FileChunk, error) {
	fresh := o.chunker.Chunks(file.ID, file.Path, o.redact(text))
	for _, c := range fresh {
		c.TenantID = file.TenantID
		c.ProjectID = file.ProjectID
		if rec, err := o.store.Get(ctx, c.ID); err == nil {
			if old, ok := rec.(*model.FileChunk); ok && old.ContentHash == c.ContentHash {
				c.Embedding = old.Embedding
			}
		}
		if err := o.store.Upsert(ctx, c); err != nil {
			return nil, err
		}
	}

	old, err := o.recordsForFile(ctx, model.KindFileChunk, file.ID)
	if err != nil {
		return nil, err
	}
	for _, rec := range old {
		if c, ok := rec.(*model.FileChunk); ok && c.ChunkIndex >= len(fresh) {
			if err := o.store.Delete(ctx, c.ID); err != nil {
				return nil, err
			}
		}
	}
	return fresh, nil
}

// writeFileLog regenerates the file's log, carrying forward the audit
// trail and change counter, and appends this sync's audit entry.
func (o *Orchestrator) writeFileLog(ctx context.Context, file *model.File, parseRes *parser.Result, req Request) (*model.FileLog, error) {
	log := filelog.Generate(file, parseRes.Symbols, parseRes.Dependencies)
	if prior, err := o.getFileLog(ctx, file.ID); err == nil && prior != nil {
		log.CreatedAt = prior.CreatedAt
		log.AuditEntries = prior.AuditEntries
		log.ChangeCount = prior.ChangeCount + 1
	} else {
		log.ChangeCount = 1
	}
	log.AuditEntries = append(log.AuditEntries, auditEntry(req))
	if err := o.store.Upsert(ctx, log); err != nil {
		return nil, err
	}
	return log, nil
}

func (o *Orchestrator) appendAudit(ctx context.Context, file *model.File, req Request) error {
	log, err := o.getFileLog(ctx, file.ID)
	if err != nil || log == nil {
		return err
	}
	log.AuditEntries = append(log.AuditEntries, auditEntry(req))
	return o.store.Upsert(ctx, log)
}

// GetFileLog returns the log for a caller-supplied path, resolving it
// through the same tiers as Sync.
func (o *Orchestrator) GetFileLog(ctx context.Context, path string) (*model.FileLog, error) {
	file, ambiguous, err := o.ResolvePath(ctx, path)
	if err != nil {
		return nil, err
	}
	if ambiguous != nil {
		return nil, errs.New(errs.Ambiguous, "multiple files match "+path+": "+strings.Join(ambiguous, ", "))
	}
	log, err := o.getFileLog(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	if log == nil {
		return nil, errs.New(errs.NotFound, "no file log for "+path)
	}
	return log, nil
}

func (o *Orchestrator) getFileLog(ctx context.Context, fileID string) (*model.FileLog, error) {
	rec, err := o.store.Get(ctx, filelog.IDFor(fileID))
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	log, ok := rec.(*model.FileLog)
	if !ok {
		return nil, errs.New(errs.Internal, "file log id resolves to a different kind")
	}
	return log, nil
}

func (o *Orchestrator) recordsForFile(ctx context.Context, kind model.Kind, fileID string) ([]model.Record, error) {
	recs, err := o.store.List(ctx, objstore.Filter{Kinds: []model.Kind{kind}}, 0, 100000)
	if err != nil {
		return nil, err
	}
	var out []model.Record
	for _, rec := range recs {
		switch r := rec.(type) {
		case *model.Symbol:
			if r.FileID == fileID {
				out = append(out, rec)
			}
		case *model.FileChunk:
			if r.FileID == fileID {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// embedRecords embeds every record whose embedding input changed, up to
// EmbedParallel at a time. Failures leave records without vectors and
// surface as warnings; they never fail the sync.
func (o *Orchestrator) embedRecords(ctx context.Context, symbols []*model.Symbol, chunks []*model.FileChunk, log *model.FileLog) (int, []string) {
	if o.embedder == nil {
		return 0, nil
	}

	type job struct {
		rec  model.Record
		text string
		hash string
	}
	var jobs []job
	for _, sym := range symbols {
		if len(sym.Embedding) == 0 {
			jobs = append(jobs, job{sym, sym.SearchText(), ""})
		}
	}
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			jobs = append(jobs, job{c, c.Content, c.ContentHash})
		}
	}
	if log != nil {
		jobs = append(jobs, job{log, log.Markdown, ""})
	}

	sem := make(chan struct{}, o.cfg.EmbedParallel)
	var wg gosync.WaitGroup
	var mu gosync.Mutex
	embedded := 0
	var warnings []string

	for _, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()
			vec, err := o.embedder.EmbedText(ctx, j.text, j.hash)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("embedding failed for %s: %v", j.rec.GetEnvelope().ID, err))
				return
			}
			j.rec.GetEnvelope().Embedding = vec
			if err := o.store.Upsert(ctx, j.rec); err != nil {
				warnings = append(warnings, fmt.Sprintf("store embedding for %s: %v", j.rec.GetEnvelope().ID, err))
				return
			}
			embedded++
		}(j)
	}
	wg.Wait()
	sort.Strings(warnings)
	return embedded, warnings
}

// modulePathOf derives a dotted module path from a canonical file path.
func modulePathOf(canonical string) string {
	stem := strings.TrimSuffix(canonical, filepath.Ext(canonical))
	return strings.ReplaceAll(stem, "/", ".")
}

// resolveProjectRoot walks up from the file looking for a
// version-control directory, then the explicit root marker; with
// neither, the file's own directory is the root.
func resolveProjectRoot(absPath string) string {
	dir := filepath.Dir(absPath)
	for d := dir; ; d = filepath.Dir(d) {
		for _, marker := range []string{".git", ".hg", ".svn"} {
			if info, err := os.Stat(filepath.Join(d, marker)); err == nil && info.IsDir() {
				return d
			}
		}
		if _, err := os.Stat(filepath.Join(d, rootMarkerFile)); err == nil {
			return d
		}
		parent := filepath.Dir(d)
		if parent == d {
			return dir
		}
	}
}

// redact strips detected secrets before content is stored or embedded.
func (o *Orchestrator) redact(content string) string {
	redacted, _ := o.secrets.RedactAll(content)
	return redacted
}

func auditEntry(req Request) model.AuditEntry {
	return model.AuditEntry{
		Action:    string(req.Action),
		Summary:   req.Summary,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ProjectID derives a stable project id from its root path.
func ProjectID(root string) string {
	sum := sha256.Sum256([]byte("project:" + filepath.ToSlash(root)))
	return hex.EncodeToString(sum[:16])
}

// DirectoryID derives a stable directory id from project and path.
func DirectoryID(projectID, relPath string) string {
	sum := sha256.Sum256([]byte("dir:" + projectID + ":" + relPath))
	return hex.EncodeToString(sum[:16])
}

// FileID derives a stable file id: the project id plus the canonical
// path form the identity key, so identical relative paths in different
// projects never collide.
func FileID(projectID, canonicalPath string) string {
	sum := sha256.Sum256([]byte("file:" + projectID + ":" + canonicalPath))
	return hex.EncodeToString(sum[:16])
}

// SymbolID derives a stable symbol id within a file.
func SymbolID(fileID, name, kind string, startLine int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("symbol:%s:%s:%s:%d", fileID, name, kind, startLine)))
	return hex.EncodeToString(sum[:16])
}
