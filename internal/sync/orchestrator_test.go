package sync

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/objstore"
)

// memStore is an in-memory ObjectStore for orchestrator tests. It
// enforces the edge-endpoint invariant the real store enforces.
type memStore struct {
	mu      gosync.Mutex
	recs    map[string]model.Record
	edges   map[string]model.Edge // key from|kind|to
	upserts int
}

func newMemStore() *memStore {
	return &memStore{recs: map[string]model.Record{}, edges: map[string]model.Edge{}}
}

func edgeKey(e model.Edge) string {
	return e.FromID + "|" + string(e.Kind) + "|" + e.ToID
}

func (s *memStore) Upsert(_ context.Context, rec model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.recs[rec.GetEnvelope().ID] = rec
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "no object with id "+id)
	}
	return rec, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	for k, e := range s.edges {
		if e.FromID == id || e.ToID == id {
			delete(s.edges, k)
		}
	}
	return nil
}

func (s *memStore) List(_ context.Context, f objstore.Filter, _, _ int) ([]model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Record
	for _, rec := range s.recs {
		env := rec.GetEnvelope()
		if len(f.Kinds) > 0 {
			match := false
			for _, k := range f.Kinds {
				if env.Kind == k {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		if f.ProjectID != "" && env.ProjectID != f.ProjectID {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetEnvelope().ID < out[j].GetEnvelope().ID })
	return out, nil
}

func (s *memStore) UpsertEdge(_ context.Context, e model.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[e.FromID]; !ok {
		return errs.New(errs.Conflict, "edge endpoint does not exist: "+e.FromID)
	}
	if _, ok := s.recs[e.ToID]; !ok {
		return errs.New(errs.Conflict, "edge endpoint does not exist: "+e.ToID)
	}
	s.edges[edgeKey(e)] = e
	return nil
}

func (s *memStore) RemoveEdges(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.edges {
		if e.FromID == id || e.ToID == id {
			delete(s.edges, k)
		}
	}
	return nil
}

func (s *memStore) byKind(kind model.Kind) []model.Record {
	out, _ := s.List(context.Background(), objstore.Filter{Kinds: []model.Kind{kind}}, 0, 0)
	return out
}

type stubEmbedder struct {
	mu    gosync.Mutex
	fail  bool
	calls int
}

func (e *stubEmbedder) EmbedText(_ context.Context, text, _ string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	fail := e.fail
	e.mu.Unlock()
	if fail {
		return nil, errs.New(errs.BackendUnavailable, "embedder down")
	}
	return []float32{1, 0, 0, 0}, nil
}

const authPy = `import hashlib

def authenticate_user(u, p):
    """Authenticate a user."""
    return hash_password(p)

def hash_password(p):
    return hashlib.sha256(p).hexdigest()
`

// writeProject lays out a temp project with a root marker.
func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, rootMarkerFile), nil, 0644))
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func TestSyncCreatePipeline(t *testing.T) {
	store := newMemStore()
	embedder := &stubEmbedder{}
	o := New(store, embedder, Config{}, nil)
	root := writeProject(t, map[string]string{"src/auth.py": authPy})

	res, err := o.Sync(context.Background(), Request{
		Path:    filepath.Join(root, "src/auth.py"),
		Action:  ActionCreate,
		Summary: "initial import",
	})
	require.NoError(t, err)
	require.False(t, res.Ambiguous)
	assert.True(t, res.Layers.Temporal)
	assert.True(t, res.Layers.Vector)
	assert.True(t, res.Layers.Graph)
	assert.Greater(t, res.ChunksReplaced, 0)

	// File record with canonical forward-slash path
	files := store.byKind(model.KindFile)
	require.Len(t, files, 1)
	file := files[0].(*model.File)
	assert.Equal(t, "src/auth.py", file.Path)
	assert.Equal(t, "python", file.Language)
	assert.NotEmpty(t, file.ContentHash)

	// Symbols parsed and embedded
	symbols := store.byKind(model.KindSymbol)
	require.Len(t, symbols, 2)
	names := []string{}
	for _, rec := range symbols {
		sym := rec.(*model.Symbol)
		names = append(names, sym.Name)
		assert.NotEmpty(t, sym.Embedding)
	}
	assert.ElementsMatch(t, []string{"authenticate_user", "hash_password"}, names)

	// Round-trip law: the filelog's key symbols match the parse
	logs := store.byKind(model.KindFileLog)
	require.Len(t, logs, 1)
	log := logs[0].(*model.FileLog)
	assert.ElementsMatch(t, []string{"authenticate_user", "hash_password"}, log.KeySymbols)
	assert.Equal(t, []string{"hashlib"}, log.Dependencies)
	require.Len(t, log.AuditEntries, 1)
	assert.Equal(t, "create", log.AuditEntries[0].Action)
	assert.Equal(t, "initial import", log.AuditEntries[0].Summary)

	// Chunk indices are gap-free from 0
	chunks := store.byKind(model.KindFileChunk)
	indices := []int{}
	for _, rec := range chunks {
		indices = append(indices, rec.(*model.FileChunk).ChunkIndex)
	}
	sort.Ints(indices)
	for i, idx := range indices {
		assert.Equal(t, i, idx)
	}

	// calls edge authenticate_user -> hash_password
	foundCall := false
	for _, e := range store.edges {
		if e.Kind == model.EdgeCalls {
			foundCall = true
		}
	}
	assert.True(t, foundCall)
}

func TestSyncEditUnchangedIsAuditOnly(t *testing.T) {
	store := newMemStore()
	embedder := &stubEmbedder{}
	o := New(store, embedder, Config{}, nil)
	root := writeProject(t, map[string]string{"src/auth.py": authPy})
	path := filepath.Join(root, "src/auth.py")

	_, err := o.Sync(context.Background(), Request{Path: path, Action: ActionCreate, Summary: "first"})
	require.NoError(t, err)

	upsertsBefore := store.upserts
	embedsBefore := embedder.calls

	res, err := o.Sync(context.Background(), Request{Path: path, Action: ActionEdit, Summary: "noop edit"})
	require.NoError(t, err)
	assert.True(t, res.Layers.Temporal)
	assert.False(t, res.Layers.Vector)
	assert.False(t, res.Layers.Graph)
	assert.Zero(t, res.ChunksReplaced)

	// Only the filelog (audit entry) was written; nothing was re-embedded.
	assert.Equal(t, upsertsBefore+1, store.upserts)
	assert.Equal(t, embedsBefore, embedder.calls)

	logs := store.byKind(model.KindFileLog)
	require.Len(t, logs, 1)
	entries := logs[0].(*model.FileLog).AuditEntries
	require.Len(t, entries, 2)
	assert.Equal(t, "edit", entries[1].Action)
}

func TestSyncEditChangedReingests(t *testing.T) {
	store := newMemStore()
	o := New(store, &stubEmbedder{}, Config{}, nil)
	root := writeProject(t, map[string]string{"src/auth.py": authPy})
	path := filepath.Join(root, "src/auth.py")

	_, err := o.Sync(context.Background(), Request{Path: path, Action: ActionCreate})
	require.NoError(t, err)

	edited := authPy + "\ndef rotate_salt():\n    pass\n"
	require.NoError(t, os.WriteFile(path, []byte(edited), 0644))

	res, err := o.Sync(context.Background(), Request{Path: path, Action: ActionEdit, Summary: "add rotate_salt"})
	require.NoError(t, err)
	assert.True(t, res.Layers.Vector)

	names := []string{}
	for _, rec := range store.byKind(model.KindSymbol) {
		names = append(names, rec.(*model.Symbol).Name)
	}
	assert.Contains(t, names, "rotate_salt")
}

func TestSyncAmbiguousBasename(t *testing.T) {
	store := newMemStore()
	o := New(store, &stubEmbedder{}, Config{}, nil)
	root := writeProject(t, map[string]string{
		"src/utils.py":   "def a():\n    pass\n",
		"tests/utils.py": "def b():\n    pass\n",
	})

	for _, rel := range []string{"src/utils.py", "tests/utils.py"} {
		_, err := o.Sync(context.Background(), Request{Path: filepath.Join(root, rel), Action: ActionCreate})
		require.NoError(t, err)
	}

	upsertsBefore := store.upserts
	res, err := o.Sync(context.Background(), Request{Path: "utils.py", Action: ActionEdit, Summary: "which one?"})
	require.NoError(t, err, "ambiguity is a successful response, not an error")
	assert.True(t, res.Ambiguous)
	assert.ElementsMatch(t, []string{"src/utils.py", "tests/utils.py"}, res.MatchingFiles)
	assert.NotEmpty(t, res.Hint)
	assert.Equal(t, upsertsBefore, store.upserts, "ambiguous resolution must perform no writes")
}

func TestSyncDelete(t *testing.T) {
	store := newMemStore()
	o := New(store, &stubEmbedder{}, Config{}, nil)
	root := writeProject(t, map[string]string{"src/auth.py": authPy})
	path := filepath.Join(root, "src/auth.py")

	_, err := o.Sync(context.Background(), Request{Path: path, Action: ActionCreate})
	require.NoError(t, err)
	require.NotEmpty(t, store.byKind(model.KindSymbol))

	res, err := o.Sync(context.Background(), Request{Path: "src/auth.py", Action: ActionDelete, Summary: "removing"})
	require.NoError(t, err)
	assert.Equal(t, ActionDelete, res.Action)

	assert.Empty(t, store.byKind(model.KindSymbol))
	assert.Empty(t, store.byKind(model.KindFileChunk))
	assert.Empty(t, store.byKind(model.KindFileLog))

	files := store.byKind(model.KindFile)
	require.Len(t, files, 1)
	assert.True(t, files[0].(*model.File).Deleted)

	for _, e := range store.edges {
		assert.NotEqual(t, res.FileID, e.FromID)
		assert.NotEqual(t, res.FileID, e.ToID)
	}
}

// Embedding backend failure: records are still written, just without
// vectors, and the sync reports warnings instead of failing.
func TestSyncSurvivesEmbeddingFailure(t *testing.T) {
	store := newMemStore()
	o := New(store, &stubEmbedder{fail: true}, Config{}, nil)
	root := writeProject(t, map[string]string{"src/auth.py": authPy})

	res, err := o.Sync(context.Background(), Request{Path: filepath.Join(root, "src/auth.py"), Action: ActionCreate})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Warnings)
	assert.False(t, res.Layers.Vector)

	require.NotEmpty(t, store.byKind(model.KindFile))
	require.NotEmpty(t, store.byKind(model.KindSymbol))
	require.NotEmpty(t, store.byKind(model.KindFileChunk))
	require.NotEmpty(t, store.byKind(model.KindFileLog))
	for _, rec := range store.byKind(model.KindSymbol) {
		assert.Empty(t, rec.GetEnvelope().Embedding)
	}
}

func TestSyncUnsupportedLanguageStillTracksFile(t *testing.T) {
	store := newMemStore()
	o := New(store, &stubEmbedder{}, Config{}, nil)
	root := writeProject(t, map[string]string{"README.md": "# hello\n"})

	res, err := o.Sync(context.Background(), Request{Path: filepath.Join(root, "README.md"), Action: ActionCreate})
	require.NoError(t, err)
	require.NotEmpty(t, res.Warnings)
	assert.True(t, strings.Contains(res.Warnings[0], "UnsupportedLanguage"))

	require.Len(t, store.byKind(model.KindFile), 1)
	assert.Empty(t, store.byKind(model.KindSymbol))
}

func TestSyncOverloadedFailsFast(t *testing.T) {
	store := newMemStore()
	o := New(store, &stubEmbedder{}, Config{MaxConcurrent: 1}, nil)

	// Occupy the only slot so the next call hits backpressure.
	o.slots <- struct{}{}
	defer func() { <-o.slots }()

	_, err := o.Sync(context.Background(), Request{Path: "whatever.py", Action: ActionCreate})
	require.Error(t, err)
	assert.Equal(t, errs.Overloaded, errs.KindOf(err))
}

func TestSyncInvalidAction(t *testing.T) {
	o := New(newMemStore(), &stubEmbedder{}, Config{}, nil)
	_, err := o.Sync(context.Background(), Request{Path: "x.py", Action: "truncate"})
	require.Error(t, err)
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
}

func TestGetFileLog(t *testing.T) {
	store := newMemStore()
	o := New(store, &stubEmbedder{}, Config{}, nil)
	root := writeProject(t, map[string]string{"src/auth.py": authPy})

	_, err := o.Sync(context.Background(), Request{Path: filepath.Join(root, "src/auth.py"), Action: ActionCreate})
	require.NoError(t, err)

	log, err := o.GetFileLog(context.Background(), "auth.py")
	require.NoError(t, err)
	assert.Equal(t, "src/auth.py", log.Path)
	assert.Contains(t, log.Markdown, "authenticate_user")

	_, err = o.GetFileLog(context.Background(), "nope.py")
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestProjectAndDirectoryChain(t *testing.T) {
	store := newMemStore()
	o := New(store, &stubEmbedder{}, Config{}, nil)
	root := writeProject(t, map[string]string{"a/b/c.py": "def f():\n    pass\n"})

	_, err := o.Sync(context.Background(), Request{Path: filepath.Join(root, "a/b/c.py"), Action: ActionCreate})
	require.NoError(t, err)

	projects := store.byKind(model.KindProject)
	require.Len(t, projects, 1)
	assert.Equal(t, root, projects[0].(*model.Project).Root)

	dirs := store.byKind(model.KindDirectory)
	paths := []string{}
	for _, rec := range dirs {
		paths = append(paths, rec.(*model.Directory).Path)
	}
	assert.ElementsMatch(t, []string{"a", "a/b"}, paths)
}

func TestFileIDScopedByProject(t *testing.T) {
	assert.NotEqual(t, FileID("proj-a", "src/utils.py"), FileID("proj-b", "src/utils.py"))
	assert.Equal(t, FileID("proj-a", "src/utils.py"), FileID("proj-a", "src/utils.py"))
}
