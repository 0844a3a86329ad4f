package objstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/model"
)

const testDim = 4

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", testDim)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fileRec(id, path string) *model.File {
	return &model.File{
		Envelope: model.Envelope{ID: id, Kind: model.KindFile, ProjectID: "p1"},
		Path:     path,
		Language: "python",
	}
}

func symbolRec(id, name, fileID string, emb []float32) *model.Symbol {
	return &model.Symbol{
		Envelope: model.Envelope{ID: id, Kind: model.KindSymbol, ProjectID: "p1", Embedding: emb},
		Name:     name,
		FileID:   fileID,
		Path:     "src/auth.py",
	}
}

func TestUpsertGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sym := symbolRec("sym-1", "authenticate_user", "file-1", []float32{1, 0, 0, 0})
	sym.Doc = "Authenticate a user."
	require.NoError(t, s.Upsert(ctx, sym))

	got, err := s.Get(ctx, "sym-1")
	require.NoError(t, err)
	gotSym := got.(*model.Symbol)
	assert.Equal(t, sym.Name, gotSym.Name)
	assert.Equal(t, sym.Doc, gotSym.Doc)
	assert.Equal(t, sym.Embedding, gotSym.Embedding)
	assert.False(t, gotSym.UpdatedAt.IsZero())
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	s := openTestStore(t)
	err := s.Upsert(context.Background(), symbolRec("sym-1", "x", "f", []float32{1, 2}))
	require.Error(t, err)
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
}

func TestUpsertRejectsEmptyID(t *testing.T) {
	s := openTestStore(t)
	err := s.Upsert(context.Background(), symbolRec("", "x", "f", nil))
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "ghost")
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestSearchText(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, symbolRec("sym-auth", "authenticate_user", "f", nil)))
	require.NoError(t, s.Upsert(ctx, symbolRec("sym-hash", "hash_password", "f", nil)))

	hits, err := s.SearchText(ctx, "authenticate_user", Filter{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "sym-auth", hits[0].Record.GetEnvelope().ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, 0.0)
		assert.LessOrEqual(t, h.Score, 1.0)
	}
}

func TestSearchTextFilterByKind(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, symbolRec("sym-1", "login handler", "f", nil)))
	require.NoError(t, s.Upsert(ctx, fileRec("file-1", "src/login.py")))

	hits, err := s.SearchText(ctx, "login", Filter{Kinds: []model.Kind{model.KindFile}}, 10)
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, model.KindFile, h.Record.GetEnvelope().Kind)
	}
}

func TestSearchVector(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, symbolRec("sym-a", "a", "f", []float32{1, 0, 0, 0})))
	require.NoError(t, s.Upsert(ctx, symbolRec("sym-b", "b", "f", []float32{0, 1, 0, 0})))
	require.NoError(t, s.Upsert(ctx, symbolRec("sym-novec", "c", "f", nil)))

	hits, err := s.SearchVector(ctx, []float32{1, 0, 0, 0}, Filter{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "sym-a", hits[0].Record.GetEnvelope().ID)
	for _, h := range hits {
		assert.NotEqual(t, "sym-novec", h.Record.GetEnvelope().ID, "records without vectors are invisible to the vector lane")
		assert.GreaterOrEqual(t, h.Similarity, 0.0)
		assert.LessOrEqual(t, h.Similarity, 1.0)
	}

	_, err = s.SearchVector(ctx, []float32{1, 0}, Filter{}, 10)
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
}

func TestEdgeEndpointInvariant(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, symbolRec("sym-a", "a", "f", nil)))

	err := s.UpsertEdge(ctx, model.Edge{Kind: model.EdgeCalls, FromID: "sym-a", ToID: "missing"})
	require.Error(t, err)
	assert.Equal(t, errs.Conflict, errs.KindOf(err))

	require.NoError(t, s.Upsert(ctx, symbolRec("sym-b", "b", "f", nil)))
	require.NoError(t, s.UpsertEdge(ctx, model.Edge{Kind: model.EdgeCalls, FromID: "sym-a", ToID: "sym-b"}))
}

func TestTraverse(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Upsert(ctx, symbolRec("sym-"+id, id, "f", nil)))
	}
	require.NoError(t, s.UpsertEdge(ctx, model.Edge{Kind: model.EdgeCalls, FromID: "sym-a", ToID: "sym-b"}))
	require.NoError(t, s.UpsertEdge(ctx, model.Edge{Kind: model.EdgeCalls, FromID: "sym-b", ToID: "sym-c"}))
	require.NoError(t, s.UpsertEdge(ctx, model.Edge{Kind: model.EdgeImplements, FromID: "sym-a", ToID: "sym-d"}))

	// Depth 0 returns exactly the seed set.
	hits, err := s.Traverse(ctx, []string{"sym-a"}, nil, DirBoth, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "sym-a", hits[0].Record.GetEnvelope().ID)
	assert.Equal(t, 0, hits[0].Depth)

	// Depth 2 outbound over calls reaches b (1) and c (2), not d.
	hits, err = s.Traverse(ctx, []string{"sym-a"}, []model.EdgeKind{model.EdgeCalls}, DirOutbound, 2)
	require.NoError(t, err)
	depths := map[string]int{}
	for _, h := range hits {
		depths[h.Record.GetEnvelope().ID] = h.Depth
	}
	assert.Equal(t, map[string]int{"sym-a": 0, "sym-b": 1, "sym-c": 2}, depths)

	// Inbound from c finds its caller.
	hits, err = s.Traverse(ctx, []string{"sym-c"}, []model.EdgeKind{model.EdgeCalls}, DirInbound, 1)
	require.NoError(t, err)
	depths = map[string]int{}
	for _, h := range hits {
		depths[h.Record.GetEnvelope().ID] = h.Depth
	}
	assert.Equal(t, map[string]int{"sym-c": 0, "sym-b": 1}, depths)
}

func TestDeleteCascadesFileChildren(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	file := fileRec("file-1", "src/auth.py")
	require.NoError(t, s.Upsert(ctx, file))
	sym := symbolRec("sym-1", "f", "file-1", []float32{1, 0, 0, 0})
	require.NoError(t, s.Upsert(ctx, sym))
	chunk := &model.FileChunk{
		Envelope:   model.Envelope{ID: "chunk-1", Kind: model.KindFileChunk, ProjectID: "p1"},
		FileID:     "file-1",
		ChunkIndex: 0,
		Content:    "def f(): pass",
	}
	require.NoError(t, s.Upsert(ctx, chunk))
	log := &model.FileLog{
		Envelope: model.Envelope{ID: "log-1", Kind: model.KindFileLog, ProjectID: "p1"},
		FileID:   "file-1",
		Markdown: "# src/auth.py",
	}
	require.NoError(t, s.Upsert(ctx, log))
	require.NoError(t, s.UpsertEdge(ctx, model.Edge{Kind: model.EdgeDefinedIn, FromID: "sym-1", ToID: "file-1"}))

	require.NoError(t, s.Delete(ctx, "file-1"))

	for _, id := range []string{"file-1", "sym-1", "chunk-1", "log-1"} {
		_, err := s.Get(ctx, id)
		assert.Equal(t, errs.NotFound, errs.KindOf(err), "%s must not survive the cascade", id)
	}

	// No dangling traversal from the deleted symbol.
	hits, err := s.Traverse(ctx, []string{"sym-1"}, nil, DirBoth, 1)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestListPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Upsert(ctx, fileRec(string(rune('a'+i)), "f"+string(rune('a'+i)))))
	}

	page1, err := s.List(ctx, Filter{Kinds: []model.Kind{model.KindFile}}, 0, 4)
	require.NoError(t, err)
	assert.Len(t, page1, 4)
	page2, err := s.List(ctx, Filter{Kinds: []model.Kind{model.KindFile}}, 4, 4)
	require.NoError(t, err)
	assert.Len(t, page2, 4)
	assert.NotEqual(t, page1[0].GetEnvelope().ID, page2[0].GetEnvelope().ID)
}

func TestUpsertBatchMixedOutcomes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, fileRec("file-1", "a.py")))

	statuses := s.UpsertBatch(ctx, []model.Record{
		fileRec("file-1", "a-renamed.py"),              // exists -> updated
		fileRec("file-2", "b.py"),                      // new -> created
		symbolRec("bad", "x", "f", []float32{1, 2, 3}), // wrong dim -> failed
	})
	require.Len(t, statuses, 3)
	assert.Equal(t, "updated", statuses[0].Status)
	assert.Equal(t, "created", statuses[1].Status)
	assert.Equal(t, "failed", statuses[2].Status)
	assert.NotEmpty(t, statuses[2].Reason)

	// The failed record did not block the others.
	got, err := s.Get(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "a-renamed.py", got.(*model.File).Path)
}

func TestUpsertPreservesCreatedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sym := symbolRec("sym-1", "x", "f", nil)
	require.NoError(t, s.Upsert(ctx, sym))
	created := sym.CreatedAt
	require.False(t, created.IsZero())

	time.Sleep(5 * time.Millisecond)
	again := symbolRec("sym-1", "x-renamed", "f", nil)
	again.CreatedAt = created
	require.NoError(t, s.Upsert(ctx, again))

	got, err := s.Get(ctx, "sym-1")
	require.NoError(t, err)
	assert.Equal(t, "x-renamed", got.(*model.Symbol).Name)
	assert.True(t, got.GetEnvelope().CreatedAt.Equal(created))
	assert.True(t, got.GetEnvelope().UpdatedAt.After(created))
}
