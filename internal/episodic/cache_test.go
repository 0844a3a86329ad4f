package episodic

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/objstore"
)

// memStore is an in-memory ObjectStore for cache tests.
type memStore struct {
	mu   sync.Mutex
	recs map[string]model.Record
}

func newMemStore() *memStore {
	return &memStore{recs: map[string]model.Record{}}
}

func (s *memStore) Upsert(_ context.Context, rec model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Deep-ish copy for blocks so later mutation doesn't leak in.
	if b, ok := rec.(*model.CacheBlock); ok {
		cp := *b
		cp.Items = append([]model.CacheItem(nil), b.Items...)
		s.recs[b.ID] = &cp
		return nil
	}
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
	return nil
}

func (s *memStore) List(_ context.Context, f objstore.Filter, _, _ int) ([]model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Record
	for _, rec := range s.recs {
		if len(f.Kinds) > 0 && rec.GetEnvelope().Kind != f.Kinds[0] {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GetEnvelope().ID < out[j].GetEnvelope().ID
	})
	return out, nil
}

func (s *memStore) SearchVector(_ context.Context, vector []float32, f objstore.Filter, k int) ([]objstore.VectorHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hits []objstore.VectorHit
	for _, rec := range s.recs {
		if len(f.Kinds) > 0 && rec.GetEnvelope().Kind != f.Kinds[0] {
			continue
		}
		emb := rec.GetEnvelope().Embedding
		if len(emb) == 0 {
			continue
		}
		var dot float64
		for i := range vector {
			dot += float64(vector[i]) * float64(emb[i])
		}
		hits = append(hits, objstore.VectorHit{Record: rec, Similarity: dot})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

type stubEmbedder struct{ fail bool }

func (e *stubEmbedder) EmbedText(_ context.Context, text, _ string) ([]float32, error) {
	if e.fail {
		return nil, errs.New(errs.BackendUnavailable, "down")
	}
	// Toy embedding: bucket by first byte so different summaries differ.
	vec := make([]float32, 4)
	if len(text) > 0 {
		vec[int(text[0])%4] = 1
	}
	return vec, nil
}

func newTestCache(cfg Config) (*Cache, *memStore) {
	store := newMemStore()
	return New(store, &stubEmbedder{}, cfg, nil), store
}

func TestFirstWriteCreatesOpenBlock(t *testing.T) {
	c, _ := newTestCache(Config{})
	ctx := context.Background()

	res, err := c.Write(ctx, "task:alpha", model.CacheItem{Kind: model.CacheItemFact, Content: "the build uses make"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Block.Sequence)
	assert.True(t, res.Block.Open)
	assert.Nil(t, res.ClosedBlock)

	current, err := c.GetCurrent(ctx, "task:alpha")
	require.NoError(t, err)
	require.Len(t, current.Items, 1)
	assert.Equal(t, "the build uses make", current.Items[0].Content)
}

func TestWriteOrderPreserved(t *testing.T) {
	c, _ := newTestCache(Config{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.Write(ctx, "s", model.CacheItem{Content: fmt.Sprintf("item %d", i)})
		require.NoError(t, err)
	}
	current, err := c.GetCurrent(ctx, "s")
	require.NoError(t, err)
	require.Len(t, current.Items, 5)
	for i, item := range current.Items {
		assert.Equal(t, fmt.Sprintf("item %d", i), item.Content)
	}
}

func TestDedupRaisesImportance(t *testing.T) {
	c, _ := newTestCache(Config{})
	ctx := context.Background()

	_, err := c.Write(ctx, "s", model.CacheItem{Content: "dup", Importance: 0.3})
	require.NoError(t, err)
	res, err := c.Write(ctx, "s", model.CacheItem{Content: "dup", Importance: 0.9})
	require.NoError(t, err)
	assert.True(t, res.Deduplicated)

	current, err := c.GetCurrent(ctx, "s")
	require.NoError(t, err)
	require.Len(t, current.Items, 1)
	assert.Equal(t, 0.9, current.Items[0].Importance)

	// Lower importance re-insert keeps the max
	_, err = c.Write(ctx, "s", model.CacheItem{Content: "dup", Importance: 0.1})
	require.NoError(t, err)
	current, err = c.GetCurrent(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 0.9, current.Items[0].Importance)
}

// Auto-close at the token budget: the write that crosses B closes the
// block, a fresh open block appears with the next sequence, and the
// closed block carries a non-empty, embedded summary.
func TestAutoCloseAtBudget(t *testing.T) {
	c, _ := newTestCache(Config{TokenBudget: 1800})
	ctx := context.Background()

	// ~50 tokens per item (40 words x 1.3); 50 items cross 1800.
	words := strings.Repeat("tokenword ", 40)
	var closed *model.CacheBlock
	writes := 0
	for i := 0; i < 50 && closed == nil; i++ {
		res, err := c.Write(ctx, "scope", model.CacheItem{Content: fmt.Sprintf("%s #%d", words, i)})
		require.NoError(t, err)
		writes++
		closed = res.ClosedBlock
	}
	require.NotNil(t, closed, "budget never crossed after %d writes", writes)
	assert.False(t, closed.Open)
	assert.NotEmpty(t, closed.Summary)
	assert.NotEmpty(t, closed.Embedding)
	assert.GreaterOrEqual(t, closed.Tokens, 1800)

	current, err := c.GetCurrent(ctx, "scope")
	require.NoError(t, err)
	assert.Equal(t, closed.Sequence+1, current.Sequence)
	assert.Empty(t, current.Items)
}

func TestSingleOpenBlockPerScope(t *testing.T) {
	c, store := newTestCache(Config{TokenBudget: 10})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := c.Write(ctx, "s", model.CacheItem{Content: fmt.Sprintf("many words go here item %d", i)})
		require.NoError(t, err)
	}

	recs, err := store.List(ctx, objstore.Filter{Kinds: []model.Kind{model.KindCacheBlock}}, 0, 1000)
	require.NoError(t, err)
	open := 0
	seqs := map[int]int{}
	for _, rec := range recs {
		b := rec.(*model.CacheBlock)
		if b.Open {
			open++
		}
		seqs[b.Sequence]++
	}
	assert.Equal(t, 1, open)
	for seq, count := range seqs {
		assert.Equal(t, 1, count, "sequence %d duplicated", seq)
	}
}

func TestCompactClosesAndSkipsEmpty(t *testing.T) {
	c, _ := newTestCache(Config{})
	ctx := context.Background()

	// Compacting a scope with nothing in it is a no-op.
	closed, err := c.Compact(ctx, "empty")
	require.NoError(t, err)
	assert.Nil(t, closed)

	_, err = c.Write(ctx, "s", model.CacheItem{Content: "something worth keeping"})
	require.NoError(t, err)
	closed, err = c.Compact(ctx, "s")
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.False(t, closed.Open)
	assert.NotEmpty(t, closed.Summary)

	current, err := c.GetCurrent(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, closed.Sequence+1, current.Sequence)
}

func TestWindowEviction(t *testing.T) {
	c, _ := newTestCache(Config{Window: 3})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := c.Write(ctx, "s", model.CacheItem{Content: fmt.Sprintf("block %d payload", i)})
		require.NoError(t, err)
		_, err = c.Compact(ctx, "s")
		require.NoError(t, err)
	}

	blocks, err := c.List(ctx, "s", 100, false)
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	// Surviving closed blocks are the newest, strictly decreasing and
	// densely packed.
	for i := 1; i < len(blocks); i++ {
		assert.Equal(t, blocks[i-1].Sequence-1, blocks[i].Sequence)
	}
	assert.Equal(t, 5, blocks[0].Sequence)
}

func TestGetByID(t *testing.T) {
	c, _ := newTestCache(Config{})
	ctx := context.Background()

	res, err := c.Write(ctx, "s", model.CacheItem{Content: "find me later"})
	require.NoError(t, err)
	closed, err := c.Compact(ctx, "s")
	require.NoError(t, err)

	got, err := c.GetByID(ctx, closed.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Block.ID, got.ID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "find me later", got.Items[0].Content)

	_, err = c.GetByID(ctx, "missing")
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestSearchClosedBlockSummaries(t *testing.T) {
	c, _ := newTestCache(Config{})
	ctx := context.Background()

	_, err := c.Write(ctx, "s", model.CacheItem{Kind: model.CacheItemWarning, Content: "api rate limits are strict"})
	require.NoError(t, err)
	_, err = c.Compact(ctx, "s")
	require.NoError(t, err)

	hits, err := c.Search(ctx, "s", "[warning] anything", 5, false)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.False(t, hits[0].Block.Open)
	assert.Empty(t, hits[0].Block.Items, "include_content=false must not materialize items")

	withContent, err := c.Search(ctx, "s", "[warning] anything", 5, true)
	require.NoError(t, err)
	require.NotEmpty(t, withContent)
	assert.NotEmpty(t, withContent[0].Block.Items)
}

func TestWriteRedactsSecrets(t *testing.T) {
	c, _ := newTestCache(Config{})
	ctx := context.Background()

	res, err := c.Write(ctx, "s", model.CacheItem{
		Kind:    model.CacheItemSnippet,
		Content: `works with DATABASE_URL = "postgres://svc:hunter2secret@db:5432/prod"`,
	})
	require.NoError(t, err)
	require.Len(t, res.Block.Items, 1)
	assert.NotContains(t, res.Block.Items[0].Content, "hunter2secret")
	assert.Contains(t, res.Block.Items[0].Content, "postgres://")
}

func TestWriteValidation(t *testing.T) {
	c, _ := newTestCache(Config{})
	ctx := context.Background()

	_, err := c.Write(ctx, "s", model.CacheItem{Content: ""})
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))

	_, err = c.Write(ctx, "s", model.CacheItem{Content: "x", Importance: 1.5})
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
}
