package coordination

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/objstore"
)

type memStore struct {
	mu    sync.Mutex
	recs  map[string]model.Record
	edges []model.Edge
}

func newMemStore() *memStore {
	return &memStore{recs: map[string]model.Record{}}
}

func (s *memStore) Upsert(_ context.Context, rec model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	s.edges = append(s.edges, e)
	return nil
}

func TestLeaseAcquireConflict(t *testing.T) {
	leases := NewLeases(newMemStore(), nil)
	ctx := context.Background()

	lease, err := leases.Acquire(ctx, "repo:main", "agent-a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "agent-a", lease.HolderID)

	_, err = leases.Acquire(ctx, "repo:main", "agent-b", time.Minute)
	require.Error(t, err)
	assert.Equal(t, errs.Conflict, errs.KindOf(err))

	// The holder can re-acquire (extend) its own lease.
	_, err = leases.Acquire(ctx, "repo:main", "agent-a", time.Minute)
	assert.NoError(t, err)

	// A different resource is free.
	_, err = leases.Acquire(ctx, "repo:other", "agent-b", time.Minute)
	assert.NoError(t, err)
}

func TestLeaseExpiryFreesResource(t *testing.T) {
	store := newMemStore()
	leases := NewLeases(store, nil)
	ctx := context.Background()

	lease, err := leases.Acquire(ctx, "r", "agent-a", time.Minute)
	require.NoError(t, err)

	// Force expiry.
	lease.ExpiresAt = time.Now().UTC().Add(-time.Second).Format(time.RFC3339)
	require.NoError(t, store.Upsert(ctx, lease))

	got, err := leases.Acquire(ctx, "r", "agent-b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "agent-b", got.HolderID)
}

func TestLeaseRenewAndRelease(t *testing.T) {
	leases := NewLeases(newMemStore(), nil)
	ctx := context.Background()

	_, err := leases.Acquire(ctx, "r", "agent-a", time.Minute)
	require.NoError(t, err)

	renewed, err := leases.Renew(ctx, "r", "agent-a", 2*time.Minute)
	require.NoError(t, err)
	expires, err := time.Parse(time.RFC3339, renewed.ExpiresAt)
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now().UTC().Add(time.Minute)))

	_, err = leases.Renew(ctx, "r", "agent-b", time.Minute)
	assert.Equal(t, errs.Conflict, errs.KindOf(err))

	require.NoError(t, leases.Release(ctx, "r", "agent-a"))
	_, err = leases.Acquire(ctx, "r", "agent-b", time.Minute)
	assert.NoError(t, err)
}

func TestReleaseOthersLeaseConflicts(t *testing.T) {
	leases := NewLeases(newMemStore(), nil)
	ctx := context.Background()

	_, err := leases.Acquire(ctx, "r", "agent-a", time.Minute)
	require.NoError(t, err)
	err = leases.Release(ctx, "r", "agent-b")
	assert.Equal(t, errs.Conflict, errs.KindOf(err))

	// Releasing a missing lease is a no-op.
	assert.NoError(t, leases.Release(ctx, "ghost", "agent-a"))
}

func TestRunLifecycle(t *testing.T) {
	runs := NewRuns(newMemStore())
	ctx := context.Background()

	run, err := runs.Start(ctx, "t1", "p1", "refactor the parser", "agent-a")
	require.NoError(t, err)
	assert.Equal(t, model.RunOpen, run.Status)
	assert.NotEmpty(t, run.StartedAt)

	closed, err := runs.Close(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunClosed, closed.Status)
	assert.NotEmpty(t, closed.EndedAt)

	// Closed exactly once.
	_, err = runs.Close(ctx, run.ID)
	assert.Equal(t, errs.Conflict, errs.KindOf(err))

	_, err = runs.Start(ctx, "t1", "p1", "", "agent-a")
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
}

func TestArtifactWriteDecision(t *testing.T) {
	store := newMemStore()
	artifacts := NewArtifacts(store, nil)
	ctx := context.Background()

	rec, err := artifacts.Write(ctx, ArtifactWrite{
		Type:         "decision",
		Title:        "Use RRF for fusion",
		Context:      "multiple lanes need one ranking",
		Decision:     "reciprocal rank fusion with k=60",
		Alternatives: []string{"score averaging"},
	})
	require.NoError(t, err)
	decision := rec.(*model.Decision)
	assert.Equal(t, "Use RRF for fusion", decision.Title)
	assert.Equal(t, "proposed", decision.Status)
}

func TestArtifactWriteNoteAndChangeset(t *testing.T) {
	store := newMemStore()
	artifacts := NewArtifacts(store, nil)
	ctx := context.Background()

	// A file to link against.
	file := &model.File{Envelope: model.Envelope{ID: "file-1", Kind: model.KindFile}, Path: "src/a.py"}
	require.NoError(t, store.Upsert(ctx, file))
	decision, err := artifacts.Write(ctx, ArtifactWrite{Type: "decision", Title: "d"})
	require.NoError(t, err)

	note, err := artifacts.Write(ctx, ArtifactWrite{
		Type:        "note",
		Category:    "warning",
		Content:     "flaky test in auth suite",
		LinkedFiles: []string{"file-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.NoteWarning, note.(*model.Note).Category)

	cs, err := artifacts.Write(ctx, ArtifactWrite{
		Type:            "changeset",
		Title:           "rework auth",
		FilesChanged:    []string{"src/a.py"},
		LinkedFiles:     []string{"file-1"},
		LinkedDecisions: []string{decision.GetEnvelope().ID},
	})
	require.NoError(t, err)

	kinds := map[model.EdgeKind]int{}
	for _, e := range store.edges {
		kinds[e.Kind]++
	}
	assert.Equal(t, 2, kinds[model.EdgeLinkedFiles]) // note + changeset
	assert.Equal(t, 1, kinds[model.EdgeJustifiedBy])
	assert.Equal(t, 1, kinds[model.EdgeModifies])
	_ = cs
}

func TestArtifactWriteValidation(t *testing.T) {
	artifacts := NewArtifacts(newMemStore(), nil)
	ctx := context.Background()

	_, err := artifacts.Write(ctx, ArtifactWrite{Type: "sculpture"})
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
	_, err = artifacts.Write(ctx, ArtifactWrite{Type: "note", Category: "gossip", Content: "x"})
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
	_, err = artifacts.Write(ctx, ArtifactWrite{Type: "decision"})
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
}
