package store

import (
	"context"

	"github.com/agentmem/substrate/internal/graph"
	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/objstore"
)

// RemoteStore composes the remote backend set behind the planner's
// Store surface: the embedded SQLite store still owns the records and
// the lexical lane (neither Qdrant nor Neo4j model the full record
// set), Qdrant answers the vector lane, and Neo4j answers the graph
// lane. Writes mirror into the remotes through MirrorUpsert/MirrorDelete.
type RemoteStore struct {
	embedded *objstore.Store
	vectors  *QdrantStore
	graph    *graph.Neo4jStore
}

// NewRemoteStore composes the three backends.
func NewRemoteStore(embedded *objstore.Store, vectors *QdrantStore, g *graph.Neo4jStore) *RemoteStore {
	return &RemoteStore{embedded: embedded, vectors: vectors, graph: g}
}

// SearchText runs the lexical lane on the embedded store.
func (s *RemoteStore) SearchText(ctx context.Context, query string, f objstore.Filter, k int) ([]objstore.TextHit, error) {
	return s.embedded.SearchText(ctx, query, f, k)
}

// SearchVector runs the vector lane on Qdrant.
func (s *RemoteStore) SearchVector(ctx context.Context, vector []float32, f objstore.Filter, k int) ([]objstore.VectorHit, error) {
	return s.vectors.SearchVector(ctx, vector, f, k)
}

// Traverse runs the graph lane on Neo4j, materializing reached records
// from the embedded store.
func (s *RemoteStore) Traverse(ctx context.Context, seeds []string, relations []model.EdgeKind, direction objstore.Direction, maxDepth int) ([]objstore.TraverseHit, error) {
	ids, err := s.graph.TraverseIDs(ctx, seeds, relations, direction, maxDepth)
	if err != nil {
		return nil, err
	}
	var out []objstore.TraverseHit
	for _, hit := range ids {
		rec, err := s.embedded.Get(ctx, hit.ID)
		if err != nil {
			continue // node survived in the mirror but the record is gone
		}
		out = append(out, objstore.TraverseHit{Record: rec, Depth: hit.Depth})
	}
	return out, nil
}

// MirrorUpsert propagates an embedded-store write into the remotes.
func (s *RemoteStore) MirrorUpsert(ctx context.Context, rec model.Record) error {
	if err := s.vectors.UpsertRecords(ctx, []model.Record{rec}); err != nil {
		return err
	}
	return s.graph.UpsertNode(ctx, rec)
}

// MirrorEdge propagates an edge write into the graph mirror.
func (s *RemoteStore) MirrorEdge(ctx context.Context, e model.Edge) error {
	return s.graph.UpsertEdge(ctx, e)
}

// MirrorDelete propagates a delete into the remotes.
func (s *RemoteStore) MirrorDelete(ctx context.Context, id string) error {
	if err := s.vectors.DeleteRecord(ctx, id); err != nil {
		return err
	}
	return s.graph.RemoveNode(ctx, id)
}
