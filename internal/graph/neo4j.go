// Package graph provides the remote graph backend: a Neo4j mirror of
// the object store's records and typed edges, serving the retrieval
// planner's graph lane when the configuration selects the remote
// backend set.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/objstore"
)

// Neo4jStore mirrors records as nodes and the four edge kinds as typed
// relationships.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

// relTypeFor maps edge kinds onto Neo4j relationship types.
func relTypeFor(kind model.EdgeKind) string {
	switch kind {
	case model.EdgeDefinedIn:
		return "DEFINED_IN"
	case model.EdgeDependsOn:
		return "DEPENDS_ON"
	case model.EdgeCalls:
		return "CALLS"
	case model.EdgeImplements:
		return "IMPLEMENTS"
	case model.EdgeModifies:
		return "MODIFIES"
	case model.EdgeJustifiedBy:
		return "JUSTIFIED_BY"
	case model.EdgeLinkedFiles:
		return "LINKED_FILES"
	case model.EdgeLinkedDecisions:
		return "LINKED_DECISIONS"
	default:
		return ""
	}
}

var allEdgeKinds = []model.EdgeKind{
	model.EdgeDefinedIn, model.EdgeDependsOn, model.EdgeCalls, model.EdgeImplements,
	model.EdgeModifies, model.EdgeJustifiedBy, model.EdgeLinkedFiles, model.EdgeLinkedDecisions,
}

// NewNeo4jStore creates the graph mirror.
func NewNeo4jStore(uri, username, password string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, errs.Wrap(errs.BackendUnavailable, "create Neo4j driver", err)
	}

	// Verify connectivity
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, errs.Wrap(errs.BackendUnavailable, "connect to Neo4j", err)
	}

	return &Neo4jStore{driver: driver}, nil
}

// Close closes the Neo4j driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// EnsureSchema creates indexes and constraints.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	statements := []string{
		"CREATE CONSTRAINT record_id IF NOT EXISTS FOR (r:Record) REQUIRE r.id IS UNIQUE",
		"CREATE INDEX record_kind IF NOT EXISTS FOR (r:Record) ON (r.kind)",
		"CREATE INDEX record_project IF NOT EXISTS FOR (r:Record) ON (r.project_id)",
		"CREATE INDEX record_path IF NOT EXISTS FOR (r:Record) ON (r.path)",
	}
	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return errs.Wrap(errs.BackendUnavailable, "ensure graph schema", err)
		}
	}
	return nil
}

// UpsertNode mirrors one record's identity into the graph.
func (s *Neo4jStore) UpsertNode(ctx context.Context, rec model.Record) error {
	env := rec.GetEnvelope()
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx, `
		MERGE (r:Record {id: $id})
		SET r.kind = $kind, r.project_id = $project_id, r.tenant_id = $tenant_id, r.path = $path
	`, map[string]interface{}{
		"id":         env.ID,
		"kind":       string(env.Kind),
		"project_id": env.ProjectID,
		"tenant_id":  env.TenantID,
		"path":       nodePath(rec),
	})
	if err != nil {
		return errs.Wrap(errs.BackendUnavailable, "upsert graph node", err)
	}
	return nil
}

// UpsertEdge mirrors one typed edge. MATCH (not MERGE) on the endpoints
// enforces the same rule the embedded store enforces: an edge naming a
// missing endpoint writes nothing.
func (s *Neo4jStore) UpsertEdge(ctx context.Context, e model.Edge) error {
	relType := relTypeFor(e.Kind)
	if relType == "" {
		return errs.New(errs.InvalidInput, "unknown edge kind: "+string(e.Kind))
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, fmt.Sprintf(`
		MATCH (a:Record {id: $from}), (b:Record {id: $to})
		MERGE (a)-[rel:%s]->(b)
		RETURN count(rel) AS created
	`, relType), map[string]interface{}{
		"from": e.FromID,
		"to":   e.ToID,
	})
	if err != nil {
		return errs.Wrap(errs.BackendUnavailable, "upsert graph edge", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return errs.New(errs.Conflict, "edge endpoint does not exist")
	}
	if created, _ := record.Get("created"); created == int64(0) {
		return errs.New(errs.Conflict, "edge endpoint does not exist")
	}
	return nil
}

// RemoveNode deletes a record's node and every relationship touching it.
func (s *Neo4jStore) RemoveNode(ctx context.Context, id string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx, `
		MATCH (r:Record {id: $id})
		DETACH DELETE r
	`, map[string]interface{}{"id": id})
	if err != nil {
		return errs.Wrap(errs.BackendUnavailable, "remove graph node", err)
	}
	return nil
}

// IDDepth is one reached node with its shortest hop count.
type IDDepth struct {
	ID    string
	Depth int
}

// TraverseIDs walks from the seed set up to maxDepth hops over the
// given relation kinds and direction, returning reached ids with
// shortest depth. The caller materializes records from the object
// store.
func (s *Neo4jStore) TraverseIDs(ctx context.Context, seeds []string, relations []model.EdgeKind, direction objstore.Direction, maxDepth int) ([]IDDepth, error) {
	if maxDepth <= 0 {
		out := make([]IDDepth, len(seeds))
		for i, id := range seeds {
			out[i] = IDDepth{ID: id, Depth: 0}
		}
		return out, nil
	}

	if len(relations) == 0 {
		relations = allEdgeKinds
	}
	relPattern := ""
	for i, r := range relations {
		if i > 0 {
			relPattern += "|"
		}
		relPattern += relTypeFor(r)
	}

	var pattern string
	switch direction {
	case objstore.DirOutbound:
		pattern = fmt.Sprintf("(seed)-[:%s*1..%d]->(n)", relPattern, maxDepth)
	case objstore.DirInbound:
		pattern = fmt.Sprintf("(seed)<-[:%s*1..%d]-(n)", relPattern, maxDepth)
	default:
		pattern = fmt.Sprintf("(seed)-[:%s*1..%d]-(n)", relPattern, maxDepth)
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, fmt.Sprintf(`
		MATCH (seed:Record) WHERE seed.id IN $seeds
		MATCH path = %s
		WITH n, min(length(path)) AS depth
		RETURN n.id AS id, depth
	`, pattern), map[string]interface{}{"seeds": seeds})
	if err != nil {
		return nil, errs.Wrap(errs.BackendUnavailable, "graph traverse", err)
	}

	depths := map[string]int{}
	for _, id := range seeds {
		depths[id] = 0
	}
	for result.Next(ctx) {
		record := result.Record()
		id, _ := record.Get("id")
		depth, _ := record.Get("depth")
		idStr, ok := id.(string)
		if !ok {
			continue
		}
		d := int(depth.(int64))
		if existing, seen := depths[idStr]; !seen || d < existing {
			depths[idStr] = d
		}
	}
	if err := result.Err(); err != nil {
		return nil, errs.Wrap(errs.BackendUnavailable, "graph traverse rows", err)
	}

	out := make([]IDDepth, 0, len(depths))
	for id, depth := range depths {
		out = append(out, IDDepth{ID: id, Depth: depth})
	}
	return out, nil
}

func nodePath(rec model.Record) string {
	switch r := rec.(type) {
	case *model.File:
		return r.Path
	case *model.Symbol:
		return r.Path
	case *model.FileChunk:
		return r.Path
	case *model.FileLog:
		return r.Path
	case *model.Directory:
		return r.Path
	case *model.Project:
		return r.Root
	default:
		return ""
	}
}
