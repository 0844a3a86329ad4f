// Package store provides the remote vector backend: a Qdrant
// collection mirroring the object store's embedded records, serving the
// retrieval planner's vector lane when the configuration selects the
// remote backend set.
package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/objstore"
)

// DefaultCollection is the single collection holding every embedded
// record, mirroring the embedded store's one-table design.
const DefaultCollection = "substrate_objects"

// QdrantStore handles vector storage in Qdrant.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore creates a new Qdrant store.
func NewQdrantStore(url string) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: url,
	})
	if err != nil {
		return nil, errs.Wrap(errs.BackendUnavailable, "connect to Qdrant", err)
	}
	return &QdrantStore{client: client, collection: DefaultCollection}, nil
}

// Close closes the Qdrant connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// EnsureCollection creates the record collection if it doesn't exist.
func (s *QdrantStore) EnsureCollection(ctx context.Context, vectorSize int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return errs.Wrap(errs.BackendUnavailable, "check collection", err)
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// UpsertRecords mirrors embedded records into the collection. Records
// without vectors are skipped; they live only in the embedded store.
func (s *QdrantStore) UpsertRecords(ctx context.Context, records []model.Record) error {
	var points []*qdrant.PointStruct
	for _, rec := range records {
		env := rec.GetEnvelope()
		if len(env.Embedding) == 0 {
			continue
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return errs.Wrap(errs.Internal, "marshal record payload", err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(env.ID),
			Vectors: qdrant.NewVectors(env.Embedding...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"kind":       string(env.Kind),
				"tenant_id":  env.TenantID,
				"project_id": env.ProjectID,
				"path":       pathOf(rec),
				"payload":    string(payload),
			}),
		})
	}
	if len(points) == 0 {
		return nil
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return errs.Wrap(errs.BackendUnavailable, "upsert points", err)
	}
	return nil
}

// DeleteRecord removes a record's point.
func (s *QdrantStore) DeleteRecord(ctx context.Context, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(id)),
	})
	if err != nil {
		return errs.Wrap(errs.BackendUnavailable, "delete point", err)
	}
	return nil
}

// SearchVector performs k-NN over cosine similarity, matching the
// retrieval planner's vector-lane surface. Kind, project, and tenant
// filters push down into Qdrant; the path prefix post-filters since
// Qdrant has no native prefix predicate on keyword payloads.
func (s *QdrantStore) SearchVector(ctx context.Context, vector []float32, f objstore.Filter, k int) ([]objstore.VectorHit, error) {
	fetch := uint64(k)
	if f.PathPrefix != "" {
		fetch = uint64(k * 4)
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(fetch),
		Filter:         buildFilter(f),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, errs.Wrap(errs.BackendUnavailable, "qdrant query", err)
	}

	var hits []objstore.VectorHit
	for _, r := range results {
		rec, err := recordFromPayload(r.Payload)
		if err != nil {
			return nil, err
		}
		if f.PathPrefix != "" && !strings.HasPrefix(payloadString(r.Payload, "path"), f.PathPrefix) {
			continue
		}
		hits = append(hits, objstore.VectorHit{Record: rec, Similarity: float64(r.Score)})
		if len(hits) >= k {
			break
		}
	}
	return hits, nil
}

// CollectionInfo contains collection metadata.
type CollectionInfo struct {
	PointsCount int64
	VectorSize  int
	Status      string
}

// Info gets collection metadata.
func (s *QdrantStore) Info(ctx context.Context) (*CollectionInfo, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return nil, errs.Wrap(errs.BackendUnavailable, "collection info", err)
	}

	vectorSize := 0
	if params := info.Config.GetParams(); params != nil {
		if vecConfig := params.GetVectorsConfig(); vecConfig != nil {
			if vecParams := vecConfig.GetParams(); vecParams != nil {
				vectorSize = int(vecParams.GetSize())
			}
		}
	}

	pointsCount := int64(0)
	if info.PointsCount != nil {
		pointsCount = int64(*info.PointsCount)
	}

	return &CollectionInfo{
		PointsCount: pointsCount,
		VectorSize:  vectorSize,
		Status:      info.Status.String(),
	}, nil
}

// buildFilter maps the closed filter AST onto Qdrant match conditions.
func buildFilter(f objstore.Filter) *qdrant.Filter {
	var must []*qdrant.Condition

	keyword := func(key, value string) *qdrant.Condition {
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: value},
					},
				},
			},
		}
	}

	if len(f.Kinds) == 1 {
		must = append(must, keyword("kind", string(f.Kinds[0])))
	} else if len(f.Kinds) > 1 {
		var should []*qdrant.Condition
		for _, k := range f.Kinds {
			should = append(should, keyword("kind", string(k)))
		}
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{
				Filter: &qdrant.Filter{Should: should},
			},
		})
	}
	if f.ProjectID != "" {
		must = append(must, keyword("project_id", f.ProjectID))
	}
	if f.TenantID != "" {
		must = append(must, keyword("tenant_id", f.TenantID))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func recordFromPayload(payload map[string]*qdrant.Value) (model.Record, error) {
	kind := payloadString(payload, "kind")
	raw := payloadString(payload, "payload")
	if kind == "" || raw == "" {
		return nil, errs.New(errs.Internal, "qdrant point missing record payload")
	}
	return objstore.DecodeRecord(model.Kind(kind), []byte(raw))
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func pathOf(rec model.Record) string {
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
	default:
		return ""
	}
}
