package retrieval

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentmem/substrate/internal/cache"
	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/objstore"
)

// ResultCache is the surface a query-result cache offers; the Redis
// cache satisfies it.
type ResultCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	GetIndexVersion(ctx context.Context, projectID string) (int64, error)
}

// CachedPlanner fronts a Planner with a result cache keyed by query,
// mode, limit, and the project's index version. A sync write bumps the
// version, so stale fused results never outlive the index state they
// were computed from.
type CachedPlanner struct {
	planner *Planner
	cache   ResultCache
	ttl     time.Duration
}

// NewCachedPlanner wraps planner. ttl defaults to ten minutes.
func NewCachedPlanner(planner *Planner, results ResultCache, ttl time.Duration) *CachedPlanner {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &CachedPlanner{planner: planner, cache: results, ttl: ttl}
}

// cachedResult carries one result with its record kind-tagged, since
// model.Record is an interface and cannot unmarshal itself.
type cachedResult struct {
	Kind        model.Kind         `json:"kind"`
	Record      json.RawMessage    `json:"record"`
	Score       float64            `json:"score"`
	SubScores   map[string]float64 `json:"sub_scores"`
	Explanation string             `json:"explanation"`
}

type cachedResponse struct {
	Results     []cachedResult `json:"results"`
	Trace       *Trace         `json:"trace"`
	Suggestions []Suggestion   `json:"suggestions,omitempty"`
}

// Search serves from the cache when possible, executing and filling it
// otherwise. Cache failures degrade to uncached execution.
func (c *CachedPlanner) Search(ctx context.Context, req Request) (*Response, error) {
	version, err := c.cache.GetIndexVersion(ctx, req.Filter.ProjectID)
	if err != nil {
		return c.planner.Search(ctx, req)
	}
	key := cache.QueryCacheKey(req.Filter.ProjectID, req.Query, string(req.Mode), req.Limit, version)

	if raw, err := c.cache.Get(ctx, key); err == nil && raw != "" {
		if resp, err := decodeCached([]byte(raw)); err == nil {
			return resp, nil
		}
	}

	resp, err := c.planner.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if data, err := encodeCached(resp); err == nil {
		_ = c.cache.Set(ctx, key, string(data), c.ttl)
	}
	return resp, nil
}

func encodeCached(resp *Response) ([]byte, error) {
	out := cachedResponse{Trace: resp.Trace, Suggestions: resp.Suggestions}
	for _, r := range resp.Results {
		raw, err := json.Marshal(r.Record)
		if err != nil {
			return nil, err
		}
		out.Results = append(out.Results, cachedResult{
			Kind:        r.Record.GetEnvelope().Kind,
			Record:      raw,
			Score:       r.Score,
			SubScores:   r.SubScores,
			Explanation: r.Explanation,
		})
	}
	return json.Marshal(out)
}

func decodeCached(data []byte) (*Response, error) {
	var in cachedResponse
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	resp := &Response{Trace: in.Trace, Suggestions: in.Suggestions}
	for _, r := range in.Results {
		rec, err := objstore.DecodeRecord(r.Kind, r.Record)
		if err != nil {
			return nil, err
		}
		resp.Results = append(resp.Results, Result{
			Record:      rec,
			Score:       r.Score,
			SubScores:   r.SubScores,
			Explanation: r.Explanation,
		})
	}
	return resp, nil
}
