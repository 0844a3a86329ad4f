// Package retrieval implements the hybrid retrieval planner: text,
// vector, and graph lanes executed in parallel over the object store,
// fused by reciprocal rank with per-source weights, with an explanation
// trace attached to every execution.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/objstore"
)

// Mode selects which lanes a query runs.
type Mode string

const (
	ModeHybrid Mode = "hybrid"
	ModeText   Mode = "text"
	ModeVector Mode = "vector"
	ModeGraph  Mode = "graph"
)

// DepthUnset marks an absent max_depth so callers can distinguish an
// explicit 0 (seeds only) from a default.
const DepthUnset = -1

// GraphOptions constrain the graph lane.
type GraphOptions struct {
	StartNodes    []string
	RelationTypes []model.EdgeKind
	MaxDepth      int // DepthUnset when the caller did not supply one
	Direction     objstore.Direction
}

// Request is one retrieval execution.
type Request struct {
	Query          string
	Mode           Mode
	Filter         objstore.Filter
	Graph          GraphOptions
	GraphAutoseed  bool
	GraphIntersect bool
	Limit          int
}

// Result is one fused, explained hit.
type Result struct {
	Record      model.Record       `json:"record"`
	Score       float64            `json:"score"`
	SubScores   map[string]float64 `json:"sub_scores"`
	Explanation string             `json:"explanation"`
}

// Trace records the execution breakdown identified by a trace id.
type Trace struct {
	TraceID       string   `json:"trace_id"`
	Mode          Mode     `json:"mode"`
	QueryType     string   `json:"query_type,omitempty"`
	TextResults   int      `json:"text_results"`
	VectorResults int      `json:"vector_results"`
	GraphResults  int      `json:"graph_results"`
	FusedResults  int      `json:"fused_results"`
	Seeds         []string `json:"seeds,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Partial       bool     `json:"partial"`
	ElapsedMs     int64    `json:"elapsed_ms"`
}

// Response is the ranked result list plus its trace.
type Response struct {
	Results     []Result     `json:"results"`
	Trace       *Trace       `json:"trace"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// Store is the lane surface the planner needs; the embedded objstore
// satisfies it, as do the remote backend adapters.
type Store interface {
	SearchText(ctx context.Context, query string, f objstore.Filter, k int) ([]objstore.TextHit, error)
	SearchVector(ctx context.Context, vector []float32, f objstore.Filter, k int) ([]objstore.VectorHit, error)
	Traverse(ctx context.Context, seeds []string, relations []model.EdgeKind, direction objstore.Direction, maxDepth int) ([]objstore.TraverseHit, error)
}

// Embedder is the query-embedding surface.
type Embedder interface {
	EmbedText(ctx context.Context, text, contentHash string) ([]float32, error)
}

// Config carries the planner's tunables.
type Config struct {
	Weights      Weights
	LaneTimeout  time.Duration
	DefaultLimit int
	MaxLimit     int
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		Weights:      Weights{Text: 0.40, Vector: 0.35, Graph: 0.25},
		LaneTimeout:  5 * time.Second,
		DefaultLimit: 5,
		MaxLimit:     100,
	}
}

// Planner executes retrieval requests.
type Planner struct {
	store      Store
	embedder   Embedder
	cfg        Config
	classifier *Classifier
	suggest    *SuggestionGenerator
	logger     *slog.Logger
}

// New creates a planner. embedder may be nil, in which case the vector
// lane is skipped and vector-mode queries fall back to text.
func New(store Store, embedder Embedder, cfg Config, logger *slog.Logger) *Planner {
	if cfg.LaneTimeout == 0 {
		cfg.LaneTimeout = 5 * time.Second
	}
	if cfg.DefaultLimit == 0 {
		cfg.DefaultLimit = 5
	}
	if cfg.MaxLimit == 0 {
		cfg.MaxLimit = 100
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = Weights{Text: 0.40, Vector: 0.35, Graph: 0.25}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		store:      store,
		embedder:   embedder,
		cfg:        cfg,
		classifier: NewClassifier(),
		suggest:    NewSuggestionGenerator(),
		logger:     logger,
	}
}

// Search runs one request through its lanes and fuses the results.
func (p *Planner) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	trace := &Trace{TraceID: uuid.NewString(), Mode: req.Mode}

	limit := req.Limit
	if limit <= 0 {
		limit = p.cfg.DefaultLimit
	}
	if limit > p.cfg.MaxLimit {
		return nil, errs.New(errs.InvalidInput, fmt.Sprintf("limit %d exceeds cap %d", limit, p.cfg.MaxLimit))
	}
	if req.Mode == "" {
		req.Mode = ModeHybrid
	}
	trace.Mode = req.Mode

	var results []Result
	var err error
	switch req.Mode {
	case ModeText:
		results, err = p.textOnly(ctx, req, limit, trace)
	case ModeVector:
		results, err = p.vectorOnly(ctx, req, limit, trace)
	case ModeGraph:
		results, err = p.graphOnly(ctx, req, limit, trace)
	case ModeHybrid:
		results, err = p.hybrid(ctx, req, limit, trace)
	default:
		return nil, errs.New(errs.InvalidInput, "unsupported mode: "+string(req.Mode))
	}
	if err != nil {
		return nil, err
	}

	trace.FusedResults = len(results)
	trace.ElapsedMs = time.Since(start).Milliseconds()

	resp := &Response{Results: results, Trace: trace}
	if len(results) == 0 {
		resp.Suggestions = p.suggest.Generate(req.Query)
	}
	return resp, nil
}

// overfetch widens each lane so fusion has enough candidates to rank.
func overfetch(limit int) int {
	k := limit * 3
	if k < 20 {
		k = 20
	}
	return k
}

func (p *Planner) textOnly(ctx context.Context, req Request, limit int, trace *Trace) ([]Result, error) {
	lane, err := p.textLane(ctx, req, overfetch(limit), trace)
	if err != nil {
		return nil, err
	}
	trace.TextResults = len(lane)
	fusedList := fuseRRF(lane, nil, nil, Weights{Text: 1}, nil, limit)
	return toResults(fusedList), nil
}

func (p *Planner) vectorOnly(ctx context.Context, req Request, limit int, trace *Trace) ([]Result, error) {
	lane, err := p.vectorLane(ctx, req, overfetch(limit))
	if err != nil {
		// Vector mode falls back to text when the embedding fails or the
		// vector index is empty-handed for backend reasons.
		trace.Warnings = append(trace.Warnings, "vector lane failed, falling back to text: "+err.Error())
		return p.textOnly(ctx, req, limit, trace)
	}
	trace.VectorResults = len(lane)
	if len(lane) == 0 {
		trace.Warnings = append(trace.Warnings, "vector lane empty, falling back to text")
		return p.textOnly(ctx, req, limit, trace)
	}
	fusedList := fuseRRF(nil, lane, nil, Weights{Vector: 1}, nil, limit)
	return toResults(fusedList), nil
}

func (p *Planner) graphOnly(ctx context.Context, req Request, limit int, trace *Trace) ([]Result, error) {
	if len(req.Graph.StartNodes) == 0 {
		return nil, errs.New(errs.InvalidInput, "graph mode requires seed ids")
	}
	lane, err := p.graphLane(ctx, req.Graph, req.Filter, trace)
	if err != nil {
		return nil, err
	}
	trace.GraphResults = len(lane)
	trace.Seeds = req.Graph.StartNodes
	fusedList := fuseRRF(nil, nil, lane, Weights{Graph: 1}, req.Graph.RelationTypes, limit)
	return toResults(fusedList), nil
}

// hybrid runs the text and vector lanes in parallel, optionally the
// graph lane (explicit seeds in parallel; autoseed after fusion of the
// lexical+vector set), then fuses all three.
func (p *Planner) hybrid(ctx context.Context, req Request, limit int, trace *Trace) ([]Result, error) {
	k := overfetch(limit)

	var textHits []laneCandidate
	var vectorHits []laneCandidate
	var graphHits []laneCandidate
	var textErr, vectorErr, graphErr error

	explicitGraph := !req.GraphAutoseed && len(req.Graph.StartNodes) > 0

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		textHits, textErr = p.textLane(gctx, req, k, trace)
		return nil
	})
	g.Go(func() error {
		vectorHits, vectorErr = p.vectorLane(gctx, req, k)
		return nil
	})
	if explicitGraph {
		g.Go(func() error {
			graphHits, graphErr = p.graphLane(gctx, req.Graph, req.Filter, trace)
			return nil
		})
	}
	_ = g.Wait()

	for _, lane := range []struct {
		name string
		err  error
	}{{"text", textErr}, {"vector", vectorErr}, {"graph", graphErr}} {
		if lane.err != nil {
			trace.Warnings = append(trace.Warnings, lane.name+" lane failed: "+lane.err.Error())
			trace.Partial = true
		}
	}
	if textErr != nil && vectorErr != nil && (!explicitGraph || graphErr != nil) {
		return nil, errs.New(errs.BackendTimeout, "all retrieval lanes failed")
	}

	// Autoseed: the top min(10, L) fused lexical+vector hits become the
	// traversal seed set, never the caller's start_nodes.
	relations := req.Graph.RelationTypes
	if req.GraphAutoseed {
		seedCount := 10
		if limit < seedCount {
			seedCount = limit
		}
		preFused := fuseRRF(textHits, vectorHits, nil, p.cfg.Weights, nil, seedCount)
		seeds := make([]string, 0, len(preFused))
		for _, f := range preFused {
			seeds = append(seeds, f.Record.GetEnvelope().ID)
		}
		trace.Seeds = seeds
		if len(seeds) > 0 {
			opts := req.Graph
			opts.StartNodes = seeds
			if opts.MaxDepth == DepthUnset {
				opts.MaxDepth = 1
			}
			if opts.Direction == "" {
				opts.Direction = objstore.DirBoth
			}
			if len(opts.RelationTypes) == 0 {
				// A relationship-flavored query narrows the default
				// whitelist to the code graph.
				if p.classifier.Classify(req.Query) == QueryTypeRelationship {
					opts.RelationTypes = []model.EdgeKind{model.EdgeCalls, model.EdgeDependsOn, model.EdgeImplements}
					trace.QueryType = string(QueryTypeRelationship)
				}
			}
			relations = opts.RelationTypes
			graphHits, graphErr = p.graphLane(ctx, opts, req.Filter, trace)
			if graphErr != nil {
				trace.Warnings = append(trace.Warnings, "graph lane failed: "+graphErr.Error())
				trace.Partial = true
			}
			// Seeds are already lexical+vector hits; only REACHED
			// records enter the autoseeded graph lane.
			reached := graphHits[:0]
			for _, h := range graphHits {
				if h.Depth > 0 {
					reached = append(reached, h)
				}
			}
			graphHits = reached
		}
	}

	trace.TextResults = len(textHits)
	trace.VectorResults = len(vectorHits)
	trace.GraphResults = len(graphHits)

	fusedList := fuseRRF(textHits, vectorHits, graphHits, p.cfg.Weights, relations, 0)

	// graph_intersect scopes the fused list to the traversal
	// neighborhood; scores are not recomputed.
	if req.GraphIntersect {
		var kept []fused
		for _, f := range fusedList {
			if f.inGraph {
				kept = append(kept, f)
			}
		}
		fusedList = kept
	}

	if len(fusedList) > limit {
		fusedList = fusedList[:limit]
	}
	return toResults(fusedList), nil
}

func (p *Planner) textLane(ctx context.Context, req Request, k int, trace *Trace) ([]laneCandidate, error) {
	lctx, cancel := context.WithTimeout(ctx, p.cfg.LaneTimeout)
	defer cancel()
	hits, err := p.store.SearchText(lctx, req.Query, req.Filter, k)
	if err != nil {
		return nil, laneError(lctx, err)
	}
	out := make([]laneCandidate, len(hits))
	for i, h := range hits {
		out[i] = laneCandidate{Record: h.Record, SubScore: h.Score}
	}
	return out, nil
}

func (p *Planner) vectorLane(ctx context.Context, req Request, k int) ([]laneCandidate, error) {
	if p.embedder == nil {
		return nil, errs.New(errs.BackendUnavailable, "no embedder configured")
	}
	lctx, cancel := context.WithTimeout(ctx, p.cfg.LaneTimeout)
	defer cancel()
	vec, err := p.embedder.EmbedText(lctx, req.Query, "")
	if err != nil {
		return nil, err
	}
	hits, err := p.store.SearchVector(lctx, vec, req.Filter, k)
	if err != nil {
		return nil, laneError(lctx, err)
	}
	out := make([]laneCandidate, len(hits))
	for i, h := range hits {
		out[i] = laneCandidate{Record: h.Record, SubScore: h.Similarity}
	}
	return out, nil
}

func (p *Planner) graphLane(ctx context.Context, opts GraphOptions, f objstore.Filter, trace *Trace) ([]laneCandidate, error) {
	lctx, cancel := context.WithTimeout(ctx, p.cfg.LaneTimeout)
	defer cancel()

	depth := opts.MaxDepth
	if depth == DepthUnset {
		depth = 1
	}
	dir := opts.Direction
	if dir == "" {
		dir = objstore.DirBoth
	}
	hits, err := p.store.Traverse(lctx, opts.StartNodes, opts.RelationTypes, dir, depth)
	if err != nil {
		return nil, laneError(lctx, err)
	}

	// Filters are mandatory on every lane; Traverse has no filter
	// predicate of its own, so traversal output post-filters through
	// the full filter AST, the same way the vector lane post-filters
	// its over-fetched candidates. Rank by 1/(1+depth): seeds first,
	// then nearer neighbors.
	out := make([]laneCandidate, 0, len(hits))
	for _, h := range hits {
		if !objstore.MatchesFilter(h.Record, f) {
			continue
		}
		out = append(out, laneCandidate{Record: h.Record, SubScore: 1.0 / float64(1+h.Depth), Depth: h.Depth})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Depth < out[j-1].Depth; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func laneError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errs.Wrap(errs.BackendTimeout, "lane deadline exceeded", err)
	}
	return err
}

func toResults(fusedList []fused) []Result {
	out := make([]Result, len(fusedList))
	for i, f := range fusedList {
		out[i] = Result{
			Record:      f.Record,
			Score:       f.Score,
			SubScores:   f.SubScores,
			Explanation: f.Explanation,
		}
	}
	return out
}
