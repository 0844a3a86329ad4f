package retrieval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agentmem/substrate/internal/model"
)

// rrfK is the reciprocal-rank-fusion constant (standard value from the
// literature).
const rrfK = 60

// laneCandidate is one ranked entry from a retrieval lane, carrying the
// lane-native sub-score (lexical score, cosine similarity, or 1/(1+depth))
// used for explanations; fusion itself uses only the rank.
type laneCandidate struct {
	Record   model.Record
	SubScore float64
	Depth    int // graph lane only
}

// Weights are the per-lane fusion weights.
type Weights struct {
	Text   float64
	Vector float64
	Graph  float64
}

// fused is one record after reciprocal-rank fusion across lanes.
type fused struct {
	Record      model.Record
	Score       float64 // normalized so the top candidate is 1.0
	SubScores   map[string]float64
	Explanation string
	inGraph     bool
	graphDepth  int
}

// fuseRRF combines the three lanes' ranked lists. Each record r gets,
// per lane, a contribution weight/(k + rank); absent lanes contribute 0.
// The sum is normalized by the maximum fused score so the top result is
// 1.0. Ties break by created_at descending, then id ascending.
func fuseRRF(textLane, vectorLane, graphLane []laneCandidate, w Weights, graphRelations []model.EdgeKind, maxResults int) []fused {
	type entry struct {
		rec        model.Record
		score      float64
		subScores  map[string]float64
		inGraph    bool
		graphDepth int
	}

	entries := make(map[string]*entry)
	get := func(rec model.Record) *entry {
		id := rec.GetEnvelope().ID
		e, ok := entries[id]
		if !ok {
			e = &entry{rec: rec, subScores: map[string]float64{}}
			entries[id] = e
		}
		return e
	}

	for rank, c := range textLane {
		e := get(c.Record)
		e.score += w.Text / float64(rrfK+rank+1)
		e.subScores["text"] = c.SubScore
	}
	for rank, c := range vectorLane {
		e := get(c.Record)
		e.score += w.Vector / float64(rrfK+rank+1)
		e.subScores["vector"] = c.SubScore
	}
	for rank, c := range graphLane {
		e := get(c.Record)
		e.score += w.Graph / float64(rrfK+rank+1)
		e.subScores["graph"] = c.SubScore
		e.inGraph = true
		e.graphDepth = c.Depth
	}

	sorted := make([]*entry, 0, len(entries))
	for _, e := range entries {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].score != sorted[j].score {
			return sorted[i].score > sorted[j].score
		}
		ci := sorted[i].rec.GetEnvelope().CreatedAt
		cj := sorted[j].rec.GetEnvelope().CreatedAt
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return sorted[i].rec.GetEnvelope().ID < sorted[j].rec.GetEnvelope().ID
	})

	if maxResults > 0 && len(sorted) > maxResults {
		sorted = sorted[:maxResults]
	}

	maxScore := 0.0
	if len(sorted) > 0 {
		maxScore = sorted[0].score
	}

	out := make([]fused, len(sorted))
	for i, e := range sorted {
		score := e.score
		if maxScore > 0 {
			score = e.score / maxScore
		}
		out[i] = fused{
			Record:      e.rec,
			Score:       score,
			SubScores:   e.subScores,
			Explanation: explain(e.subScores, e.inGraph, e.graphDepth, graphRelations),
			inGraph:     e.inGraph,
			graphDepth:  e.graphDepth,
		}
	}
	return out
}

// explain renders the human-readable lane breakdown, e.g.
// "text:0.74 + vector:0.88 + graph:1-hop via calls".
func explain(subScores map[string]float64, inGraph bool, depth int, relations []model.EdgeKind) string {
	var parts []string
	if s, ok := subScores["text"]; ok {
		parts = append(parts, fmt.Sprintf("text:%.2f", s))
	}
	if s, ok := subScores["vector"]; ok {
		parts = append(parts, fmt.Sprintf("vector:%.2f", s))
	}
	if inGraph {
		g := fmt.Sprintf("graph:%d-hop", depth)
		if len(relations) > 0 {
			names := make([]string, len(relations))
			for i, r := range relations {
				names[i] = string(r)
			}
			g += " via " + strings.Join(names, ",")
		}
		parts = append(parts, g)
	}
	if len(parts) == 0 {
		return "no lane contributions"
	}
	return strings.Join(parts, " + ")
}
