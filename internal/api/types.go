// Package api defines the request/response types of the external
// surface (§6): object CRUD, query, file sync, artifact write, cache,
// and coordination. The HTTP framing itself is an external
// collaborator; these are the shapes it marshals.
package api

import (
	"encoding/json"

	"github.com/agentmem/substrate/internal/retrieval"
	"github.com/agentmem/substrate/internal/sync"
)

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Query          string       `json:"query"`
	Mode           string       `json:"mode,omitempty"` // hybrid | text | vector | graph
	Filters        QueryFilters `json:"filters"`
	GraphOptions   GraphOptions `json:"graph_options"`
	GraphAutoseed  bool         `json:"graph_autoseed,omitempty"`
	GraphIntersect bool         `json:"graph_intersect,omitempty"`
	Limit          int          `json:"limit,omitempty"`
}

// QueryFilters is the closed filter set. An empty object means no
// restriction.
type QueryFilters struct {
	Kinds      []string `json:"kinds,omitempty"`
	ProjectID  string   `json:"project_id,omitempty"`
	TenantID   string   `json:"tenant_id,omitempty"`
	PathPrefix string   `json:"path_prefix,omitempty"`
	Language   string   `json:"language,omitempty"`
}

// GraphOptions mirrors §4.6's graph_options object. MaxDepth uses a
// pointer so an explicit 0 (seeds only) is distinguishable from absent.
type GraphOptions struct {
	StartNodes    []string `json:"start_nodes,omitempty"`
	RelationTypes []string `json:"relation_types,omitempty"`
	MaxDepth      *int     `json:"max_depth,omitempty"`
	Direction     string   `json:"direction,omitempty"` // inbound | outbound | both
}

// QueryResult is one entry of a query response.
type QueryResult struct {
	Object      json.RawMessage    `json:"object"`
	Score       float64            `json:"score"`
	SubScores   map[string]float64 `json:"sub_scores"`
	Explanation string             `json:"explanation"`
}

// QueryResponse is the body returned by POST /v1/query.
type QueryResponse struct {
	Results         []QueryResult          `json:"results"`
	TraceID         string                 `json:"trace_id"`
	ExecutionTimeMs int64                  `json:"execution_time_ms"`
	Partial         bool                   `json:"partial"`
	Suggestions     []retrieval.Suggestion `json:"suggestions,omitempty"`
}

// SyncRequest is the body of POST /v1/files/sync.
type SyncRequest struct {
	Path    string `json:"path"`
	Action  string `json:"action"` // create | edit | delete
	Summary string `json:"summary,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
}

// SyncResponse is the body returned by POST /v1/files/sync. For path
// collisions Status is "ambiguous" and MatchingFiles carries the
// candidates; that is a successful response.
type SyncResponse struct {
	FileID               string             `json:"file_id,omitempty"`
	Action               string             `json:"action,omitempty"`
	LayersUpdated        sync.LayersUpdated `json:"layers_updated"`
	ChunksReplaced       int                `json:"chunks_replaced"`
	RelationshipsUpdated int                `json:"relationships_updated"`
	Status               string             `json:"status,omitempty"`
	MatchingFiles        []string           `json:"matching_files,omitempty"`
	Hint                 string             `json:"hint,omitempty"`
	Warnings             []string           `json:"warnings,omitempty"`
	TraceID              string             `json:"trace_id"`
}

// ResolveRequest is the body of POST /v1/files/resolve.
type ResolveRequest struct {
	Path string `json:"path"`
}

// ResolveResponse returns the canonical stored path for an input.
type ResolveResponse struct {
	FileID        string   `json:"file_id,omitempty"`
	Path          string   `json:"path,omitempty"`
	Status        string   `json:"status,omitempty"`
	MatchingFiles []string `json:"matching_files,omitempty"`
	TraceID       string   `json:"trace_id"`
}

// CacheReadRequest is the body of POST /v1/cache/read.
type CacheReadRequest struct {
	ScopeID        string `json:"scope_id"`
	Query          string `json:"query,omitempty"`
	BlockID        string `json:"block_id,omitempty"`
	ListAll        bool   `json:"list_all,omitempty"`
	IncludeContent bool   `json:"include_content,omitempty"`
	IncludeOpen    bool   `json:"include_open,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// CacheWriteRequest is the body of POST /v1/cache/write.
type CacheWriteRequest struct {
	ScopeID    string  `json:"scope_id"`
	Kind       string  `json:"kind"` // fact | decision | snippet | warning
	Content    string  `json:"content"`
	Importance float64 `json:"importance,omitempty"`
	FileRef    string  `json:"file_ref,omitempty"`
}

// CacheCompactRequest is the body of POST /v1/cache/compact.
type CacheCompactRequest struct {
	ScopeID string `json:"scope_id"`
}

// LeaseRequest covers acquire/release/renew.
type LeaseRequest struct {
	Resource        string `json:"resource"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	AgentID         string `json:"agent_id"`
}

// LeaseResponse is a lease operation outcome.
type LeaseResponse struct {
	LeaseID   string `json:"lease_id,omitempty"`
	Resource  string `json:"resource"`
	HolderID  string `json:"holder_id,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	TraceID   string `json:"trace_id"`
}

// BatchStatus enumerates per-record outcomes of POST /v1/objects/batch.
type BatchStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"` // created | updated | failed
	Reason string `json:"reason,omitempty"`
}

// BatchResponse is the body returned by POST /v1/objects/batch; a mixed
// set maps to HTTP 207 at the framing layer.
type BatchResponse struct {
	Results []BatchStatus `json:"results"`
	TraceID string        `json:"trace_id"`
}

// ErrorResponse is the uniform failure shape: an error kind, a short
// human-readable message, and the trace id.
type ErrorResponse struct {
	Kind    string `json:"error"`
	Message string `json:"message"`
	TraceID string `json:"trace_id"`
}
