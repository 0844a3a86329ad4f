package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/agentmem/substrate/internal/coordination"
	"github.com/agentmem/substrate/internal/episodic"
	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/objstore"
	"github.com/agentmem/substrate/internal/retrieval"
	"github.com/agentmem/substrate/internal/sync"
)

// SubstrateHandler exposes the memory substrate's operations as MCP
// tools over the stdio transport.
type SubstrateHandler struct {
	planner      *retrieval.Planner
	orchestrator *sync.Orchestrator
	cache        *episodic.Cache
	leases       *coordination.Leases
	runs         *coordination.Runs
	artifacts    *coordination.Artifacts
	logger       *slog.Logger
}

// NewSubstrateHandler wires the components into one handler.
func NewSubstrateHandler(
	planner *retrieval.Planner,
	orchestrator *sync.Orchestrator,
	cache *episodic.Cache,
	leases *coordination.Leases,
	runs *coordination.Runs,
	artifacts *coordination.Artifacts,
	logger *slog.Logger,
) *SubstrateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubstrateHandler{
		planner:      planner,
		orchestrator: orchestrator,
		cache:        cache,
		leases:       leases,
		runs:         runs,
		artifacts:    artifacts,
		logger:       logger,
	}
}

// ListTools returns the available tools.
func (h *SubstrateHandler) ListTools() []Tool {
	return []Tool{
		{
			Name:        "query",
			Description: "Hybrid search over the memory substrate (text + vector + graph, RRF-fused)",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"query":           {Type: "string", Description: "Free-text query"},
					"mode":            {Type: "string", Description: "Retrieval mode", Enum: []string{"hybrid", "text", "vector", "graph"}},
					"limit":           {Type: "number", Description: "Maximum results (default 5, cap 100)"},
					"graph_autoseed":  {Type: "boolean", Description: "Seed graph traversal from top lexical+vector hits"},
					"graph_intersect": {Type: "boolean", Description: "Keep only results reachable in the graph lane"},
					"project_id":      {Type: "string", Description: "Restrict to one project"},
					"path_prefix":     {Type: "string", Description: "Restrict to a path prefix"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "file_sync",
			Description: "Sync a file into the index (create, edit, or delete)",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"path":    {Type: "string", Description: "Absolute, project-relative, or bare-basename path"},
					"action":  {Type: "string", Description: "Sync action", Enum: []string{"create", "edit", "delete"}},
					"summary": {Type: "string", Description: "Audit summary for the file log"},
				},
				Required: []string{"path", "action"},
			},
		},
		{
			Name:        "file_log",
			Description: "Read the Markdown summary log for a file",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"path": {Type: "string", Description: "File path to resolve"},
				},
				Required: []string{"path"},
			},
		},
		{
			Name:        "cache_write",
			Description: "Append an item to a scope's episodic cache",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"scope_id":   {Type: "string", Description: "Cache scope, e.g. project:X or task:Y"},
					"kind":       {Type: "string", Description: "Item kind", Enum: []string{"fact", "decision", "snippet", "warning"}},
					"content":    {Type: "string", Description: "Item content"},
					"importance": {Type: "number", Description: "Importance in [0,1], default 0.5"},
					"file_ref":   {Type: "string", Description: "Optional related file"},
				},
				Required: []string{"scope_id", "content"},
			},
		},
		{
			Name:        "cache_read",
			Description: "Read a scope's episodic cache: current block, a block by id, list, or semantic search",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"scope_id":        {Type: "string", Description: "Cache scope"},
					"query":           {Type: "string", Description: "Semantic search over closed block summaries"},
					"block_id":        {Type: "string", Description: "Fetch one block by id"},
					"list_all":        {Type: "boolean", Description: "List the newest closed blocks"},
					"include_content": {Type: "boolean", Description: "Materialize matched blocks' items"},
					"include_open":    {Type: "boolean", Description: "Include the open block when listing"},
					"limit":           {Type: "number", Description: "Maximum blocks"},
				},
				Required: []string{"scope_id"},
			},
		},
		{
			Name:        "cache_compact",
			Description: "Force-close a scope's open cache block",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"scope_id": {Type: "string", Description: "Cache scope"},
				},
				Required: []string{"scope_id"},
			},
		},
		{
			Name:        "artifact_write",
			Description: "Record a decision, note, or changeset",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"type":     {Type: "string", Description: "Artifact type", Enum: []string{"decision", "note", "changeset"}},
					"title":    {Type: "string", Description: "Title (decision, changeset)"},
					"content":  {Type: "string", Description: "Content (note)"},
					"category": {Type: "string", Description: "Note category", Enum: []string{"warning", "insight", "todo", "question"}},
				},
				Required: []string{"type"},
			},
		},
		{
			Name:        "lease",
			Description: "Acquire, renew, or release an advisory lease on a resource",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"op":               {Type: "string", Description: "Lease operation", Enum: []string{"acquire", "renew", "release"}},
					"resource":         {Type: "string", Description: "Resource key"},
					"agent_id":         {Type: "string", Description: "Holder id"},
					"duration_seconds": {Type: "number", Description: "TTL in seconds (default 60)"},
				},
				Required: []string{"op", "resource", "agent_id"},
			},
		},
	}
}

// CallTool executes a tool and returns the result.
func (h *SubstrateHandler) CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallToolResult, error) {
	switch name {
	case "query":
		return h.callQuery(ctx, args)
	case "file_sync":
		return h.callFileSync(ctx, args)
	case "file_log":
		return h.callFileLog(ctx, args)
	case "cache_write":
		return h.callCacheWrite(ctx, args)
	case "cache_read":
		return h.callCacheRead(ctx, args)
	case "cache_compact":
		return h.callCacheCompact(ctx, args)
	case "artifact_write":
		return h.callArtifactWrite(ctx, args)
	case "lease":
		return h.callLease(ctx, args)
	default:
		return nil, errs.New(errs.InvalidInput, "unknown tool: "+name)
	}
}

func (h *SubstrateHandler) callQuery(ctx context.Context, args map[string]interface{}) (*CallToolResult, error) {
	req := retrieval.Request{
		Query: stringArg(args, "query"),
		Mode:  retrieval.Mode(stringArg(args, "mode")),
		Filter: objstore.Filter{
			ProjectID:  stringArg(args, "project_id"),
			PathPrefix: stringArg(args, "path_prefix"),
		},
		GraphAutoseed:  boolArg(args, "graph_autoseed"),
		GraphIntersect: boolArg(args, "graph_intersect"),
		Graph:          retrieval.GraphOptions{MaxDepth: retrieval.DepthUnset},
		Limit:          intArg(args, "limit"),
	}
	resp, err := h.planner.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return jsonResult(resp)
}

func (h *SubstrateHandler) callFileSync(ctx context.Context, args map[string]interface{}) (*CallToolResult, error) {
	res, err := h.orchestrator.Sync(ctx, sync.Request{
		Path:    stringArg(args, "path"),
		Action:  sync.Action(stringArg(args, "action")),
		Summary: stringArg(args, "summary"),
	})
	if err != nil {
		return nil, err
	}
	return jsonResult(res)
}

func (h *SubstrateHandler) callFileLog(ctx context.Context, args map[string]interface{}) (*CallToolResult, error) {
	log, err := h.orchestrator.GetFileLog(ctx, stringArg(args, "path"))
	if err != nil {
		return nil, err
	}
	return &CallToolResult{Content: []Content{{Type: "text", Text: log.Markdown}}}, nil
}

func (h *SubstrateHandler) callCacheWrite(ctx context.Context, args map[string]interface{}) (*CallToolResult, error) {
	res, err := h.cache.Write(ctx, stringArg(args, "scope_id"), model.CacheItem{
		Kind:       model.CacheItemKind(stringArg(args, "kind")),
		Content:    stringArg(args, "content"),
		Importance: floatArg(args, "importance"),
		FileRef:    stringArg(args, "file_ref"),
	})
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]interface{}{
		"block_id":     res.Block.ID,
		"sequence":     res.Block.Sequence,
		"deduplicated": res.Deduplicated,
		"closed":       res.ClosedBlock != nil,
	})
}

func (h *SubstrateHandler) callCacheRead(ctx context.Context, args map[string]interface{}) (*CallToolResult, error) {
	scope := stringArg(args, "scope_id")
	limit := intArg(args, "limit")

	switch {
	case stringArg(args, "block_id") != "":
		block, err := h.cache.GetByID(ctx, stringArg(args, "block_id"))
		if err != nil {
			return nil, err
		}
		return jsonResult(block)
	case stringArg(args, "query") != "":
		hits, err := h.cache.Search(ctx, scope, stringArg(args, "query"), limit, boolArg(args, "include_content"))
		if err != nil {
			return nil, err
		}
		return jsonResult(hits)
	case boolArg(args, "list_all"):
		blocks, err := h.cache.List(ctx, scope, limit, boolArg(args, "include_open"))
		if err != nil {
			return nil, err
		}
		return jsonResult(blocks)
	default:
		block, err := h.cache.GetCurrent(ctx, scope)
		if err != nil {
			return nil, err
		}
		return jsonResult(block)
	}
}

func (h *SubstrateHandler) callCacheCompact(ctx context.Context, args map[string]interface{}) (*CallToolResult, error) {
	closed, err := h.cache.Compact(ctx, stringArg(args, "scope_id"))
	if err != nil {
		return nil, err
	}
	if closed == nil {
		return &CallToolResult{Content: []Content{{Type: "text", Text: "nothing to compact"}}}, nil
	}
	return jsonResult(map[string]interface{}{"closed_block_id": closed.ID, "summary": closed.Summary})
}

func (h *SubstrateHandler) callArtifactWrite(ctx context.Context, args map[string]interface{}) (*CallToolResult, error) {
	rec, err := h.artifacts.Write(ctx, coordination.ArtifactWrite{
		Type:     stringArg(args, "type"),
		Title:    stringArg(args, "title"),
		Content:  stringArg(args, "content"),
		Category: stringArg(args, "category"),
	})
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]interface{}{"id": rec.GetEnvelope().ID, "kind": rec.GetEnvelope().Kind})
}

func (h *SubstrateHandler) callLease(ctx context.Context, args map[string]interface{}) (*CallToolResult, error) {
	resource := stringArg(args, "resource")
	agentID := stringArg(args, "agent_id")
	ttl := time.Duration(intArg(args, "duration_seconds")) * time.Second

	switch op := stringArg(args, "op"); op {
	case "acquire":
		lease, err := h.leases.Acquire(ctx, resource, agentID, ttl)
		if err != nil {
			return nil, err
		}
		return jsonResult(lease)
	case "renew":
		lease, err := h.leases.Renew(ctx, resource, agentID, ttl)
		if err != nil {
			return nil, err
		}
		return jsonResult(lease)
	case "release":
		if err := h.leases.Release(ctx, resource, agentID); err != nil {
			return nil, err
		}
		return &CallToolResult{Content: []Content{{Type: "text", Text: "released"}}}, nil
	default:
		return nil, errs.New(errs.InvalidInput, "unknown lease op: "+op)
	}
}

// ListResources returns the available resources.
func (h *SubstrateHandler) ListResources() []Resource {
	return []Resource{
		{
			URI:         "substrate://filelogs",
			Name:        "File logs",
			Description: "Markdown summary logs for indexed files",
			MimeType:    "text/markdown",
		},
	}
}

// ReadResource reads a resource by URI.
func (h *SubstrateHandler) ReadResource(ctx context.Context, uri string) (*ReadResourceResult, error) {
	const prefix = "substrate://filelogs/"
	if len(uri) > len(prefix) && uri[:len(prefix)] == prefix {
		log, err := h.orchestrator.GetFileLog(ctx, uri[len(prefix):])
		if err != nil {
			return nil, err
		}
		return &ReadResourceResult{
			Contents: []ResourceContent{{URI: uri, MimeType: "text/markdown", Text: log.Markdown}},
		}, nil
	}
	return nil, errs.New(errs.NotFound, "unknown resource: "+uri)
}

func jsonResult(v interface{}) (*CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "marshal tool result", err)
	}
	return &CallToolResult{Content: []Content{{Type: "text", Text: string(data)}}}, nil
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func boolArg(args map[string]interface{}, key string) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return false
}

func intArg(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func floatArg(args map[string]interface{}, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

var _ Handler = (*SubstrateHandler)(nil)
