// Package objstore implements the unified object store (SPEC_FULL §4.5):
// a single SQLite database holding every record kind plus typed edge
// tables, an FTS5 lexical index, and a sqlite-vec vector index. This is
// the primary, embedded backend; internal/store/qdrantstore and
// internal/store/neo4jstore are pluggable remote alternatives behind the
// same Store interface for the vector and graph lanes respectively.
package objstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	sqlitevec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/model"
)

func init() {
	sqlitevec.Auto()
}

// Filter is the small, closed filter AST named in SPEC_FULL §9: kind,
// project, tenant, path-prefix, language. An empty Filter means no
// restriction.
type Filter struct {
	Kinds      []model.Kind
	ProjectID  string
	TenantID   string
	PathPrefix string
	Language   string
}

func (f Filter) empty() bool {
	return len(f.Kinds) == 0 && f.ProjectID == "" && f.TenantID == "" && f.PathPrefix == "" && f.Language == ""
}

// TextHit is one result from SearchText.
type TextHit struct {
	Record model.Record
	Score  float64 // lexical score in [0,1]
}

// VectorHit is one result from SearchVector.
type VectorHit struct {
	Record     model.Record
	Similarity float64 // cosine similarity in [0,1]
}

// TraverseHit is one record reached by Traverse, with its shortest depth.
type TraverseHit struct {
	Record model.Record
	Depth  int
}

// Direction constrains a graph traversal.
type Direction string

const (
	DirOutbound Direction = "outbound"
	DirInbound  Direction = "inbound"
	DirBoth     Direction = "both"
)

// Store is the embedded SQLite-backed object store.
type Store struct {
	db  *sql.DB
	dim int
}

// Open creates or opens the SQLite database at path and ensures schema.
func Open(path string, dim int) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errs.Wrap(errs.Internal, "create object store directory", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, errs.Wrap(errs.BackendUnavailable, "open object store", err)
	}
	db.SetMaxOpenConns(1) // sqlite: single-writer; point writes are linearizable this way
	s := &Store{db: db, dim: dim}
	if _, err := db.Exec(schemaSQL(dim)); err != nil {
		return nil, errs.Wrap(errs.Internal, "ensure object store schema", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Upsert creates or replaces rec by id (SPEC_FULL §4.5's upsert primitive).
func (s *Store) Upsert(ctx context.Context, rec model.Record) error {
	env := rec.GetEnvelope()
	if env.ID == "" {
		return errs.New(errs.InvalidInput, "record id must not be empty")
	}
	if len(env.Embedding) != 0 && len(env.Embedding) != s.dim {
		return errs.New(errs.InvalidInput, fmt.Sprintf("embedding has %d dims, store requires %d", len(env.Embedding), s.dim))
	}
	now := time.Now().UTC()
	if env.CreatedAt.IsZero() {
		env.CreatedAt = now
	}
	env.UpdatedAt = now

	payload, err := json.Marshal(rec)
	if err != nil {
		return errs.Wrap(errs.Internal, "marshal record payload", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.BackendUnavailable, "begin upsert tx", err)
	}
	defer tx.Rollback()

	hasVec := 0
	if len(env.Embedding) == s.dim {
		hasVec = 1
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO objects (id, kind, tenant_id, project_id, path, search_text, payload, has_vector, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind=excluded.kind, tenant_id=excluded.tenant_id, project_id=excluded.project_id,
			path=excluded.path, search_text=excluded.search_text, payload=excluded.payload,
			has_vector=excluded.has_vector, updated_at=excluded.updated_at
	`, env.ID, string(env.Kind), env.TenantID, env.ProjectID, pathOf(rec), rec.SearchText(), payload,
		hasVec, env.CreatedAt.Format(time.RFC3339Nano), env.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return errs.Wrap(errs.Internal, "upsert object row", err)
	}

	rowID, err := s.rowIDFor(ctx, tx, env.ID)
	if err != nil {
		return err
	}

	if hasVec == 1 {
		blob := encodeVector(env.Embedding)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO vec_objects(rowid, embedding) VALUES (?, ?)
			ON CONFLICT(rowid) DO UPDATE SET embedding=excluded.embedding
		`, rowID, blob); err != nil {
			return errs.Wrap(errs.Internal, "upsert vector row", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_objects WHERE rowid = ?`, rowID); err != nil {
			return errs.Wrap(errs.Internal, "clear vector row", err)
		}
	}

	return tx.Commit()
}

func (s *Store) rowIDFor(ctx context.Context, tx *sql.Tx, id string) (int64, error) {
	var rowID int64
	if err := tx.QueryRowContext(ctx, `SELECT rowid FROM objects WHERE id = ?`, id).Scan(&rowID); err != nil {
		return 0, errs.Wrap(errs.Internal, "lookup rowid", err)
	}
	return rowID, nil
}

// BatchStatus reports one record's outcome from UpsertBatch.
type BatchStatus struct {
	ID     string
	Status string // created | updated | failed
	Reason string
}

// UpsertBatch applies each record independently and enumerates
// per-record outcomes; one bad record does not fail the set.
func (s *Store) UpsertBatch(ctx context.Context, records []model.Record) []BatchStatus {
	out := make([]BatchStatus, 0, len(records))
	for _, rec := range records {
		id := rec.GetEnvelope().ID
		status := "created"
		if id != "" {
			if _, err := s.Get(ctx, id); err == nil {
				status = "updated"
			}
		}
		if err := s.Upsert(ctx, rec); err != nil {
			out = append(out, BatchStatus{ID: id, Status: "failed", Reason: err.Error()})
			continue
		}
		out = append(out, BatchStatus{ID: id, Status: status})
	}
	return out
}

// Get fetches a record by id.
func (s *Store) Get(ctx context.Context, id string) (model.Record, error) {
	var kindStr, payload string
	err := s.db.QueryRowContext(ctx, `SELECT kind, payload FROM objects WHERE id = ?`, id).Scan(&kindStr, &payload)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.NotFound, "no object with id "+id)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "get object", err)
	}
	return decodeRecord(model.Kind(kindStr), []byte(payload))
}

// Delete removes a record and cascades to owned children per SPEC_FULL
// §3's ownership rules (File owns Chunks+FileLog; Project owns
// Directories which own Files) and removes edges touching the id.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.BackendUnavailable, "begin delete tx", err)
	}
	defer tx.Rollback()

	if err := cascadeDelete(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func cascadeDelete(ctx context.Context, tx *sql.Tx, id string) error {
	var kindStr string
	err := tx.QueryRowContext(ctx, `SELECT kind FROM objects WHERE id = ?`, id).Scan(&kindStr)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.Internal, "lookup kind for delete", err)
	}

	if model.Kind(kindStr) == model.KindFile {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM objects WHERE kind IN (?, ?) AND json_extract(payload,'$.file_id') = ?`,
			model.KindSymbol, model.KindFileChunk, id)
		if err != nil {
			return errs.Wrap(errs.Internal, "find owned children", err)
		}
		var children []string
		for rows.Next() {
			var cid string
			if err := rows.Scan(&cid); err != nil {
				rows.Close()
				return errs.Wrap(errs.Internal, "scan owned child", err)
			}
			children = append(children, cid)
		}
		rows.Close()
		for _, cid := range children {
			if err := cascadeDelete(ctx, tx, cid); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE kind = ? AND json_extract(payload,'$.file_id') = ?`, model.KindFileLog, id); err != nil {
			return errs.Wrap(errs.Internal, "delete owned filelog", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM edge_defined_in WHERE from_id = ? OR to_id = ?`, id, id); err != nil {
		return errs.Wrap(errs.Internal, "delete defined_in edges", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM edge_code_graph WHERE from_id = ? OR to_id = ?`, id, id); err != nil {
		return errs.Wrap(errs.Internal, "delete code graph edges", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM edge_artifact_links WHERE from_id = ? OR to_id = ?`, id, id); err != nil {
		return errs.Wrap(errs.Internal, "delete artifact link edges", err)
	}

	rowID, err := rowIDForTx(ctx, tx, id)
	if err == nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_objects WHERE rowid = ?`, rowID); err != nil {
			return errs.Wrap(errs.Internal, "delete vector row", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, id); err != nil {
		return errs.Wrap(errs.Internal, "delete object row", err)
	}
	return nil
}

func rowIDForTx(ctx context.Context, tx *sql.Tx, id string) (int64, error) {
	var rowID int64
	err := tx.QueryRowContext(ctx, `SELECT rowid FROM objects WHERE id = ?`, id).Scan(&rowID)
	return rowID, err
}

// List filters by kind, project, tenant, path-prefix and paginates.
func (s *Store) List(ctx context.Context, f Filter, offset, limit int) ([]model.Record, error) {
	query, args := buildFilterQuery("SELECT kind, payload FROM objects", f)
	query += " ORDER BY rowid LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list objects", err)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var kindStr, payload string
		if err := rows.Scan(&kindStr, &payload); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan list row", err)
		}
		rec, err := decodeRecord(model.Kind(kindStr), []byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SearchText runs case-insensitive substring-flavored lexical search
// (FTS5, unicode61 tokenizer, no stemming — Non-goals exclude linguistic
// analyzers beyond substring matching) over name/signature/doc/content/
// summary fields, returning the top-k by lexical score in [0,1].
func (s *Store) SearchText(ctx context.Context, query string, f Filter, k int) ([]TextHit, error) {
	if query == "" {
		return nil, nil
	}
	sqlQuery := `
		SELECT o.kind, o.payload, bm25(objects_fts) AS rank
		FROM objects_fts
		JOIN objects o ON o.rowid = objects_fts.rowid
		WHERE objects_fts MATCH ?`
	args := []interface{}{ftsQuery(query)}
	cond, fargs := filterConditions(f)
	if cond != "" {
		sqlQuery += " AND " + cond
		args = append(args, fargs...)
	}
	sqlQuery += " ORDER BY rank LIMIT ?"
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "search_text", err)
	}
	defer rows.Close()

	var hits []TextHit
	var minRank, maxRank float64
	first := true
	type raw struct {
		rec  model.Record
		rank float64
	}
	var rawHits []raw
	for rows.Next() {
		var kindStr, payload string
		var rank float64
		if err := rows.Scan(&kindStr, &payload, &rank); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan search_text row", err)
		}
		rec, err := decodeRecord(model.Kind(kindStr), []byte(payload))
		if err != nil {
			return nil, err
		}
		// bm25() returns lower-is-better, often negative; normalize below.
		if first || rank < minRank {
			minRank = rank
		}
		if first || rank > maxRank {
			maxRank = rank
		}
		first = false
		rawHits = append(rawHits, raw{rec, rank})
	}
	spread := maxRank - minRank
	for _, r := range rawHits {
		score := 1.0
		if spread > 0 {
			score = 1.0 - (r.rank-minRank)/spread
		}
		hits = append(hits, TextHit{Record: r.rec, Score: score})
	}
	return hits, rows.Err()
}

// SearchVector runs approximate k-NN over cosine distance via sqlite-vec,
// over-fetching a wider candidate set and post-filtering (see DESIGN.md
// Open Question #1) since vec0 has no native filter predicate.
func (s *Store) SearchVector(ctx context.Context, vector []float32, f Filter, k int) ([]VectorHit, error) {
	if len(vector) != s.dim {
		return nil, errs.New(errs.InvalidInput, fmt.Sprintf("query vector has %d dims, store requires %d", len(vector), s.dim))
	}
	fetch := k * 4
	if fetch > 200 {
		fetch = 200
	}
	if fetch < k {
		fetch = k
	}
	blob := encodeVector(vector)
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.kind, o.payload, v.distance
		FROM vec_objects v
		JOIN objects o ON o.rowid = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, blob, fetch)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "search_vector", err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var kindStr, payload string
		var distance float64
		if err := rows.Scan(&kindStr, &payload, &distance); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan search_vector row", err)
		}
		rec, err := decodeRecord(model.Kind(kindStr), []byte(payload))
		if err != nil {
			return nil, err
		}
		if !matchesFilter(rec, f) {
			continue
		}
		similarity := 1 - distance/2 // sqlite-vec L2 over normalized vectors approximates cosine distance
		if similarity < 0 {
			similarity = 0
		}
		if similarity > 1 {
			similarity = 1
		}
		hits = append(hits, VectorHit{Record: rec, Similarity: similarity})
		if len(hits) >= k {
			break
		}
	}
	return hits, rows.Err()
}

// Traverse walks the edge tables from a seed set up to maxDepth hops,
// optionally restricted to relation kinds and a direction.
func (s *Store) Traverse(ctx context.Context, seeds []string, relations []model.EdgeKind, direction Direction, maxDepth int) ([]TraverseHit, error) {
	visited := map[string]int{}
	frontier := map[string]bool{}
	for _, id := range seeds {
		visited[id] = 0
		frontier[id] = true
	}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		next := map[string]bool{}
		for id := range frontier {
			neighbors, err := s.neighbors(ctx, id, relations, direction)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if _, seen := visited[n]; !seen {
					visited[n] = depth
					next[n] = true
				}
			}
		}
		frontier = next
	}

	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []TraverseHit
	for _, id := range ids {
		var kindStr, payload string
		err := s.db.QueryRowContext(ctx, `SELECT kind, payload FROM objects WHERE id = ?`, id).Scan(&kindStr, &payload)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, errs.Wrap(errs.Internal, "traverse lookup", err)
		}
		rec, err := decodeRecord(model.Kind(kindStr), []byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, TraverseHit{Record: rec, Depth: visited[id]})
	}
	return out, nil
}

func (s *Store) neighbors(ctx context.Context, id string, relations []model.EdgeKind, direction Direction) ([]string, error) {
	tables := edgeTablesFor(relations)
	var out []string
	for _, t := range tables {
		kindCond, kindArgs := "", []interface{}{}
		if t.kindColumn && len(t.kinds) > 0 {
			placeholders := ""
			for i, k := range t.kinds {
				if i > 0 {
					placeholders += ","
				}
				placeholders += "?"
				kindArgs = append(kindArgs, string(k))
			}
			kindCond = " AND kind IN (" + placeholders + ")"
		}
		if direction == DirOutbound || direction == DirBoth {
			args := append([]interface{}{id}, kindArgs...)
			rows, err := s.db.QueryContext(ctx, "SELECT to_id FROM "+t.name+" WHERE from_id = ?"+kindCond, args...)
			if err != nil {
				return nil, errs.Wrap(errs.Internal, "traverse neighbors outbound", err)
			}
			out = append(out, scanStrings(rows)...)
		}
		if direction == DirInbound || direction == DirBoth {
			args := append([]interface{}{id}, kindArgs...)
			rows, err := s.db.QueryContext(ctx, "SELECT from_id FROM "+t.name+" WHERE to_id = ?"+kindCond, args...)
			if err != nil {
				return nil, errs.Wrap(errs.Internal, "traverse neighbors inbound", err)
			}
			out = append(out, scanStrings(rows)...)
		}
	}
	return out, nil
}

func scanStrings(rows *sql.Rows) []string {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if rows.Scan(&s) == nil {
			out = append(out, s)
		}
	}
	return out
}

type edgeTable struct {
	name       string
	kindColumn bool
	kinds      []model.EdgeKind
}

func edgeTablesFor(relations []model.EdgeKind) []edgeTable {
	if len(relations) == 0 {
		return []edgeTable{
			{name: "edge_defined_in"},
			{name: "edge_code_graph", kindColumn: true},
			{name: "edge_artifact_links", kindColumn: true},
		}
	}
	var definedIn, codeGraph, artifact []model.EdgeKind
	for _, r := range relations {
		switch r {
		case model.EdgeDefinedIn:
			definedIn = append(definedIn, r)
		case model.EdgeDependsOn, model.EdgeCalls, model.EdgeImplements:
			codeGraph = append(codeGraph, r)
		case model.EdgeModifies, model.EdgeJustifiedBy, model.EdgeLinkedFiles, model.EdgeLinkedDecisions:
			artifact = append(artifact, r)
		}
	}
	var out []edgeTable
	if len(definedIn) > 0 {
		out = append(out, edgeTable{name: "edge_defined_in"})
	}
	if len(codeGraph) > 0 {
		out = append(out, edgeTable{name: "edge_code_graph", kindColumn: true, kinds: codeGraph})
	}
	if len(artifact) > 0 {
		out = append(out, edgeTable{name: "edge_artifact_links", kindColumn: true, kinds: artifact})
	}
	return out
}

// UpsertEdge creates an edge, rejecting it if either endpoint is missing
// (SPEC_FULL §4.5's concurrency rule: "an edge upsert is rejected if it
// names a missing endpoint").
func (s *Store) UpsertEdge(ctx context.Context, e model.Edge) error {
	for _, id := range []string{e.FromID, e.ToID} {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM objects WHERE id = ?`, id).Scan(&exists); err == sql.ErrNoRows {
			return errs.New(errs.Conflict, "edge endpoint does not exist: "+id)
		} else if err != nil {
			return errs.Wrap(errs.Internal, "check edge endpoint", err)
		}
	}
	table, kindColumn := edgeTableFor(e.Kind)
	var err error
	if kindColumn {
		_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO `+table+` (kind, from_id, to_id) VALUES (?, ?, ?)`, string(e.Kind), e.FromID, e.ToID)
	} else {
		_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO `+table+` (from_id, to_id) VALUES (?, ?)`, e.FromID, e.ToID)
	}
	if err != nil {
		return errs.Wrap(errs.Internal, "upsert edge", err)
	}
	return nil
}

// RemoveEdges deletes every edge in which id is an endpoint, without
// touching the record itself. Used when a record survives but its
// relationships are rewritten or severed.
func (s *Store) RemoveEdges(ctx context.Context, id string) error {
	for _, table := range []string{"edge_defined_in", "edge_code_graph", "edge_artifact_links"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE from_id = ? OR to_id = ?`, id, id); err != nil {
			return errs.Wrap(errs.Internal, "remove edges", err)
		}
	}
	return nil
}

func edgeTableFor(kind model.EdgeKind) (table string, kindColumn bool) {
	switch kind {
	case model.EdgeDefinedIn:
		return "edge_defined_in", false
	case model.EdgeDependsOn, model.EdgeCalls, model.EdgeImplements:
		return "edge_code_graph", true
	default:
		return "edge_artifact_links", true
	}
}

func pathOf(rec model.Record) string {
	switch r := rec.(type) {
	case *model.File:
		return r.Path
	case *model.Directory:
		return r.Path
	case *model.Symbol:
		return r.Path
	case *model.FileChunk:
		return r.Path
	case *model.FileLog:
		return r.Path
	case *model.Project:
		return r.Root
	default:
		return ""
	}
}

// MatchesFilter applies the full filter AST to one record. Shared with
// the retrieval planner's graph lane, which post-filters traversal
// output the same way SearchVector post-filters its candidate set.
func MatchesFilter(rec model.Record, f Filter) bool {
	return matchesFilter(rec, f)
}

func matchesFilter(rec model.Record, f Filter) bool {
	if f.empty() {
		return true
	}
	env := rec.GetEnvelope()
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if env.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ProjectID != "" && env.ProjectID != f.ProjectID {
		return false
	}
	if f.TenantID != "" && env.TenantID != f.TenantID {
		return false
	}
	if f.PathPrefix != "" {
		p := pathOf(rec)
		if len(p) < len(f.PathPrefix) || p[:len(f.PathPrefix)] != f.PathPrefix {
			return false
		}
	}
	if f.Language != "" && languageOf(rec) != f.Language {
		return false
	}
	return true
}

func languageOf(rec model.Record) string {
	switch r := rec.(type) {
	case *model.File:
		return r.Language
	case *model.Symbol:
		return r.Language
	default:
		return ""
	}
}

func buildFilterQuery(base string, f Filter) (string, []interface{}) {
	cond, args := filterConditions(f)
	if cond == "" {
		return base, args
	}
	return base + " WHERE " + cond, args
}

func filterConditions(f Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if len(f.Kinds) > 0 {
		placeholders := ""
		for i, k := range f.Kinds {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, string(k))
		}
		clauses = append(clauses, "kind IN ("+placeholders+")")
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.TenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.PathPrefix != "" {
		clauses = append(clauses, "path LIKE ?")
		args = append(args, f.PathPrefix+"%")
	}
	if f.Language != "" {
		clauses = append(clauses, "json_extract(payload, '$.language') = ?")
		args = append(args, f.Language)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += " AND " + c
	}
	return out, args
}

// ftsQuery quotes the raw query as an FTS5 phrase so punctuation in
// identifiers (e.g. "hash_password") doesn't trip FTS5's query syntax.
func ftsQuery(q string) string {
	escaped := ""
	for _, r := range q {
		if r == '"' {
			escaped += `""`
		} else {
			escaped += string(r)
		}
	}
	return `"` + escaped + `"`
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeRecord decodes a kind-tagged JSON payload into its concrete
// record type. Shared with the remote backends, which carry the same
// payload column shape.
func DecodeRecord(kind model.Kind, payload []byte) (model.Record, error) {
	return decodeRecord(kind, payload)
}

func decodeRecord(kind model.Kind, payload []byte) (model.Record, error) {
	switch kind {
	case model.KindProject:
		var r model.Project
		return &r, unmarshalInto(payload, &r)
	case model.KindDirectory:
		var r model.Directory
		return &r, unmarshalInto(payload, &r)
	case model.KindFile:
		var r model.File
		return &r, unmarshalInto(payload, &r)
	case model.KindSymbol:
		var r model.Symbol
		return &r, unmarshalInto(payload, &r)
	case model.KindFileChunk:
		var r model.FileChunk
		return &r, unmarshalInto(payload, &r)
	case model.KindFileLog:
		var r model.FileLog
		return &r, unmarshalInto(payload, &r)
	case model.KindDecision:
		var r model.Decision
		return &r, unmarshalInto(payload, &r)
	case model.KindChangeSet:
		var r model.ChangeSet
		return &r, unmarshalInto(payload, &r)
	case model.KindNote:
		var r model.Note
		return &r, unmarshalInto(payload, &r)
	case model.KindRun:
		var r model.Run
		return &r, unmarshalInto(payload, &r)
	case model.KindCacheBlock:
		var r model.CacheBlock
		return &r, unmarshalInto(payload, &r)
	case model.KindLease:
		var r model.Lease
		return &r, unmarshalInto(payload, &r)
	default:
		return nil, errs.New(errs.Internal, "unknown record kind: "+string(kind))
	}
}

func unmarshalInto(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return errs.Wrap(errs.Internal, "decode object payload", err)
	}
	return nil
}
