package objstore

import "strconv"

// schemaSQL returns the DDL for the unified object store: one `objects`
// table carrying the envelope plus a JSON payload column (the
// tagged-variant design from SPEC_FULL §9), an FTS5 virtual table kept in
// sync by triggers (the lexical lane), a vec0 virtual table (the vector
// lane, dimension-parameterized), and four small typed edge tables
// (SPEC_FULL §3's edge kinds, grouped by shared column shape per the
// spec's own design note rather than one polymorphic edge bag).
//
// Grounded on bbiangul-go-reason/store/schema.go's shape: one base table
// with FTS5 AFTER-trigger sync and a vec0 sibling table keyed by rowid.
func schemaSQL(dim int) string {
	if dim <= 0 {
		dim = 1536
	}
	return `
CREATE TABLE IF NOT EXISTS objects (
	rowid       INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT UNIQUE NOT NULL,
	kind        TEXT NOT NULL,
	tenant_id   TEXT NOT NULL DEFAULT '',
	project_id  TEXT NOT NULL DEFAULT '',
	path        TEXT NOT NULL DEFAULT '',
	search_text TEXT NOT NULL DEFAULT '',
	payload     TEXT NOT NULL,
	has_vector  INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_objects_kind ON objects(kind);
CREATE INDEX IF NOT EXISTS idx_objects_project ON objects(project_id, kind);
CREATE INDEX IF NOT EXISTS idx_objects_path ON objects(path);

CREATE VIRTUAL TABLE IF NOT EXISTS objects_fts USING fts5(
	search_text,
	content='objects',
	content_rowid='rowid',
	tokenize='unicode61'
);

CREATE TRIGGER IF NOT EXISTS objects_ai AFTER INSERT ON objects BEGIN
	INSERT INTO objects_fts(rowid, search_text) VALUES (new.rowid, new.search_text);
END;

CREATE TRIGGER IF NOT EXISTS objects_ad AFTER DELETE ON objects BEGIN
	INSERT INTO objects_fts(objects_fts, rowid, search_text) VALUES('delete', old.rowid, old.search_text);
END;

CREATE TRIGGER IF NOT EXISTS objects_au AFTER UPDATE ON objects BEGIN
	INSERT INTO objects_fts(objects_fts, rowid, search_text) VALUES('delete', old.rowid, old.search_text);
	INSERT INTO objects_fts(rowid, search_text) VALUES (new.rowid, new.search_text);
END;

CREATE VIRTUAL TABLE IF NOT EXISTS vec_objects USING vec0(
	rowid INTEGER PRIMARY KEY,
	embedding FLOAT[` + strconv.Itoa(dim) + `]
);

CREATE TABLE IF NOT EXISTS edge_defined_in (
	from_id TEXT NOT NULL,
	to_id   TEXT NOT NULL,
	PRIMARY KEY (from_id, to_id)
);

CREATE TABLE IF NOT EXISTS edge_code_graph (
	kind    TEXT NOT NULL, -- depends_on | calls | implements
	from_id TEXT NOT NULL,
	to_id   TEXT NOT NULL,
	PRIMARY KEY (kind, from_id, to_id)
);

CREATE TABLE IF NOT EXISTS edge_artifact_links (
	kind    TEXT NOT NULL, -- modifies | justified_by | linked_files | linked_decisions
	from_id TEXT NOT NULL,
	to_id   TEXT NOT NULL,
	PRIMARY KEY (kind, from_id, to_id)
);

CREATE INDEX IF NOT EXISTS idx_edge_defined_in_to ON edge_defined_in(to_id);
CREATE INDEX IF NOT EXISTS idx_edge_code_graph_to ON edge_code_graph(kind, to_id);
CREATE INDEX IF NOT EXISTS idx_edge_artifact_links_to ON edge_artifact_links(kind, to_id);
`
}
