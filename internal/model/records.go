package model

import "strings"

// Project is the root of an indexed codebase.
type Project struct {
	Envelope
	Name string `json:"name"`
	Root string `json:"root"`
}

func (p *Project) GetEnvelope() *Envelope { return &p.Envelope }
func (p *Project) SearchText() string     { return p.Name + " " + p.Root }

// Directory is a folder node owned by a Project, optionally owned by a
// parent Directory.
type Directory struct {
	Envelope
	Path     string `json:"path"`
	ParentID string `json:"parent_id,omitempty"`
}

func (d *Directory) GetEnvelope() *Envelope { return &d.Envelope }
func (d *Directory) SearchText() string     { return d.Path }

// File is a tracked source file.
type File struct {
	Envelope
	Path        string `json:"path"` // project-relative, forward slashes
	Language    string `json:"language"`
	ContentHash string `json:"content_hash"`
	SizeBytes   int64  `json:"size_bytes"`
	DirectoryID string `json:"directory_id,omitempty"`
	Deleted     bool   `json:"deleted"`
}

func (f *File) GetEnvelope() *Envelope { return &f.Envelope }
func (f *File) SearchText() string     { return f.Path }

// SymbolKind enumerates the syntactic entity kinds a parser can emit.
// Extended beyond the teacher's function/class/method/variable set to
// cover every kind named in SPEC_FULL §3.
type SymbolKind string

const (
	SymbolFunction  SymbolKind = "function"
	SymbolClass     SymbolKind = "class"
	SymbolMethod    SymbolKind = "method"
	SymbolInterface SymbolKind = "interface"
	SymbolType      SymbolKind = "type"
	SymbolVariable  SymbolKind = "variable"
	SymbolConstant  SymbolKind = "constant"
	SymbolModule    SymbolKind = "module"
	SymbolTrait     SymbolKind = "trait"
	SymbolImpl      SymbolKind = "impl"
	SymbolStruct    SymbolKind = "struct"
	SymbolEnum      SymbolKind = "enum"
	SymbolNamespace SymbolKind = "namespace"
	SymbolProperty  SymbolKind = "property"
	SymbolField     SymbolKind = "field"
)

// Symbol is a parsed code entity.
type Symbol struct {
	Envelope
	Name       string     `json:"name"`
	SymbolKind SymbolKind `json:"symbol_kind"`
	FileID     string     `json:"file_id"`
	Path       string     `json:"path"`
	Language   string     `json:"language"`
	Signature  string     `json:"signature"`
	Doc        string     `json:"documentation"`
	StartLine  int        `json:"start_line"`
	EndLine    int        `json:"end_line"`
	Parent     string     `json:"parent,omitempty"`
	Content    string     `json:"content"`
	Exported   bool       `json:"exported"`
}

func (s *Symbol) GetEnvelope() *Envelope { return &s.Envelope }
func (s *Symbol) SearchText() string {
	return strings.Join([]string{s.Name, s.Signature, s.Doc, s.Content}, "\n")
}

// FileChunk is a contiguous, content-addressed window of a file's text,
// produced by the sliding-window Chunker (SPEC_FULL §4.2) — distinct
// from Symbol, which the Parser produces independently.
type FileChunk struct {
	Envelope
	FileID       string `json:"file_id"`
	Path         string `json:"path"`
	ChunkIndex   int    `json:"chunk_index"`
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	ApproxTokens int    `json:"approx_tokens"`
	Content      string `json:"content"`
	ContentHash  string `json:"content_hash"`
}

func (c *FileChunk) GetEnvelope() *Envelope { return &c.Envelope }
func (c *FileChunk) SearchText() string     { return c.Content }

// FileLog is the synthesized Markdown summary of a file.
type FileLog struct {
	Envelope
	FileID       string       `json:"file_id"`
	Path         string       `json:"path"`
	Markdown     string       `json:"markdown"`
	KeySymbols   []string     `json:"key_symbols"`
	Dependencies []string     `json:"dependencies"`
	ChangeCount  int          `json:"change_count"`
	AuditEntries []AuditEntry `json:"audit_entries"`
}

// AuditEntry records one sync action against a File's FileLog.
type AuditEntry struct {
	Action    string `json:"action"` // create|edit|delete
	Summary   string `json:"summary"`
	Timestamp string `json:"timestamp"` // RFC3339
}

func (l *FileLog) GetEnvelope() *Envelope { return &l.Envelope }
func (l *FileLog) SearchText() string     { return l.Markdown }

// Decision is an ADR-style artifact.
type Decision struct {
	Envelope
	Title        string   `json:"title"`
	Context      string   `json:"context"`
	DecisionText string   `json:"decision"`
	Consequences string   `json:"consequences"`
	Alternatives []string `json:"alternatives"`
	Status       string   `json:"status"`
}

func (d *Decision) GetEnvelope() *Envelope { return &d.Envelope }
func (d *Decision) SearchText() string {
	return strings.Join([]string{d.Title, d.Context, d.DecisionText, d.Consequences}, "\n")
}

// ChangeSet is a unit of modification.
type ChangeSet struct {
	Envelope
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	FilesChanged []string `json:"files_changed"`
	DiffSummary  string   `json:"diff_summary"`
}

func (c *ChangeSet) GetEnvelope() *Envelope { return &c.Envelope }
func (c *ChangeSet) SearchText() string     { return c.Title + "\n" + c.Description }

// NoteCategory enumerates the free-form note categories.
type NoteCategory string

const (
	NoteWarning  NoteCategory = "warning"
	NoteInsight  NoteCategory = "insight"
	NoteTodo     NoteCategory = "todo"
	NoteQuestion NoteCategory = "question"
)

// Note is a free-form learning record.
type Note struct {
	Envelope
	Category NoteCategory `json:"category"`
	Content  string       `json:"content"`
}

func (n *Note) GetEnvelope() *Envelope { return &n.Envelope }
func (n *Note) SearchText() string     { return n.Content }

// RunStatus enumerates agent run lifecycle states.
type RunStatus string

const (
	RunOpen   RunStatus = "open"
	RunClosed RunStatus = "closed"
)

// Run is an agent execution record.
type Run struct {
	Envelope
	Goal      string    `json:"goal"`
	AgentName string    `json:"agent_name"`
	Status    RunStatus `json:"status"`
	StartedAt string    `json:"started_at"`
	EndedAt   string    `json:"ended_at,omitempty"`
}

func (r *Run) GetEnvelope() *Envelope { return &r.Envelope }
func (r *Run) SearchText() string     { return r.Goal }

// CacheItemKind enumerates episodic cache item kinds.
type CacheItemKind string

const (
	CacheItemFact     CacheItemKind = "fact"
	CacheItemDecision CacheItemKind = "decision"
	CacheItemSnippet  CacheItemKind = "snippet"
	CacheItemWarning  CacheItemKind = "warning"
)

// CacheItem is one bite-sized memory item inside a CacheBlock.
type CacheItem struct {
	Kind       CacheItemKind `json:"kind"`
	Content    string        `json:"content"`
	Importance float64       `json:"importance"`
	FileRef    string        `json:"file_ref,omitempty"`
	InsertedAt string        `json:"inserted_at"`
}

// CacheBlock is one rolling window of a scope's episodic cache.
type CacheBlock struct {
	Envelope
	Scope    string      `json:"scope"`
	Sequence int         `json:"sequence"`
	Open     bool        `json:"open"`
	Items    []CacheItem `json:"items"`
	Summary  string      `json:"summary,omitempty"`
	Tokens   int         `json:"tokens"`
}

func (b *CacheBlock) GetEnvelope() *Envelope { return &b.Envelope }
func (b *CacheBlock) SearchText() string     { return b.Summary }

// Lease is an advisory lock over a free-form resource string.
type Lease struct {
	Envelope
	Resource  string `json:"resource"`
	HolderID  string `json:"holder_id"`
	ExpiresAt string `json:"expires_at"`
}

func (l *Lease) GetEnvelope() *Envelope { return &l.Envelope }
func (l *Lease) SearchText() string     { return l.Resource }
