package coordination

import (
	"context"

	"github.com/google/uuid"

	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/model"
)

// ArtifactWrite is the discriminated payload for the single artifact
// endpoint: Type selects decision, note, or changeset.
type ArtifactWrite struct {
	Type      string `json:"type"` // decision | note | changeset
	TenantID  string `json:"tenant_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`

	// decision fields
	Title        string   `json:"title,omitempty"`
	Context      string   `json:"context,omitempty"`
	Decision     string   `json:"decision,omitempty"`
	Consequences string   `json:"consequences,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Status       string   `json:"status,omitempty"`

	// note fields
	Category string `json:"category,omitempty"`
	Content  string `json:"content,omitempty"`

	// changeset fields
	Description  string   `json:"description,omitempty"`
	FilesChanged []string `json:"files_changed,omitempty"`
	DiffSummary  string   `json:"diff_summary,omitempty"`

	// link targets, resolved to edges after the artifact exists
	LinkedFiles     []string `json:"linked_files,omitempty"`
	LinkedDecisions []string `json:"linked_decisions,omitempty"`
}

// Artifacts writes user-authored records. Unlike the machine-derived
// records the sync pipeline owns, these are only ever mutated by their
// author.
type Artifacts struct {
	store    ObjectStore
	embedder Embedder
}

// Embedder embeds artifact text on write. May be nil.
type Embedder interface {
	EmbedText(ctx context.Context, text, contentHash string) ([]float32, error)
}

// NewArtifacts creates the artifact writer.
func NewArtifacts(store ObjectStore, embedder Embedder) *Artifacts {
	return &Artifacts{store: store, embedder: embedder}
}

// Write creates the artifact the payload describes and links it to its
// files and decisions.
func (a *Artifacts) Write(ctx context.Context, w ArtifactWrite) (model.Record, error) {
	var rec model.Record
	env := model.Envelope{
		ID:        uuid.NewString(),
		TenantID:  w.TenantID,
		ProjectID: w.ProjectID,
	}

	switch w.Type {
	case "decision":
		if w.Title == "" {
			return nil, errs.New(errs.InvalidInput, "decision requires a title")
		}
		env.Kind = model.KindDecision
		status := w.Status
		if status == "" {
			status = "proposed"
		}
		rec = &model.Decision{
			Envelope:     env,
			Title:        w.Title,
			Context:      w.Context,
			DecisionText: w.Decision,
			Consequences: w.Consequences,
			Alternatives: w.Alternatives,
			Status:       status,
		}
	case "note":
		if w.Content == "" {
			return nil, errs.New(errs.InvalidInput, "note requires content")
		}
		category := model.NoteCategory(w.Category)
		switch category {
		case model.NoteWarning, model.NoteInsight, model.NoteTodo, model.NoteQuestion:
		case "":
			category = model.NoteInsight
		default:
			return nil, errs.New(errs.InvalidInput, "unknown note category: "+w.Category)
		}
		env.Kind = model.KindNote
		rec = &model.Note{Envelope: env, Category: category, Content: w.Content}
	case "changeset":
		if w.Title == "" {
			return nil, errs.New(errs.InvalidInput, "changeset requires a title")
		}
		env.Kind = model.KindChangeSet
		rec = &model.ChangeSet{
			Envelope:     env,
			Title:        w.Title,
			Description:  w.Description,
			FilesChanged: w.FilesChanged,
			DiffSummary:  w.DiffSummary,
		}
	default:
		return nil, errs.New(errs.InvalidInput, "unknown artifact type: "+w.Type)
	}

	if a.embedder != nil {
		if vec, err := a.embedder.EmbedText(ctx, rec.SearchText(), ""); err == nil {
			rec.GetEnvelope().Embedding = vec
		}
	}
	if err := a.store.Upsert(ctx, rec); err != nil {
		return nil, err
	}

	id := rec.GetEnvelope().ID
	for _, fileID := range w.LinkedFiles {
		if err := a.store.UpsertEdge(ctx, model.Edge{Kind: model.EdgeLinkedFiles, FromID: id, ToID: fileID}); err != nil {
			return rec, err
		}
	}
	for _, decisionID := range w.LinkedDecisions {
		kind := model.EdgeLinkedDecisions
		if w.Type == "changeset" {
			kind = model.EdgeJustifiedBy
		}
		if err := a.store.UpsertEdge(ctx, model.Edge{Kind: kind, FromID: id, ToID: decisionID}); err != nil {
			return rec, err
		}
	}
	if w.Type == "changeset" {
		for _, fileID := range w.LinkedFiles {
			if err := a.store.UpsertEdge(ctx, model.Edge{Kind: model.EdgeModifies, FromID: id, ToID: fileID}); err != nil {
				return rec, err
			}
		}
	}
	return rec, nil
}
