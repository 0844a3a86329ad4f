// Package episodic implements the per-scope episodic cache: a rolling
// window of fixed-size blocks of small memory items. Blocks auto-close
// at a token budget with a generated, embedded summary; closed blocks
// are immutable and evicted past the window limit.
package episodic

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/objstore"
	"github.com/agentmem/substrate/internal/security"
)

const (
	// DefaultTokenBudget is B, the open block's auto-close threshold.
	DefaultTokenBudget = 1800
	// DefaultWindow is W, the maximum closed blocks kept per scope.
	DefaultWindow = 20

	summaryTokenTarget = 200
	itemPreviewChars   = 160
)

// ObjectStore is the persistence surface the cache needs; the embedded
// object store satisfies it.
type ObjectStore interface {
	Upsert(ctx context.Context, rec model.Record) error
	Get(ctx context.Context, id string) (model.Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f objstore.Filter, offset, limit int) ([]model.Record, error)
	SearchVector(ctx context.Context, vector []float32, f objstore.Filter, k int) ([]objstore.VectorHit, error)
}

// Embedder embeds block summaries on close. May be nil; blocks then
// close without a summary embedding and are invisible to Search.
type Embedder interface {
	EmbedText(ctx context.Context, text, contentHash string) ([]float32, error)
}

// Config carries the cache tunables.
type Config struct {
	TokenBudget int // B
	Window      int // W
}

// Cache is the episodic cache over all scopes.
type Cache struct {
	store    ObjectStore
	embedder Embedder
	secrets  *security.SecretDetector
	cfg      Config
	logger   *slog.Logger

	mu       sync.Mutex
	scopeMus map[string]*sync.Mutex
}

// New creates a cache with the given persistence and embedding backends.
func New(store ObjectStore, embedder Embedder, cfg Config, logger *slog.Logger) *Cache {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = DefaultTokenBudget
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:    store,
		embedder: embedder,
		secrets:  security.NewSecretDetector(),
		cfg:      cfg,
		logger:   logger,
		scopeMus: map[string]*sync.Mutex{},
	}
}

// scopeMu returns the mutex serializing writes to scope's open block.
// Reads do not acquire it.
func (c *Cache) scopeMu(scope string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	mu, ok := c.scopeMus[scope]
	if !ok {
		mu = &sync.Mutex{}
		c.scopeMus[scope] = mu
	}
	return mu
}

// WriteResult reports what a write did.
type WriteResult struct {
	Block        *model.CacheBlock
	Deduplicated bool
	ClosedBlock  *model.CacheBlock // non-nil when this write crossed the budget
}

// Write appends an item to scope's open block, creating the scope's
// first block when needed. Items are deduplicated by content equality:
// a re-insert keeps the item count, raises importance to the max, and
// refreshes the timestamp. Crossing the token budget closes the block
// and opens the next one.
func (c *Cache) Write(ctx context.Context, scope string, item model.CacheItem) (*WriteResult, error) {
	if item.Content == "" {
		return nil, errs.New(errs.InvalidInput, "cache item content must not be empty")
	}
	if item.Kind == "" {
		item.Kind = model.CacheItemFact
	}
	if item.Importance == 0 {
		item.Importance = 0.5
	}
	if item.Importance < 0 || item.Importance > 1 {
		return nil, errs.New(errs.InvalidInput, "importance must be in [0,1]")
	}
	// Snippets agents collect can carry live credentials; scrub before
	// the item is persisted or summarized.
	if redacted, found := c.secrets.RedactAll(item.Content); found {
		c.logger.Warn("episodic: redacted secret in cache item", "scope", scope)
		item.Content = redacted
	}
	item.InsertedAt = time.Now().UTC().Format(time.RFC3339)

	mu := c.scopeMu(scope)
	mu.Lock()
	defer mu.Unlock()

	block, err := c.openBlock(ctx, scope)
	if err != nil {
		return nil, err
	}

	res := &WriteResult{Block: block}
	deduped := false
	for i := range block.Items {
		if block.Items[i].Content == item.Content {
			if item.Importance > block.Items[i].Importance {
				block.Items[i].Importance = item.Importance
			}
			block.Items[i].InsertedAt = item.InsertedAt
			deduped = true
			break
		}
	}
	if !deduped {
		block.Items = append(block.Items, item)
		block.Tokens += estimateTokens(item.Content)
	}
	res.Deduplicated = deduped

	if err := c.store.Upsert(ctx, block); err != nil {
		return nil, err
	}

	if block.Tokens >= c.cfg.TokenBudget {
		closed, err := c.closeLocked(ctx, block)
		if err != nil {
			return nil, err
		}
		res.ClosedBlock = closed
	}
	return res, nil
}

// Compact force-closes scope's open block (explicit compact call or
// agent handoff). A scope with no open block is a no-op.
func (c *Cache) Compact(ctx context.Context, scope string) (*model.CacheBlock, error) {
	mu := c.scopeMu(scope)
	mu.Lock()
	defer mu.Unlock()

	block, err := c.findOpen(ctx, scope)
	if err != nil {
		return nil, err
	}
	if block == nil || len(block.Items) == 0 {
		return nil, nil
	}
	return c.closeLocked(ctx, block)
}

// closeLocked summarizes and freezes block, opens the successor, and
// evicts past the window. Caller holds the scope mutex.
func (c *Cache) closeLocked(ctx context.Context, block *model.CacheBlock) (*model.CacheBlock, error) {
	block.Open = false
	block.Summary = summarize(block.Items)
	if c.embedder != nil && block.Summary != "" {
		vec, err := c.embedder.EmbedText(ctx, block.Summary, "")
		if err != nil {
			// A summary without a vector still closes; it is just
			// invisible to the vector search until re-embedded.
			c.logger.Warn("episodic: summary embedding failed", "scope", block.Scope, "error", err)
		} else {
			block.Embedding = vec
		}
	}
	if err := c.store.Upsert(ctx, block); err != nil {
		return nil, err
	}

	next := newBlock(block.TenantID, block.ProjectID, block.Scope, block.Sequence+1)
	if err := c.store.Upsert(ctx, next); err != nil {
		return nil, err
	}

	if err := c.evict(ctx, block.Scope); err != nil {
		return nil, err
	}
	return block, nil
}

// evict hard-deletes the oldest closed blocks past the window limit.
func (c *Cache) evict(ctx context.Context, scope string) error {
	blocks, err := c.blocksForScope(ctx, scope)
	if err != nil {
		return err
	}
	var closed []*model.CacheBlock
	for _, b := range blocks {
		if !b.Open {
			closed = append(closed, b)
		}
	}
	if len(closed) <= c.cfg.Window {
		return nil
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].Sequence < closed[j].Sequence })
	for _, b := range closed[:len(closed)-c.cfg.Window] {
		c.logger.Info("episodic: evicting block", "scope", scope, "sequence", b.Sequence)
		if err := c.store.Delete(ctx, b.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetCurrent returns the open block's items, in insertion order.
func (c *Cache) GetCurrent(ctx context.Context, scope string) (*model.CacheBlock, error) {
	block, err := c.findOpen(ctx, scope)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, errs.New(errs.NotFound, "no open block for scope "+scope)
	}
	return block, nil
}

// GetByID returns the full block contents, open or closed.
func (c *Cache) GetByID(ctx context.Context, blockID string) (*model.CacheBlock, error) {
	rec, err := c.store.Get(ctx, blockID)
	if err != nil {
		return nil, err
	}
	block, ok := rec.(*model.CacheBlock)
	if !ok {
		return nil, errs.New(errs.NotFound, "id is not a cache block: "+blockID)
	}
	return block, nil
}

// List returns the newest closed blocks for scope (up to limit), newest
// first, optionally with the open block in front.
func (c *Cache) List(ctx context.Context, scope string, limit int, includeOpen bool) ([]*model.CacheBlock, error) {
	blocks, err := c.blocksForScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Sequence > blocks[j].Sequence })

	var out []*model.CacheBlock
	for _, b := range blocks {
		if b.Open {
			if includeOpen {
				out = append(out, b)
			}
			continue
		}
		out = append(out, b)
		closedCount := 0
		for _, o := range out {
			if !o.Open {
				closedCount++
			}
		}
		if limit > 0 && closedCount >= limit {
			break
		}
	}
	return out, nil
}

// SearchHit is one block matched by summary similarity.
type SearchHit struct {
	Block      *model.CacheBlock
	Similarity float64
}

// Search runs vector k-NN over the closed blocks' summary embeddings in
// scope. When includeContent is false the blocks' item lists are
// cleared, leaving only the summaries.
func (c *Cache) Search(ctx context.Context, scope, query string, limit int, includeContent bool) ([]SearchHit, error) {
	if c.embedder == nil {
		return nil, errs.New(errs.BackendUnavailable, "no embedder configured for cache search")
	}
	if limit <= 0 {
		limit = 5
	}
	vec, err := c.embedder.EmbedText(ctx, query, "")
	if err != nil {
		return nil, err
	}
	hits, err := c.store.SearchVector(ctx, vec, objstore.Filter{Kinds: []model.Kind{model.KindCacheBlock}}, limit*4)
	if err != nil {
		return nil, err
	}

	var out []SearchHit
	for _, h := range hits {
		block, ok := h.Record.(*model.CacheBlock)
		if !ok || block.Scope != scope || block.Open {
			continue
		}
		if !includeContent {
			trimmed := *block
			trimmed.Items = nil
			block = &trimmed
		}
		out = append(out, SearchHit{Block: block, Similarity: h.Similarity})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// openBlock finds or creates scope's open block. Caller holds the scope
// mutex.
func (c *Cache) openBlock(ctx context.Context, scope string) (*model.CacheBlock, error) {
	block, err := c.findOpen(ctx, scope)
	if err != nil {
		return nil, err
	}
	if block != nil {
		return block, nil
	}

	// First write to this scope, or the previous open block vanished:
	// continue the sequence after the newest surviving block.
	blocks, err := c.blocksForScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	seq := 0
	for _, b := range blocks {
		if b.Sequence >= seq {
			seq = b.Sequence + 1
		}
	}
	fresh := newBlock("", "", scope, seq)
	if err := c.store.Upsert(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (c *Cache) findOpen(ctx context.Context, scope string) (*model.CacheBlock, error) {
	blocks, err := c.blocksForScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	for _, b := range blocks {
		if b.Open {
			return b, nil
		}
	}
	return nil, nil
}

func (c *Cache) blocksForScope(ctx context.Context, scope string) ([]*model.CacheBlock, error) {
	recs, err := c.store.List(ctx, objstore.Filter{Kinds: []model.Kind{model.KindCacheBlock}}, 0, 10000)
	if err != nil {
		return nil, err
	}
	var out []*model.CacheBlock
	for _, rec := range recs {
		if b, ok := rec.(*model.CacheBlock); ok && b.Scope == scope {
			out = append(out, b)
		}
	}
	return out, nil
}

func newBlock(tenantID, projectID, scope string, seq int) *model.CacheBlock {
	return &model.CacheBlock{
		Envelope: model.Envelope{
			ID:        uuid.NewString(),
			Kind:      model.KindCacheBlock,
			TenantID:  tenantID,
			ProjectID: projectID,
		},
		Scope:    scope,
		Sequence: seq,
		Open:     true,
	}
}

// summarize concatenates truncated item previews, dropping repeated
// lines, and caps the result near the summary token target.
func summarize(items []model.CacheItem) string {
	seen := map[string]bool{}
	var lines []string
	tokens := 0
	for _, item := range items {
		preview := item.Content
		if len(preview) > itemPreviewChars {
			preview = preview[:itemPreviewChars] + "..."
		}
		preview = strings.ReplaceAll(preview, "\n", " ")
		line := "[" + string(item.Kind) + "] " + preview
		if seen[line] {
			continue
		}
		seen[line] = true
		lineTokens := estimateTokens(line)
		if tokens+lineTokens > summaryTokenTarget && len(lines) > 0 {
			break
		}
		lines = append(lines, line)
		tokens += lineTokens
	}
	return strings.Join(lines, "\n")
}

// estimateTokens approximates token count as whitespace-separated words
// times 1.3.
func estimateTokens(s string) int {
	return int(float64(len(strings.Fields(s))) * 1.3)
}
