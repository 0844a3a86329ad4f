package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agentmem/substrate/internal/errs"
)

const (
	defaultCacheSize = 4096
	maxAttempts      = 3
)

// Service fronts a Backend with a content-hash keyed LRU cache and
// exponential-backoff retries on BackendTimeout/BackendUnavailable.
// Results are idempotent per (model, content hash), so a cache hit never
// costs a round trip.
type Service struct {
	backend Backend
	model   string
	cache   *lru.Cache[string, []float32]
	backoff time.Duration
}

// NewService wraps backend with caching and retry. model keys the cache
// so switching models never serves stale vectors.
func NewService(backend Backend, model string) (*Service, error) {
	cache, err := lru.New[string, []float32](defaultCacheSize)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "create embedding cache", err)
	}
	return &Service{
		backend: backend,
		model:   model,
		cache:   cache,
		backoff: 500 * time.Millisecond,
	}, nil
}

// Dimension returns the backend's fixed vector dimension D.
func (s *Service) Dimension() int { return s.backend.Dimension() }

// ContentHash is the cache key derivation for a text payload.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EmbedText embeds a single text, keyed by contentHash (computed from
// the text when empty).
func (s *Service) EmbedText(ctx context.Context, text, contentHash string) ([]float32, error) {
	if contentHash == "" {
		contentHash = ContentHash(text)
	}
	key := s.model + ":" + contentHash
	if vec, ok := s.cache.Get(key); ok {
		return vec, nil
	}

	vecs, err := s.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, errs.New(errs.BackendUnavailable, "backend returned no embedding")
	}
	s.cache.Add(key, vecs[0])
	return vecs[0], nil
}

// EmbedTexts embeds a batch, serving cached entries and only sending the
// misses to the backend. Output order matches input order.
func (s *Service) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		key := s.model + ":" + ContentHash(text)
		if vec, ok := s.cache.Get(key); ok {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := s.embedWithRetry(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		i := missIdx[j]
		out[i] = vec
		s.cache.Add(s.model+":"+ContentHash(texts[i]), vec)
	}
	return out, nil
}

func (s *Service) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	delay := s.backoff
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errs.Wrap(errs.BackendTimeout, "embedding cancelled", ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
		vecs, err := s.backend.Embed(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		kind := errs.KindOf(err)
		if kind != errs.BackendTimeout && kind != errs.BackendUnavailable {
			return nil, err
		}
	}
	return nil, lastErr
}
