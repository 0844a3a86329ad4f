// Package embedding provides embedding clients for generating vector
// representations, behind one Backend interface with a remote
// OpenAI-compatible client and a local Ollama-compatible client.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentmem/substrate/internal/errs"
)

// Backend maps text payloads to fixed-dimension vectors. Implementations
// must be idempotent within a configured model: same input, same output.
type Backend interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// maxIdleConnsPerHost bounds the HTTP connection pool per backend host.
const maxIdleConnsPerHost = 10

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: maxIdleConnsPerHost,
		},
	}
}

// RemoteClient handles embeddings via an OpenAI-compatible HTTP endpoint
// (POST {base_url}/v1/embeddings with a batched input list).
type RemoteClient struct {
	baseURL string
	apiKey  string
	model   string
	dim     int
	client  *http.Client
}

// NewRemoteClient creates a remote embedding client. dim overrides the
// built-in model dimension table when non-zero.
func NewRemoteClient(baseURL, apiKey, model string, dim int, timeout time.Duration) *RemoteClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &RemoteClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		dim:     dim,
		client:  newHTTPClient(timeout),
	}
}

type remoteRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type remoteResponse struct {
	Data []remoteEmbedding `json:"data"`
}

type remoteEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// Embed generates embeddings for the given texts in one batched request.
func (c *RemoteClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	jsonBody, err := json.Marshal(remoteRequest{Input: texts, Model: c.model})
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "create embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.BackendTimeout, "embedding request deadline exceeded", err)
		}
		return nil, errs.Wrap(errs.BackendTimeout, "embedding request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.BackendUnavailable, "read embedding response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.BackendUnavailable,
			fmt.Sprintf("embedding backend returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var parsed remoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errs.Wrap(errs.BackendUnavailable, "unmarshal embedding response", err)
	}

	// Reorder by index so output order matches input order.
	vectors := make([][]float32, len(texts))
	for _, emb := range parsed.Data {
		if emb.Index >= 0 && emb.Index < len(vectors) {
			vectors[emb.Index] = emb.Embedding
		}
	}
	return vectors, nil
}

// EmbedBatched handles large inputs by batching.
func (c *RemoteClient) EmbedBatched(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = 128
	}

	var allVectors [][]float32
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := c.Embed(ctx, texts[i:end])
		if err != nil {
			return nil, errs.Wrap(errs.KindOf(err), fmt.Sprintf("batch %d-%d failed", i, end), err)
		}
		allVectors = append(allVectors, vectors...)
	}
	return allVectors, nil
}

// Dimension returns the vector dimension for the model.
func (c *RemoteClient) Dimension() int {
	if c.dim > 0 {
		return c.dim
	}
	switch c.model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	default:
		return 1536
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
