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

// OllamaClient handles embeddings via a local Ollama-compatible server
// (POST {base_url}/api/embeddings). Ollama's embeddings endpoint takes
// one prompt per request, so batches are issued sequentially.
type OllamaClient struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

// NewOllamaClient creates a local embedding client.
func NewOllamaClient(baseURL, model string, dim int, timeout time.Duration) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OllamaClient{
		baseURL: baseURL,
		model:   model,
		dim:     dim,
		client:  newHTTPClient(timeout),
	}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates embeddings for the given texts, one request per text.
func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (c *OllamaClient) embedOne(ctx context.Context, text string) ([]float32, error) {
	jsonBody, err := json.Marshal(ollamaRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "marshal ollama request", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "create ollama request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.BackendTimeout, "ollama request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.BackendUnavailable, "read ollama response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.BackendUnavailable,
			fmt.Sprintf("ollama returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errs.Wrap(errs.BackendUnavailable, "unmarshal ollama response", err)
	}
	return parsed.Embedding, nil
}

// Dimension returns the configured vector dimension, falling back to the
// common nomic-embed-text size.
func (c *OllamaClient) Dimension() int {
	if c.dim > 0 {
		return c.dim
	}
	return 768
}
