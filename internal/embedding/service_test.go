package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/substrate/internal/errs"
)

func newFakeRemote(t *testing.T, dim int, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req remoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := remoteResponse{}
		for i := range req.Input {
			vec := make([]float32, dim)
			vec[0] = float32(i + 1)
			resp.Data = append(resp.Data, remoteEmbedding{Embedding: vec, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestRemoteEmbedOrdering(t *testing.T) {
	var calls atomic.Int64
	srv := newFakeRemote(t, 8, &calls)
	defer srv.Close()

	client := NewRemoteClient(srv.URL, "key", "text-embedding-3-small", 8, 5*time.Second)
	vectors, err := client.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(3), vectors[2][0])
	assert.Equal(t, 8, client.Dimension())
}

func TestRemoteEmbedEmpty(t *testing.T) {
	client := NewRemoteClient("http://unused", "key", "m", 8, time.Second)
	vectors, err := client.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestRemoteEmbedBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overload", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewRemoteClient(srv.URL, "key", "m", 8, time.Second)
	_, err := client.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, errs.BackendUnavailable, errs.KindOf(err))
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float32{1, 2, 3, 4}})
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, "nomic-embed-text", 4, time.Second)
	vectors, err := client.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 4)
}

func TestServiceCachesByContentHash(t *testing.T) {
	var calls atomic.Int64
	srv := newFakeRemote(t, 4, &calls)
	defer srv.Close()

	backend := NewRemoteClient(srv.URL, "", "m", 4, time.Second)
	svc, err := NewService(backend, "m")
	require.NoError(t, err)

	v1, err := svc.EmbedText(context.Background(), "same text", "")
	require.NoError(t, err)
	v2, err := svc.EmbedText(context.Background(), "same text", "")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int64(1), calls.Load(), "second call must be served from cache")
}

func TestServiceBatchOnlySendsMisses(t *testing.T) {
	var calls atomic.Int64
	srv := newFakeRemote(t, 4, &calls)
	defer srv.Close()

	backend := NewRemoteClient(srv.URL, "", "m", 4, time.Second)
	svc, err := NewService(backend, "m")
	require.NoError(t, err)

	_, err = svc.EmbedText(context.Background(), "cached", "")
	require.NoError(t, err)

	out, err := svc.EmbedTexts(context.Background(), []string{"cached", "fresh"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotNil(t, out[0])
	assert.NotNil(t, out[1])
	assert.Equal(t, int64(2), calls.Load())
}

func TestServiceRetriesOnUnavailable(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "not yet", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(remoteResponse{Data: []remoteEmbedding{{Embedding: []float32{1, 2, 3, 4}, Index: 0}}})
	}))
	defer srv.Close()

	backend := NewRemoteClient(srv.URL, "", "m", 4, time.Second)
	svc, err := NewService(backend, "m")
	require.NoError(t, err)
	svc.backoff = time.Millisecond

	vec, err := svc.EmbedText(context.Background(), "retry me", "")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, int64(3), calls.Load())
}

func TestServiceGivesUpAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	backend := NewRemoteClient(srv.URL, "", "m", 4, time.Second)
	svc, err := NewService(backend, "m")
	require.NoError(t, err)
	svc.backoff = time.Millisecond

	_, err = svc.EmbedText(context.Background(), "doomed", "")
	require.Error(t, err)
	assert.Equal(t, errs.BackendUnavailable, errs.KindOf(err))
	assert.Equal(t, int64(3), calls.Load())
}
