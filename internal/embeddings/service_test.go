package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTEIServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestServiceEmbedDocuments(t *testing.T) {
	srv := newTEIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		inputs, ok := req.Inputs.([]interface{})
		require.True(t, ok)

		vectors := make([][]float32, len(inputs))
		for i := range vectors {
			vectors[i] = []float32{float32(i), 0.5}
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	})

	svc, err := NewService(Config{BaseURL: srv.URL, Model: "BAAI/bge-small-en-v1.5"})
	require.NoError(t, err)

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0, 0.5}, vectors[0])
	assert.Equal(t, []float32{1, 0.5}, vectors[1])
}

func TestServiceEmbedQuery(t *testing.T) {
	srv := newTEIServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode([][]float32{{0.1, 0.2, 0.3}}))
	})

	svc, err := NewService(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	vec, err := svc.EmbedQuery(context.Background(), "what medications were prescribed")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestServiceEmptyInput(t *testing.T) {
	svc, err := NewService(Config{BaseURL: "http://localhost:9"})
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestServiceUpstreamError(t *testing.T) {
	srv := newTEIServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})

	svc, err := NewService(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "503")
}

func TestServiceVectorCountMismatch(t *testing.T) {
	srv := newTEIServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode([][]float32{{1}}))
	})

	svc, err := NewService(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestServiceAPIKeyHeader(t *testing.T) {
	srv := newTEIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewEncoder(w).Encode([][]float32{{1}}))
	})

	svc, err := NewService(Config{BaseURL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
}

func TestServiceModelID(t *testing.T) {
	svc, err := NewService(Config{BaseURL: "http://localhost:9", Model: "BAAI/bge-base-en-v1.5"})
	require.NoError(t, err)
	assert.Equal(t, "BAAI/bge-base-en-v1.5", svc.ModelID())

	defaulted, err := NewService(Config{BaseURL: "http://localhost:9"})
	require.NoError(t, err)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", defaulted.ModelID())
}
