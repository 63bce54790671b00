package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/chartd/internal/chunker"
	"github.com/fyrsmithlabs/chartd/internal/document"
	"github.com/fyrsmithlabs/chartd/internal/embeddings"
	"github.com/fyrsmithlabs/chartd/internal/entity"
	"github.com/fyrsmithlabs/chartd/internal/ingest"
	"github.com/fyrsmithlabs/chartd/internal/retrieval"
	"github.com/fyrsmithlabs/chartd/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memoryVectorStore keeps records in memory and serves them back as
// query candidates, newest upsert first.
type memoryVectorStore struct {
	mu      sync.Mutex
	records []vectorstore.Record
}

func (m *memoryVectorStore) Upsert(ctx context.Context, records []vectorstore.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}

func (m *memoryVectorStore) Query(ctx context.Context, embedding []float32, k int) ([]vectorstore.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	candidates := make([]vectorstore.Candidate, 0, len(m.records))
	for _, r := range m.records {
		candidates = append(candidates, vectorstore.Candidate{Record: r, Score: 0.9})
	}
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (m *memoryVectorStore) DeleteDocument(ctx context.Context, documentID string, generation int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	for _, r := range m.records {
		if !(r.DocumentID == documentID && r.Generation == generation) {
			kept = append(kept, r)
		}
	}
	m.records = kept
	return nil
}

func (m *memoryVectorStore) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

func (m *memoryVectorStore) Close() error { return nil }

type staticEmbedder struct{}

func (staticEmbedder) ModelID() string { return "test-model" }

func (staticEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{1, 0, 0}
	}
	return vecs, nil
}

func (staticEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger := zaptest.NewLogger(t)
	docs := document.NewMemoryStore()
	store := &memoryVectorStore{}

	builder, err := chunker.NewBuilder(chunker.DefaultConfig(), logger)
	require.NoError(t, err)

	batcher, err := embeddings.NewBatcher(staticEmbedder{}, embeddings.BatcherConfig{}, logger)
	require.NoError(t, err)

	pipeline, err := ingest.NewPipeline(docs, builder, entity.NoopTagger{}, batcher, store, ingest.Config{}, logger)
	require.NoError(t, err)

	retriever, err := retrieval.NewService(docs, staticEmbedder{}, store, retrieval.Config{}, logger)
	require.NoError(t, err)

	srv, err := NewServer(docs, pipeline, retriever, Config{}, logger)
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func ingestBody(id string) IngestRequest {
	return IngestRequest{
		DocumentID: id,
		Filename:   "visit.pdf",
		Categories: []string{"cardiology"},
		TotalPages: 3,
		Text:       "Patient reports chest pain. Prescribed metformin 500mg daily. Follow up in two weeks.",
	}
}

func TestIngestAndGetDocument(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/documents", ingestBody("doc-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "doc-1", result.DocumentID)
	assert.Equal(t, document.StatusEmbedded, result.Status)
	assert.Equal(t, 1, result.Generation)
	assert.Greater(t, result.ChunkCount, 0)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/documents/doc-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc document.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, document.StatusEmbedded, doc.Status)
	assert.Equal(t, "visit.pdf", doc.Filename)
}

func TestIngestGeneratesDocumentID(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/documents", ingestBody(""))
	require.Equal(t, http.StatusCreated, rec.Code)

	var result ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.DocumentID)
}

func TestIngestRequiresFilename(t *testing.T) {
	srv := newTestServer(t)

	body := ingestBody("")
	body.Filename = ""
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/documents", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestEmptyTextIsNotAnError(t *testing.T) {
	srv := newTestServer(t)

	body := ingestBody("doc-1")
	body.Text = "   "
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/documents", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var result ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, document.StatusChunked, result.Status)
	assert.Zero(t, result.ChunkCount)
}

func TestIngestReprocessExistingDocument(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/documents", ingestBody("doc-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/documents", ingestBody("doc-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var result ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Generation)
}

func TestListDocuments(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/api/v1/documents", ingestBody("doc-1"))
	doJSON(t, srv, http.MethodPost, "/api/v1/documents", ingestBody("doc-2"))

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var docs []document.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	assert.Len(t, docs, 2)
}

func TestGetDocumentNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/documents/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteDocument(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/api/v1/documents", ingestBody("doc-1"))

	rec := doJSON(t, srv, http.MethodDelete, "/api/v1/documents/doc-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/documents/doc-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/documents/doc-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetContext(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/api/v1/documents", ingestBody("doc-1"))

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/context", ContextRequest{Query: "what medications"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result retrieval.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.NoMatch)
	assert.True(t, strings.HasPrefix(result.ContextText, "[1] "))
	require.NotEmpty(t, result.Citations)
	assert.Equal(t, "doc-1", result.Citations[0].DocumentID)
}

func TestGetContextCategoryFilter(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/api/v1/documents", ingestBody("doc-1"))

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/context", ContextRequest{
		Query:      "what medications",
		Categories: []string{"dermatology"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result retrieval.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.NoMatch)
	assert.Equal(t, retrieval.NoMatchMessage, result.ContextText)
}

func TestGetContextEmptyQuery(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/context", ContextRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetContextNoDocuments(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/context", ContextRequest{Query: "anything"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result retrieval.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.NoMatch)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chartd_ingest")
}

func TestInvalidJSONBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader("{not json"))
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
