package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("chartd.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded vector store.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/chartd/vectorstore"
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// Collection is the collection name holding chunk records.
	// Default: "chart_chunks"
	Collection string `koanf:"collection"`

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension.
	// Default: 384 (for FastEmbed bge-small-en-v1.5)
	VectorSize int `koanf:"vector_size"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/chartd/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "chart_chunks"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemStore implements Store using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies. It keeps vectors in memory with persistence to gob files,
// which makes it the default backend for single-node deployments and tests.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	logger     *zap.Logger
}

var _ Store = (*ChromemStore)(nil)

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	// Records arrive pre-embedded, so the embedding func must never run.
	collection, err := db.GetOrCreateCollection(config.Collection, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Collection, err)
	}

	store := &ChromemStore{
		db:         db,
		collection: collection,
		config:     config,
		logger:     logger,
	}

	logger.Info("chromem store initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
	)

	return store, nil
}

// rejectEmbeddingFunc satisfies chromem's collection API without ever
// embedding. All vectors are computed upstream by the embedding batcher.
func rejectEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("vectors must be precomputed")
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Upsert adds or replaces chunk records.
func (s *ChromemStore) Upsert(ctx context.Context, records []Record) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()

	span.SetAttributes(attribute.Int("record_count", len(records)))

	if len(records) == 0 {
		return ErrEmptyRecords
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		if err := r.Validate(); err != nil {
			span.RecordError(err)
			return err
		}
		if len(r.Embedding) != s.config.VectorSize {
			err := fmt.Errorf("%w: record %s has %d dimensions, collection expects %d",
				ErrDimensionMismatch, r.ChunkID, len(r.Embedding), s.config.VectorSize)
			span.RecordError(err)
			return err
		}
		docs[i] = chromem.Document{
			ID:        r.ChunkID,
			Content:   r.Text,
			Metadata:  r.metadata(),
			Embedding: r.Embedding,
		}
	}

	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding records to collection %s: %w", s.config.Collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("upserted chunk records",
		zap.String("collection", s.config.Collection),
		zap.Int("records", len(records)),
	)
	return nil
}

// Query returns the k nearest candidates to the given embedding.
func (s *ChromemStore) Query(ctx context.Context, embedding []float32, k int) ([]Candidate, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()

	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(embedding) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection expects %d",
			ErrDimensionMismatch, len(embedding), s.config.VectorSize)
	}

	// chromem requires nResults <= doc count.
	docCount := s.collection.Count()
	if docCount == 0 {
		return []Candidate{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	candidates := make([]Candidate, len(results))
	for i, r := range results {
		candidates[i] = Candidate{
			Record: recordFromMetadata(r.ID, r.Content, r.Embedding, r.Metadata),
			Score:  r.Similarity,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(candidates)))
	span.SetStatus(codes.Ok, "success")
	return candidates, nil
}

// DeleteDocument removes all records for one generation of a document.
func (s *ChromemStore) DeleteDocument(ctx context.Context, documentID string, generation int) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteDocument")
	defer span.End()

	span.SetAttributes(
		attribute.String("document_id", documentID),
		attribute.Int("generation", generation),
	)

	if documentID == "" {
		return fmt.Errorf("document id cannot be empty")
	}

	where := map[string]string{
		keyDocumentID: documentID,
		keyGeneration: strconv.Itoa(generation),
	}
	if err := s.collection.Delete(ctx, where, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting document %s generation %d: %w", documentID, generation, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("deleted document generation",
		zap.String("document_id", documentID),
		zap.Int("generation", generation),
	)
	return nil
}

// Count returns the number of stored records.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Close is a no-op: chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}
