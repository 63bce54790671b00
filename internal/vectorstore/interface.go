// Package vectorstore defines the interface for chunk vector storage.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyRecords indicates empty or nil records.
	ErrEmptyRecords = errors.New("empty or nil records")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrDimensionMismatch is returned when a record's embedding length
	// does not match the collection's vector size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name.
// Pattern: ^[a-z0-9_]{1,64}$
// Rejects: uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Embedder generates vector embeddings from text.
//
// Embeddings are dense numerical representations that capture semantic
// meaning, enabling similarity search over chart chunks. Implementations
// can use a local model (FastEmbed) or a remote inference server (TEI).
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns a slice of embeddings (one per input text) or an error.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// ModelID identifies the embedding model. Records produced under a
	// different model must not be mixed into the same collection.
	ModelID() string
}

// Store is the interface for chunk vector storage.
//
// Records arrive pre-embedded: the ingest pipeline runs chunk text through
// the embedding batcher before upserting, and retrieval embeds the query
// itself. Implementations never call an embedding model.
//
// Generations: every record carries the generation of the ingest run that
// produced it. Re-ingesting a document writes a new generation alongside the
// old one; DeleteDocument(documentID, generation) retires the superseded set
// once the swap has committed.
type Store interface {
	// Upsert adds or replaces chunk records. All records must be embedded.
	Upsert(ctx context.Context, records []Record) error

	// Query returns the k nearest candidates to the given embedding,
	// including their stored vectors so callers can re-score.
	Query(ctx context.Context, embedding []float32, k int) ([]Candidate, error)

	// DeleteDocument removes all records for one generation of a document.
	DeleteDocument(ctx context.Context, documentID string, generation int) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}
