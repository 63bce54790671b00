// Package document defines the core data model for ingested medical
// documents and their chunks.
package document

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for document operations.
var (
	// ErrNotFound is returned when a document does not exist in the store.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidTransition is returned on an illegal status change.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status represents the processing state of a document.
type Status string

const (
	// StatusPending means the document is registered but not yet processed.
	StatusPending Status = "pending"
	// StatusExtracting means text extraction is in progress.
	StatusExtracting Status = "extracting"
	// StatusChunked means the document text has been segmented into chunks.
	StatusChunked Status = "chunked"
	// StatusEmbedded means all chunks carry embeddings and are searchable.
	StatusEmbedded Status = "embedded"
	// StatusFailed means the last processing run failed. The document
	// remains queryable against its last embedded generation, if any.
	StatusFailed Status = "failed"
)

// validTransitions maps each status to the statuses it may move to.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusExtracting, StatusFailed},
	StatusExtracting: {StatusChunked, StatusFailed},
	StatusChunked:    {StatusEmbedded, StatusExtracting, StatusFailed},
	StatusEmbedded:   {StatusExtracting, StatusFailed},
	StatusFailed:     {StatusExtracting},
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Document represents one ingested source file.
//
// Documents are created on upload and mutated only by the ingestion
// pipeline as processing advances. The retrieval path never writes.
type Document struct {
	// ID is an opaque unique identifier.
	ID string `json:"document_id"`

	// Filename is the original upload filename.
	Filename string `json:"filename"`

	// Categories are user-assigned classification labels.
	Categories []string `json:"categories,omitempty"`

	// UploadedAt is the upload timestamp.
	UploadedAt time.Time `json:"uploaded_at"`

	// TotalPages is the page count reported by the extractor, 0 if unknown.
	TotalPages int `json:"total_pages,omitempty"`

	// Status is the current processing state.
	Status Status `json:"processing_status"`

	// Generation is the version stamp of the currently searchable chunk
	// set. Each reprocessing run produces a new generation; queries
	// filter on this value so old and new chunks are never both visible.
	Generation int `json:"generation"`

	// ChunkCount is the number of chunks in the current generation.
	ChunkCount int `json:"chunk_count"`

	// TruncatedChars is the number of source characters dropped because
	// the chunk cap was reached. Zero means nothing was lost.
	TruncatedChars int `json:"truncated_chars,omitempty"`

	// FailureReason records why the last run failed, empty otherwise.
	FailureReason string `json:"failure_reason,omitempty"`
}

// Entity is a single tagged domain entity with its extraction confidence.
type Entity struct {
	// Name is the surface form of the entity (e.g. "metformin").
	Name string `json:"name"`

	// Confidence is the extractor's confidence in [0, 1].
	Confidence float64 `json:"confidence"`
}

// Chunk is the unit of retrieval: a bounded excerpt of a document's
// normalized text.
//
// Chunks are created by the chunk builder, enriched by the entity
// tagger and the embedding batcher, and immutable once embedded.
// Reprocessing a document produces a new generation of chunks; old ones
// are retired, never updated in place.
type Chunk struct {
	// ID is deterministic: document ID plus zero-padded sequence index.
	ID string `json:"chunk_id"`

	// DocumentID is a back-reference to the owning document.
	DocumentID string `json:"document_id"`

	// Text is the chunk content. Never empty.
	Text string `json:"text"`

	// CharStart and CharEnd are offsets into the normalized source text.
	// Invariant: CharStart < CharEnd.
	CharStart int `json:"char_start"`
	CharEnd   int `json:"char_end"`

	// SequenceIndex is the emission order within the document.
	SequenceIndex int `json:"sequence_index"`

	// SectionHint is a best-effort section classification such as
	// "medications". Empty means no match, which is valid.
	SectionHint string `json:"section_hint,omitempty"`

	// Entities maps an entity category (medications, conditions, ...) to
	// the entities tagged in this chunk.
	Entities map[string][]Entity `json:"entities,omitempty"`

	// Embedding is the chunk vector, present only after embedding.
	Embedding []float32 `json:"-"`

	// EmbeddingModelID identifies the model that produced Embedding.
	EmbeddingModelID string `json:"embedding_model_id,omitempty"`

	// Generation is inherited from the processing run that built the chunk.
	Generation int `json:"generation"`
}

// ChunkID builds the deterministic chunk identifier for a document and
// sequence index, e.g. "doc-42_007".
func ChunkID(documentID string, sequenceIndex int) string {
	return fmt.Sprintf("%s_%03d", documentID, sequenceIndex)
}

// Embedded reports whether the chunk carries an embedding.
func (c *Chunk) Embedded() bool {
	return len(c.Embedding) > 0
}
