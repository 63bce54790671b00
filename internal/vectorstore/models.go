package vectorstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Payload keys shared by all store implementations. Both backends persist
// chunk metadata under these names so records round-trip identically.
const (
	keyDocumentID    = "document_id"
	keyFilename      = "filename"
	keyCategories    = "categories"
	keySequenceIndex = "sequence_index"
	keyCharStart     = "char_start"
	keyCharEnd       = "char_end"
	keySection       = "section"
	keyGeneration    = "generation"
	keyUploadedAt    = "uploaded_at"
	keyModelID       = "embedding_model"
)

// Record is one embedded chunk as persisted in a vector store.
type Record struct {
	// ChunkID is the stable chunk identifier, e.g. "doc-42_003".
	ChunkID string

	// DocumentID is the owning document.
	DocumentID string

	// Text is the chunk text, stored alongside the vector so retrieval
	// never needs a second lookup to assemble context.
	Text string

	// Embedding is the chunk vector. Required on Upsert.
	Embedding []float32

	// SequenceIndex is the chunk's position within its document.
	SequenceIndex int

	// CharStart and CharEnd locate the chunk in the normalized document
	// text as a half-open range.
	CharStart int
	CharEnd   int

	// SectionHint is the detected clinical section, empty if none.
	SectionHint string

	// Filename is the source document's original filename.
	Filename string

	// Categories are the document's categories, used for filtering.
	Categories []string

	// Generation is the ingest run that produced the record.
	Generation int

	// UploadedAt is the document upload time.
	UploadedAt time.Time

	// ModelID is the embedding model that produced the vector.
	ModelID string
}

// Validate checks that the record can be persisted.
func (r Record) Validate() error {
	if r.ChunkID == "" {
		return fmt.Errorf("%w: record has empty chunk id", ErrEmptyRecords)
	}
	if r.DocumentID == "" {
		return fmt.Errorf("%w: record %s has empty document id", ErrEmptyRecords, r.ChunkID)
	}
	if len(r.Embedding) == 0 {
		return fmt.Errorf("%w: record %s has no embedding", ErrEmptyRecords, r.ChunkID)
	}
	return nil
}

// Candidate is a query hit: the stored record plus its similarity score
// as reported by the backend.
type Candidate struct {
	Record

	// Score is the backend's cosine similarity to the query vector.
	Score float32
}

// metadata flattens a record into a string map. chromem-go only persists
// string metadata, so the Qdrant backend uses the same representation to
// keep the two stores interchangeable.
func (r Record) metadata() map[string]string {
	m := map[string]string{
		keyDocumentID:    r.DocumentID,
		keyFilename:      r.Filename,
		keySequenceIndex: strconv.Itoa(r.SequenceIndex),
		keyCharStart:     strconv.Itoa(r.CharStart),
		keyCharEnd:       strconv.Itoa(r.CharEnd),
		keyGeneration:    strconv.Itoa(r.Generation),
		keyModelID:       r.ModelID,
	}
	if len(r.Categories) > 0 {
		m[keyCategories] = strings.Join(r.Categories, ",")
	}
	if r.SectionHint != "" {
		m[keySection] = r.SectionHint
	}
	if !r.UploadedAt.IsZero() {
		m[keyUploadedAt] = r.UploadedAt.UTC().Format(time.RFC3339)
	}
	return m
}

// recordFromMetadata rebuilds a record from its flattened form. Unparseable
// numeric fields are left at zero rather than failing the whole query.
func recordFromMetadata(chunkID, text string, embedding []float32, m map[string]string) Record {
	r := Record{
		ChunkID:     chunkID,
		Text:        text,
		Embedding:   embedding,
		DocumentID:  m[keyDocumentID],
		Filename:    m[keyFilename],
		SectionHint: m[keySection],
		ModelID:     m[keyModelID],
	}
	if v := m[keyCategories]; v != "" {
		r.Categories = strings.Split(v, ",")
	}
	if v, err := strconv.Atoi(m[keySequenceIndex]); err == nil {
		r.SequenceIndex = v
	}
	if v, err := strconv.Atoi(m[keyCharStart]); err == nil {
		r.CharStart = v
	}
	if v, err := strconv.Atoi(m[keyCharEnd]); err == nil {
		r.CharEnd = v
	}
	if v, err := strconv.Atoi(m[keyGeneration]); err == nil {
		r.Generation = v
	}
	if v, err := time.Parse(time.RFC3339, m[keyUploadedAt]); err == nil {
		r.UploadedAt = v
	}
	return r
}
