package document

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MetadataStore persists Document records and their status transitions.
//
// The ingestion pipeline is the only writer. Implementations must make
// UpdateStatus and SwapGeneration atomic with respect to concurrent
// readers so a query never observes a half-applied transition.
type MetadataStore interface {
	// Put creates or replaces a document record.
	Put(ctx context.Context, doc *Document) error

	// Get returns the document with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Document, error)

	// List returns all documents ordered by upload time, newest first.
	List(ctx context.Context) ([]*Document, error)

	// UpdateStatus transitions a document to the given status. The reason
	// is recorded for StatusFailed and cleared otherwise.
	UpdateStatus(ctx context.Context, id string, status Status, reason string) error

	// SwapGeneration atomically publishes a new chunk generation: it sets
	// the generation stamp, chunk count, and truncation count, and marks
	// the document embedded. Returns the retired generation number.
	SwapGeneration(ctx context.Context, id string, generation, chunkCount, truncatedChars int) (int, error)

	// Delete removes a document record.
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-memory MetadataStore. It is the default backing
// store for single-node deployments and tests; a database-backed
// implementation can be substituted without touching the pipeline.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewMemoryStore creates an empty in-memory metadata store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*Document),
	}
}

// Put creates or replaces a document record.
func (s *MemoryStore) Put(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *doc
	s.docs[doc.ID] = &stored
	return nil
}

// Get returns a copy of the document with the given ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	copied := *doc
	return &copied, nil
}

// List returns all documents, newest upload first.
func (s *MemoryStore) List(ctx context.Context) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*Document, 0, len(s.docs))
	for _, doc := range s.docs {
		copied := *doc
		docs = append(docs, &copied)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].UploadedAt.After(docs[j].UploadedAt)
	})
	return docs, nil
}

// UpdateStatus transitions a document to the given status.
func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if !doc.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s for document %s", ErrInvalidTransition, doc.Status, status, id)
	}

	doc.Status = status
	if status == StatusFailed {
		doc.FailureReason = reason
	} else {
		doc.FailureReason = ""
	}
	return nil
}

// SwapGeneration atomically publishes a new chunk generation.
func (s *MemoryStore) SwapGeneration(ctx context.Context, id string, generation, chunkCount, truncatedChars int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	retired := doc.Generation
	doc.Generation = generation
	doc.ChunkCount = chunkCount
	doc.TruncatedChars = truncatedChars
	doc.Status = StatusEmbedded
	doc.FailureReason = ""
	return retired, nil
}

// Delete removes a document record.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.docs, id)
	return nil
}

// Ensure MemoryStore implements MetadataStore.
var _ MetadataStore = (*MemoryStore)(nil)
