// Package retrieval answers context queries against the embedded chunk
// store.
//
// A query is embedded (unless the caller supplies a vector), matched
// against the vector store, filtered to each document's current
// generation, ranked, and assembled into a citation-backed context
// block. Zero matches is a normal outcome, reported as such rather
// than as an error.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/chartd/internal/assembler"
	"github.com/fyrsmithlabs/chartd/internal/document"
	"github.com/fyrsmithlabs/chartd/internal/ranker"
	"github.com/fyrsmithlabs/chartd/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("chartd.retrieval")

// Sentinel errors for retrieval operations.
var (
	ErrInvalidConfig = errors.New("invalid retrieval configuration")
	ErrEmptyQuery    = errors.New("query text and embedding are both empty")
)

// NoMatchMessage is returned as the context text when no embedded
// content satisfies the query.
const NoMatchMessage = "No matching content found in the uploaded documents."

// Config holds configuration for the retrieval service.
type Config struct {
	// Limit is the maximum number of chunks in the assembled context.
	// Default: 8
	Limit int `koanf:"limit"`

	// OverfetchFactor multiplies Limit for the vector store query so
	// generation filtering and deduplication still leave enough
	// candidates. Default: 4
	OverfetchFactor int `koanf:"overfetch_factor"`

	// MaxContextChars bounds the assembled context block. Zero or less
	// means unlimited. Default: 6000
	MaxContextChars int `koanf:"max_context_chars"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Limit == 0 {
		c.Limit = 8
	}
	if c.OverfetchFactor == 0 {
		c.OverfetchFactor = 4
	}
	if c.MaxContextChars == 0 {
		c.MaxContextChars = 6000
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Limit < 1 {
		return fmt.Errorf("%w: limit must be at least 1, got %d", ErrInvalidConfig, c.Limit)
	}
	if c.OverfetchFactor < 1 {
		return fmt.Errorf("%w: overfetch factor must be at least 1, got %d", ErrInvalidConfig, c.OverfetchFactor)
	}
	return nil
}

// Result is the outcome of one context query.
type Result struct {
	// ContextText is the numbered snippet block, or NoMatchMessage when
	// NoMatch is set.
	ContextText string `json:"context_text"`

	// Citations maps each numbered snippet back to its source chunk.
	Citations []assembler.Citation `json:"citations"`

	// NoMatch reports that no embedded content satisfied the query.
	NoMatch bool `json:"no_match"`
}

// Service resolves context queries.
type Service struct {
	docs     document.MetadataStore
	embedder vectorstore.Embedder
	store    vectorstore.Store
	config   Config
	logger   *zap.Logger
}

// NewService creates a retrieval service. The embedder may be nil if
// every caller supplies its own query embeddings.
func NewService(
	docs document.MetadataStore,
	embedder vectorstore.Embedder,
	store vectorstore.Store,
	config Config,
	logger *zap.Logger,
) (*Service, error) {
	if docs == nil {
		return nil, fmt.Errorf("%w: metadata store is required", ErrInvalidConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Service{
		docs:     docs,
		embedder: embedder,
		store:    store,
		config:   config,
		logger:   logger.Named("retrieval"),
	}, nil
}

// GetContext resolves a query into a context block with citations.
//
// queryEmbedding is used as-is when non-empty; otherwise queryText is
// embedded with the service's embedder. Candidates from superseded
// generations, or from documents that were deleted, are discarded
// before ranking.
func (s *Service) GetContext(ctx context.Context, queryText string, queryEmbedding []float32, filters ranker.Filters) (*Result, error) {
	ctx, span := tracer.Start(ctx, "retrieval.get_context",
		trace.WithAttributes(
			attribute.Int("query.text_len", len(queryText)),
			attribute.Bool("query.embedding_supplied", len(queryEmbedding) > 0),
		))
	defer span.End()

	if len(queryEmbedding) == 0 {
		if strings.TrimSpace(queryText) == "" {
			span.SetStatus(codes.Error, ErrEmptyQuery.Error())
			return nil, ErrEmptyQuery
		}
		if s.embedder == nil {
			err := fmt.Errorf("%w: no embedder configured and no embedding supplied", ErrInvalidConfig)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		var err error
		queryEmbedding, err = s.embedder.EmbedQuery(ctx, queryText)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "query embedding failed")
			return nil, fmt.Errorf("embedding query: %w", err)
		}
	}

	k := s.config.Limit * s.config.OverfetchFactor
	candidates, err := s.store.Query(ctx, queryEmbedding, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector query failed")
		return nil, fmt.Errorf("querying vector store: %w", err)
	}
	span.SetAttributes(attribute.Int("candidates.fetched", len(candidates)))

	current := s.filterCurrent(ctx, candidates)
	ranked := ranker.Rank(queryEmbedding, current, filters, s.config.Limit)
	span.SetAttributes(
		attribute.Int("candidates.current", len(current)),
		attribute.Int("candidates.ranked", len(ranked)),
	)

	if len(ranked) == 0 {
		s.logger.Debug("query matched no content",
			zap.Int("fetched", len(candidates)),
			zap.Int("current", len(current)),
		)
		return &Result{ContextText: NoMatchMessage, NoMatch: true}, nil
	}

	contextText, citations := assembler.Assemble(ranked, s.config.MaxContextChars)
	if len(citations) == 0 {
		// Every ranked chunk was larger than the budget.
		return &Result{ContextText: NoMatchMessage, NoMatch: true}, nil
	}

	return &Result{ContextText: contextText, Citations: citations}, nil
}

// filterCurrent drops candidates that do not belong to their document's
// published generation. The generation stamp only advances when a
// processing run commits, so a document mid-reprocess or failed keeps
// serving its last published generation. A stale point left behind by a
// failed cleanup, or one whose document was deleted, never reaches the
// ranker.
func (s *Service) filterCurrent(ctx context.Context, candidates []vectorstore.Candidate) []vectorstore.Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	docs := make(map[string]*document.Document, len(candidates))
	kept := make([]vectorstore.Candidate, 0, len(candidates))

	for _, c := range candidates {
		doc, ok := docs[c.DocumentID]
		if !ok {
			var err error
			doc, err = s.docs.Get(ctx, c.DocumentID)
			if err != nil {
				doc = nil
			}
			docs[c.DocumentID] = doc
		}
		if doc == nil || doc.Generation == 0 || doc.Generation != c.Generation {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
