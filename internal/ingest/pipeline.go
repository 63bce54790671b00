package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/chartd/internal/chunker"
	"github.com/fyrsmithlabs/chartd/internal/document"
	"github.com/fyrsmithlabs/chartd/internal/embeddings"
	"github.com/fyrsmithlabs/chartd/internal/entity"
	"github.com/fyrsmithlabs/chartd/internal/normalize"
	"github.com/fyrsmithlabs/chartd/internal/vectorstore"
	"go.uber.org/zap"
)

// Config holds configuration for the ingestion pipeline.
type Config struct {
	// MinEmbedSuccessRatio is the fraction of chunks that must embed for
	// a document to reach the embedded status. Below it the run fails and
	// the previous generation stays searchable.
	// Default: 1.0 (every chunk must embed)
	MinEmbedSuccessRatio float64 `koanf:"min_embed_success_ratio"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MinEmbedSuccessRatio == 0 {
		c.MinEmbedSuccessRatio = 1.0
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.MinEmbedSuccessRatio <= 0 || c.MinEmbedSuccessRatio > 1 {
		return fmt.Errorf("min embed success ratio must be in (0, 1], got %v", c.MinEmbedSuccessRatio)
	}
	return nil
}

// Result summarizes one pipeline run.
type Result struct {
	DocumentID     string                    `json:"document_id"`
	Status         document.Status           `json:"status"`
	Generation     int                       `json:"generation"`
	ChunkCount     int                       `json:"chunk_count"`
	EmbeddedChunks int                       `json:"embedded_chunks"`
	TruncatedChars int                       `json:"truncated_chars"`
	FailedChunks   []embeddings.ChunkFailure `json:"failed_chunks,omitempty"`
}

// Pipeline turns extracted document text into searchable chunk records.
//
// A run walks normalize, chunk, tag, embed, upsert, swap. The generation
// swap is the commit point: until it happens, queries keep hitting the
// document's previous generation, and a failed run leaves that generation
// untouched.
type Pipeline struct {
	docs    document.MetadataStore
	builder *chunker.Builder
	tagger  entity.Tagger
	batcher *embeddings.Batcher
	vectors vectorstore.Store
	config  Config
	logger  *zap.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	docs document.MetadataStore,
	builder *chunker.Builder,
	tagger entity.Tagger,
	batcher *embeddings.Batcher,
	vectors vectorstore.Store,
	config Config,
	logger *zap.Logger,
) (*Pipeline, error) {
	if docs == nil || builder == nil || tagger == nil || batcher == nil || vectors == nil {
		return nil, fmt.Errorf("all pipeline dependencies are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &Pipeline{
		docs:    docs,
		builder: builder,
		tagger:  tagger,
		batcher: batcher,
		vectors: vectors,
		config:  config,
		logger:  logger.Named("ingest"),
	}, nil
}

// Process runs the full pipeline for one document's extracted text.
func (p *Pipeline) Process(ctx context.Context, documentID, rawText string) (*Result, error) {
	start := time.Now()
	defer func() { ProcessDuration.Observe(time.Since(start).Seconds()) }()

	doc, err := p.docs.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading document %s: %w", documentID, err)
	}

	if err := p.docs.UpdateStatus(ctx, doc.ID, document.StatusExtracting, ""); err != nil {
		return nil, fmt.Errorf("starting run for %s: %w", doc.ID, err)
	}

	log := p.logger.With(zap.String("document_id", doc.ID))

	normalized := normalize.Normalize(rawText)
	if normalized == "" {
		// Nothing to chunk. Not a failure: the document is done, with
		// zero searchable chunks.
		if err := p.docs.UpdateStatus(ctx, doc.ID, document.StatusChunked, ""); err != nil {
			return nil, fmt.Errorf("marking %s chunked: %w", doc.ID, err)
		}
		DocumentsProcessed.WithLabelValues("empty").Inc()
		log.Info("document has no extractable text")
		return &Result{DocumentID: doc.ID, Status: document.StatusChunked, Generation: doc.Generation}, nil
	}

	chunks, report, err := p.builder.Build(doc.ID, normalized)
	if err != nil {
		return nil, p.fail(ctx, doc.ID, fmt.Errorf("chunking: %w", err))
	}
	ChunksBuilt.Add(float64(len(chunks)))
	if report.Truncated() {
		TruncatedChars.Add(float64(report.TruncatedChars))
		log.Warn("document exceeded chunk cap",
			zap.Int("chunks", len(chunks)),
			zap.Int("truncated_chars", report.TruncatedChars),
		)
	}

	if err := p.docs.UpdateStatus(ctx, doc.ID, document.StatusChunked, ""); err != nil {
		return nil, fmt.Errorf("marking %s chunked: %w", doc.ID, err)
	}

	generation := doc.Generation + 1
	for i := range chunks {
		chunks[i].Generation = generation
	}

	p.tagChunks(ctx, chunks, log)

	embedded, batchReport, err := p.batcher.EmbedChunks(ctx, chunks)
	if err != nil {
		return nil, p.fail(ctx, doc.ID, fmt.Errorf("embedding: %w", err))
	}

	result := &Result{
		DocumentID:     doc.ID,
		Generation:     generation,
		ChunkCount:     len(chunks),
		EmbeddedChunks: batchReport.EmbeddedChunks,
		TruncatedChars: report.TruncatedChars,
		FailedChunks:   batchReport.Failures,
	}

	if len(batchReport.Failures) > 0 {
		EmbeddingFailures.Add(float64(len(batchReport.Failures)))
	}

	ratio := float64(batchReport.EmbeddedChunks) / float64(len(chunks))
	if ratio < p.config.MinEmbedSuccessRatio {
		err := fmt.Errorf("embedding incomplete: %d of %d chunks embedded", batchReport.EmbeddedChunks, len(chunks))
		result.Status = document.StatusFailed
		return result, p.fail(ctx, doc.ID, err)
	}

	if err := p.vectors.Upsert(ctx, p.buildRecords(doc, embedded, generation)); err != nil {
		return nil, p.fail(ctx, doc.ID, fmt.Errorf("storing chunk records: %w", err))
	}

	retired, err := p.docs.SwapGeneration(ctx, doc.ID, generation, len(embedded), report.TruncatedChars)
	if err != nil {
		return nil, p.fail(ctx, doc.ID, fmt.Errorf("publishing generation: %w", err))
	}

	// The swap has committed, so the old generation is unreachable by
	// queries and can be retired. Failure here only leaks storage.
	if retired > 0 {
		if err := p.vectors.DeleteDocument(ctx, doc.ID, retired); err != nil {
			log.Warn("failed to retire superseded generation",
				zap.Int("generation", retired),
				zap.Error(err),
			)
		}
	}

	result.Status = document.StatusEmbedded
	DocumentsProcessed.WithLabelValues("embedded").Inc()
	log.Info("document processed",
		zap.Int("generation", generation),
		zap.Int("chunks", len(chunks)),
		zap.Int("embedded", batchReport.EmbeddedChunks),
		zap.Int("truncated_chars", report.TruncatedChars),
		zap.Duration("took", time.Since(start)),
	)

	return result, nil
}

// Remove deletes a document and its searchable chunks.
func (p *Pipeline) Remove(ctx context.Context, documentID string) error {
	doc, err := p.docs.Get(ctx, documentID)
	if err != nil {
		return err
	}

	if doc.Generation > 0 {
		if err := p.vectors.DeleteDocument(ctx, doc.ID, doc.Generation); err != nil {
			return fmt.Errorf("deleting chunk records for %s: %w", doc.ID, err)
		}
	}
	return p.docs.Delete(ctx, doc.ID)
}

// tagChunks populates entities in place. A tagger failure degrades that
// chunk to an empty entity map rather than dropping it.
func (p *Pipeline) tagChunks(ctx context.Context, chunks []document.Chunk, log *zap.Logger) {
	for i := range chunks {
		entities, err := p.tagger.Tag(ctx, chunks[i].Text)
		if err != nil {
			TaggingFailures.Inc()
			log.Warn("entity tagging degraded",
				zap.String("chunk_id", chunks[i].ID),
				zap.Error(err),
			)
			entities = map[string][]document.Entity{}
		}
		chunks[i].Entities = entities
	}
}

func (p *Pipeline) buildRecords(doc *document.Document, chunks []document.Chunk, generation int) []vectorstore.Record {
	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{
			ChunkID:       c.ID,
			DocumentID:    doc.ID,
			Text:          c.Text,
			Embedding:     c.Embedding,
			SequenceIndex: c.SequenceIndex,
			CharStart:     c.CharStart,
			CharEnd:       c.CharEnd,
			SectionHint:   c.SectionHint,
			Filename:      doc.Filename,
			Categories:    doc.Categories,
			Generation:    generation,
			UploadedAt:    doc.UploadedAt,
			ModelID:       c.EmbeddingModelID,
		}
	}
	return records
}

// fail marks the document failed and returns the run error. The previous
// generation, if any, stays searchable.
func (p *Pipeline) fail(ctx context.Context, documentID string, runErr error) error {
	DocumentsProcessed.WithLabelValues("failed").Inc()
	if err := p.docs.UpdateStatus(ctx, documentID, document.StatusFailed, runErr.Error()); err != nil {
		p.logger.Error("failed to record failure status",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
	}
	return fmt.Errorf("processing document %s: %w", documentID, runErr)
}
