package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/chartd/internal/document"
	"github.com/fyrsmithlabs/chartd/internal/vectorstore"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrModelMismatch is returned when chunks stamped with one embedding model
// are submitted to a batcher running a different model. Mixing vectors from
// different models in one collection silently corrupts similarity scores,
// so this fails the whole call before any batch is sent.
var ErrModelMismatch = errors.New("embedding model mismatch")

// RetryPolicy configures retry behavior for failed embedding batches.
type RetryPolicy struct {
	// MaxRetries is the maximum number of retry attempts per batch.
	// Default: 3
	MaxRetries int `koanf:"max_retries"`

	// InitialBackoff is the initial backoff duration.
	// Default: 1 second
	InitialBackoff time.Duration `koanf:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration.
	// Default: 30 seconds
	MaxBackoff time.Duration `koanf:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff.
	// Default: 2
	BackoffMultiplier float64 `koanf:"backoff_multiplier"`

	// Jitter is the random fraction added to each backoff, in [0, 1).
	// 0.2 stretches a sleep by up to 20% so concurrent batches do not
	// retry in lockstep. Zero disables jitter.
	Jitter float64 `koanf:"jitter"`
}

// DefaultRetryPolicy returns the default retry policy for embedding batches.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ApplyDefaults sets default values for unset fields.
func (p *RetryPolicy) ApplyDefaults() {
	defaults := DefaultRetryPolicy()

	if p.MaxRetries == 0 {
		p.MaxRetries = defaults.MaxRetries
	}
	if p.InitialBackoff == 0 {
		p.InitialBackoff = defaults.InitialBackoff
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = defaults.MaxBackoff
	}
	if p.BackoffMultiplier == 0 {
		p.BackoffMultiplier = defaults.BackoffMultiplier
	}
}

// BatcherConfig holds configuration for the embedding batcher.
type BatcherConfig struct {
	// MaxBatchSize is the maximum number of chunks per embedding request.
	// Default: 32
	MaxBatchSize int `koanf:"max_batch_size"`

	// MaxConcurrency bounds the number of in-flight embedding requests.
	// Default: 4
	MaxConcurrency int `koanf:"max_concurrency"`

	// BatchTimeout bounds each embedding request attempt.
	// Default: 30 seconds
	BatchTimeout time.Duration `koanf:"batch_timeout"`

	// RequestsPerSecond rate-limits embedding requests across all workers.
	// Zero disables rate limiting.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// ModelID pins the expected embedding model. When set, constructing a
	// batcher over an embedder reporting a different model fails.
	ModelID string `koanf:"model_id"`

	// Retry is the retry policy for failed batches.
	Retry RetryPolicy `koanf:"retry"`
}

// ApplyDefaults sets default values for unset fields.
func (c *BatcherConfig) ApplyDefaults() {
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = 32
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 4
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 30 * time.Second
	}
	c.Retry.ApplyDefaults()
}

// Validate validates the configuration.
func (c *BatcherConfig) Validate() error {
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("%w: max batch size must be positive", ErrInvalidConfig)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("%w: max concurrency must be positive", ErrInvalidConfig)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter >= 1 {
		return fmt.Errorf("%w: jitter must be in [0, 1), got %g", ErrInvalidConfig, c.Retry.Jitter)
	}
	return nil
}

// ChunkFailure records one chunk that could not be embedded.
type ChunkFailure struct {
	ChunkID    string `json:"chunk_id"`
	BatchIndex int    `json:"batch_index"`
	Reason     string `json:"reason"`
}

// BatchReport summarizes one EmbedChunks run.
type BatchReport struct {
	TotalChunks    int            `json:"total_chunks"`
	EmbeddedChunks int            `json:"embedded_chunks"`
	BatchCount     int            `json:"batch_count"`
	FailedBatches  int            `json:"failed_batches"`
	Failures       []ChunkFailure `json:"failures,omitempty"`
}

// Complete reports whether every chunk was embedded.
func (r *BatchReport) Complete() bool {
	return r.EmbeddedChunks == r.TotalChunks
}

// Batcher embeds chunk sets in bounded batches.
//
// A failed batch is retried per the policy and then recorded in the report;
// it never aborts the other batches. The one exception is a model mismatch,
// which cancels the whole run. Callers decide from the report whether the
// partial result is acceptable.
type Batcher struct {
	embedder vectorstore.Embedder
	config   BatcherConfig
	limiter  *rate.Limiter
	metrics  *Metrics
	logger   *zap.Logger

	// sleep waits between retry attempts. Swapped in tests to avoid
	// real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBatcher creates a Batcher over the given embedder.
func NewBatcher(embedder vectorstore.Embedder, config BatcherConfig, logger *zap.Logger) (*Batcher, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if config.ModelID != "" && embedder.ModelID() != config.ModelID {
		return nil, fmt.Errorf("%w: batcher pinned to %q but embedder reports %q",
			ErrModelMismatch, config.ModelID, embedder.ModelID())
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &Batcher{
		embedder: embedder,
		config:   config,
		limiter:  limiter,
		metrics:  NewMetrics(logger),
		logger:   logger.Named("batcher"),
		sleep:    sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// EmbedChunks embeds all chunks and returns the successfully embedded subset,
// ordered by document ID and sequence index, together with a report covering
// every chunk. The error return is reserved for calls that could not start at
// all and for model mismatches; per-batch failures are reported, not returned.
func (b *Batcher) EmbedChunks(ctx context.Context, chunks []document.Chunk) ([]document.Chunk, *BatchReport, error) {
	report := &BatchReport{TotalChunks: len(chunks)}
	if len(chunks) == 0 {
		return nil, report, nil
	}

	modelID := b.embedder.ModelID()
	for _, c := range chunks {
		if c.EmbeddingModelID != "" && c.EmbeddingModelID != modelID {
			return nil, nil, fmt.Errorf("%w: chunk %s stamped with %q, embedder reports %q",
				ErrModelMismatch, c.ID, c.EmbeddingModelID, modelID)
		}
	}

	batches := splitBatches(chunks, b.config.MaxBatchSize)
	report.BatchCount = len(batches)

	// A model change mid-run cancels the remaining batches: vectors from
	// two models must never mix in one generation.
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		embedded []document.Chunk
		modelErr error
	)

	sem := make(chan struct{}, b.config.MaxConcurrency)
	for i, batch := range batches {
		wg.Add(1)
		sem <- struct{}{}
		go func(batchIndex int, batch []document.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := b.embedBatch(batchCtx, batchIndex, batch, modelID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, ErrModelMismatch) && modelErr == nil {
					modelErr = err
					cancel()
				}
				report.FailedBatches++
				for _, c := range batch {
					report.Failures = append(report.Failures, ChunkFailure{
						ChunkID:    c.ID,
						BatchIndex: batchIndex,
						Reason:     err.Error(),
					})
				}
				return
			}
			embedded = append(embedded, result...)
			report.EmbeddedChunks += len(result)
		}(i, batch)
	}
	wg.Wait()

	if modelErr != nil {
		return nil, nil, modelErr
	}

	sort.Slice(embedded, func(i, j int) bool {
		if embedded[i].DocumentID != embedded[j].DocumentID {
			return embedded[i].DocumentID < embedded[j].DocumentID
		}
		return embedded[i].SequenceIndex < embedded[j].SequenceIndex
	})
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].ChunkID < report.Failures[j].ChunkID
	})

	if report.FailedBatches > 0 {
		b.logger.Warn("embedding run completed with failures",
			zap.Int("total_chunks", report.TotalChunks),
			zap.Int("embedded_chunks", report.EmbeddedChunks),
			zap.Int("failed_batches", report.FailedBatches),
		)
	}

	return embedded, report, nil
}

// embedBatch runs one batch through the embedder with retry. On success the
// returned chunks carry their embeddings and the model stamp.
func (b *Batcher) embedBatch(ctx context.Context, batchIndex int, batch []document.Chunk, modelID string) ([]document.Chunk, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	policy := b.config.Retry
	backoff := policy.InitialBackoff

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vectors, err := b.tryEmbed(ctx, texts)
		if err == nil {
			if len(vectors) != len(batch) {
				return nil, fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingFailed, len(vectors), len(batch))
			}
			if current := b.embedder.ModelID(); current != modelID {
				return nil, fmt.Errorf("%w: embedder switched from %q to %q mid-run",
					ErrModelMismatch, modelID, current)
			}
			result := make([]document.Chunk, len(batch))
			for i, c := range batch {
				c.Embedding = vectors[i]
				c.EmbeddingModelID = modelID
				result[i] = c
			}
			if attempt > 0 {
				b.logger.Info("batch recovered after retries",
					zap.Int("batch", batchIndex),
					zap.Int("attempts", attempt+1),
				)
			}
			return result, nil
		}

		lastErr = err

		// Context errors and empty input never recover on retry.
		if errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyInput) {
			return nil, err
		}

		if attempt == policy.MaxRetries {
			break
		}

		delay := backoff
		if policy.Jitter > 0 {
			delay += time.Duration(policy.Jitter * rand.Float64() * float64(backoff))
		}

		b.metrics.RecordRetry(ctx, modelID)
		b.logger.Debug("batch failed, retrying",
			zap.Int("batch", batchIndex),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		if err := b.sleep(ctx, delay); err != nil {
			return nil, err
		}
		backoff = time.Duration(float64(backoff) * policy.BackoffMultiplier)
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}

	return nil, fmt.Errorf("batch %d failed after %d retries: %w", batchIndex, policy.MaxRetries, lastErr)
}

func (b *Batcher) tryEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, b.config.BatchTimeout)
	defer cancel()
	return b.embedder.EmbedDocuments(attemptCtx, texts)
}

// splitBatches splits chunks into batches of at most size elements.
func splitBatches(chunks []document.Chunk, size int) [][]document.Chunk {
	var batches [][]document.Chunk
	for start := 0; start < len(chunks); start += size {
		end := start + size
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[start:end])
	}
	return batches
}
