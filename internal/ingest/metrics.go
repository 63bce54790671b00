// Package ingest provides Prometheus metrics for pipeline monitoring.
package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsProcessed counts completed pipeline runs.
	// Labels: result (embedded, failed, empty)
	DocumentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chartd",
			Subsystem: "ingest",
			Name:      "documents_processed_total",
			Help:      "Total pipeline runs by outcome",
		},
		[]string{"result"},
	)

	// ProcessDuration tracks end-to-end pipeline run duration.
	ProcessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chartd",
			Subsystem: "ingest",
			Name:      "process_duration_seconds",
			Help:      "Duration of full document pipeline runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// ChunksBuilt counts chunks produced by the chunk builder.
	ChunksBuilt = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chartd",
			Subsystem: "ingest",
			Name:      "chunks_built_total",
			Help:      "Total chunks produced across all documents",
		},
	)

	// TruncatedChars counts characters dropped by the chunk cap policy.
	TruncatedChars = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chartd",
			Subsystem: "ingest",
			Name:      "truncated_chars_total",
			Help:      "Total characters dropped when documents exceeded the chunk cap",
		},
	)

	// TaggingFailures counts degraded entity tagging runs.
	TaggingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chartd",
			Subsystem: "ingest",
			Name:      "tagging_failures_total",
			Help:      "Total chunks that proceeded without entities after a tagger failure",
		},
	)

	// EmbeddingFailures counts chunks that failed embedding after retries.
	EmbeddingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chartd",
			Subsystem: "ingest",
			Name:      "embedding_failures_total",
			Help:      "Total chunks reported failed by the embedding batcher",
		},
	)
)
