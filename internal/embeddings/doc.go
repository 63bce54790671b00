// Package embeddings provides embedding generation via multiple providers.
//
// Supports FastEmbed (local ONNX) and TEI (external service) providers.
// Factory pattern enables provider selection at runtime with automatic
// dimension detection for common models. The Batcher wraps a provider to
// embed chunk sets in bounded batches with retry and failure isolation.
package embeddings
