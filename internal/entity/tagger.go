// Package entity annotates chunks with medical entities and confidence
// scores.
//
// Extraction accuracy is not part of this package's contract, only the
// data shape: a mapping from entity category to an ordered list of
// named entities with confidence in [0, 1]. Implementations are
// interchangeable and selected by configuration; a tagging failure
// must never drop a chunk, callers degrade to empty entities instead.
package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/chartd/internal/document"
)

// Entity categories produced by the built-in taggers.
const (
	CategoryMedications = "medications"
	CategoryConditions  = "conditions"
	CategoryProcedures  = "procedures"
	CategoryAnatomy     = "anatomy"
)

// ErrInvalidConfig indicates invalid tagger configuration.
var ErrInvalidConfig = errors.New("invalid tagger configuration")

// Tagger extracts domain entities from chunk text.
type Tagger interface {
	// Tag returns the entities found in text, keyed by category. An empty
	// map is a valid result, not an error.
	Tag(ctx context.Context, text string) (map[string][]document.Entity, error)
}

// Config selects and configures a tagger implementation.
type Config struct {
	// Provider is the tagger type: "regex" (default), "remote", or "noop".
	Provider string `koanf:"provider"`

	// BaseURL is the extractor endpoint (remote provider only).
	BaseURL string `koanf:"base_url"`

	// MinConfidence drops entities scored below this threshold.
	MinConfidence float64 `koanf:"min_confidence"`
}

// NewTagger creates a tagger based on the configuration.
func NewTagger(cfg Config) (Tagger, error) {
	switch cfg.Provider {
	case "regex", "":
		return NewRegexTagger(cfg.MinConfidence), nil
	case "remote":
		return NewRemoteTagger(RemoteConfig{
			BaseURL:       cfg.BaseURL,
			MinConfidence: cfg.MinConfidence,
		})
	case "noop":
		return NoopTagger{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// NoopTagger returns no entities for any input. It exists so the
// pipeline can run with tagging disabled.
type NoopTagger struct{}

// Tag returns an empty entity map.
func (NoopTagger) Tag(ctx context.Context, text string) (map[string][]document.Entity, error) {
	return map[string][]document.Entity{}, nil
}
