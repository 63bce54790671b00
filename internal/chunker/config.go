package chunker

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig indicates invalid chunking configuration.
var ErrInvalidConfig = errors.New("invalid chunking configuration")

// OverflowPolicy controls what happens to text remaining after the
// per-document chunk cap is reached.
type OverflowPolicy string

const (
	// OverflowTruncate drops the remaining text and reports how many
	// characters were lost.
	OverflowTruncate OverflowPolicy = "truncate"

	// OverflowExtendLast attaches the remaining text to the final chunk,
	// letting it exceed the target size. Nothing is lost.
	OverflowExtendLast OverflowPolicy = "extend_last"
)

// Config holds chunk builder tuning parameters.
//
// Medical documents mix dense tables and prose, so the thresholds are
// per-builder configuration rather than package constants: different
// document categories can run different policies concurrently.
type Config struct {
	// TargetSize is the chunk size ceiling in characters. A chunk is
	// emitted once adding the next sentence would push it past this.
	// Default: 1000.
	TargetSize int `koanf:"target_size"`

	// OverlapSize is the number of trailing characters from an emitted
	// chunk that seed the next one, rounded down to a sentence boundary.
	// Default: 200 (20% of the default target).
	OverlapSize int `koanf:"overlap_size"`

	// MaxChunksPerDoc caps how many chunks a single document may produce.
	// Default: 50.
	MaxChunksPerDoc int `koanf:"max_chunks_per_doc"`

	// Overflow selects the policy for text beyond the chunk cap.
	// Default: OverflowTruncate.
	Overflow OverflowPolicy `koanf:"overflow"`
}

// DefaultConfig returns the default chunking configuration.
func DefaultConfig() Config {
	return Config{
		TargetSize:      1000,
		OverlapSize:     200,
		MaxChunksPerDoc: 50,
		Overflow:        OverflowTruncate,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.TargetSize == 0 {
		c.TargetSize = def.TargetSize
	}
	if c.OverlapSize == 0 {
		c.OverlapSize = def.OverlapSize
	}
	if c.MaxChunksPerDoc == 0 {
		c.MaxChunksPerDoc = def.MaxChunksPerDoc
	}
	if c.Overflow == "" {
		c.Overflow = def.Overflow
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.TargetSize <= 0 {
		return fmt.Errorf("%w: target size must be positive, got %d", ErrInvalidConfig, c.TargetSize)
	}
	if c.OverlapSize < 0 {
		return fmt.Errorf("%w: overlap size cannot be negative, got %d", ErrInvalidConfig, c.OverlapSize)
	}
	if c.OverlapSize >= c.TargetSize {
		return fmt.Errorf("%w: overlap size %d must be smaller than target size %d", ErrInvalidConfig, c.OverlapSize, c.TargetSize)
	}
	if c.MaxChunksPerDoc <= 0 {
		return fmt.Errorf("%w: max chunks per doc must be positive, got %d", ErrInvalidConfig, c.MaxChunksPerDoc)
	}
	if c.Overflow != OverflowTruncate && c.Overflow != OverflowExtendLast {
		return fmt.Errorf("%w: unknown overflow policy %q", ErrInvalidConfig, c.Overflow)
	}
	return nil
}
