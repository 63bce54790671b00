// Package chunker segments normalized document text into overlapping,
// size-bounded chunks aligned to sentence boundaries.
package chunker

import (
	"fmt"

	"github.com/fyrsmithlabs/chartd/internal/document"
	"go.uber.org/zap"
)

// Builder splits normalized text into chunks with provenance metadata.
//
// Build is deterministic: the same text and configuration always yield
// byte-identical chunk boundaries. The document is segmented in one
// pass over a materialized sentence list because overlap seeding needs
// lookback.
type Builder struct {
	config Config
	logger *zap.Logger
}

// BuildReport summarizes a chunking run.
type BuildReport struct {
	// ChunkCount is the number of chunks emitted.
	ChunkCount int `json:"chunk_count"`

	// SentenceCount is the number of sentence units detected.
	SentenceCount int `json:"sentence_count"`

	// TruncatedChars is how many trailing characters were dropped because
	// the chunk cap was hit under the truncate policy. Zero otherwise.
	TruncatedChars int `json:"truncated_chars"`
}

// Truncated reports whether any source text was dropped.
func (r *BuildReport) Truncated() bool {
	return r.TruncatedChars > 0
}

// NewBuilder creates a chunk builder with the given configuration.
func NewBuilder(config Config, logger *zap.Logger) (*Builder, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{config: config, logger: logger}, nil
}

// sentence is a half-open interval [start, end) into the normalized
// text. Units tile the text exactly: each includes its terminating
// punctuation and any whitespace up to the next unit, so chunk
// boundaries are always unit boundaries and chunk text is always a
// contiguous substring of the source.
type sentence struct {
	start int
	end   int
}

// Build segments normalizedText into chunks for the given document.
//
// Empty or whitespace-only input yields an empty chunk slice, which is
// a valid outcome, not an error. A single sentence longer than the
// target size is emitted as its own oversized chunk rather than split.
func (b *Builder) Build(documentID string, normalizedText string) ([]document.Chunk, *BuildReport, error) {
	if documentID == "" {
		return nil, nil, fmt.Errorf("document ID cannot be empty")
	}

	report := &BuildReport{}
	sentences := splitSentences(normalizedText)
	report.SentenceCount = len(sentences)
	if len(sentences) == 0 {
		return []document.Chunk{}, report, nil
	}

	var chunks []document.Chunk
	emit := func(start, end int) {
		seq := len(chunks)
		text := normalizedText[start:end]
		chunks = append(chunks, document.Chunk{
			ID:            document.ChunkID(documentID, seq),
			DocumentID:    documentID,
			Text:          text,
			CharStart:     start,
			CharEnd:       end,
			SequenceIndex: seq,
			SectionHint:   classifySection(text),
		})
	}

	chunkStart := sentences[0].start
	chunkEnd := chunkStart
	i := 0

	for i < len(sentences) {
		s := sentences[i]

		if s.end-chunkStart > b.config.TargetSize && chunkEnd > chunkStart {
			// Adding this sentence would exceed the target. Emit what we
			// have and seed the next chunk with the trailing overlap window.
			emit(chunkStart, chunkEnd)

			if len(chunks) == b.config.MaxChunksPerDoc {
				return b.finishAtCap(normalizedText, chunks, chunkEnd, report)
			}

			chunkStart = b.overlapStart(sentences, i, chunkStart, chunkEnd)
			chunkEnd = chunkStart
			continue
		}

		// A single sentence above the target is emitted whole: content is
		// never dropped, a giant table row just becomes an oversized chunk.
		chunkEnd = s.end
		i++
	}

	if chunkEnd > chunkStart {
		emit(chunkStart, chunkEnd)
	}

	report.ChunkCount = len(chunks)
	return chunks, report, nil
}

// overlapStart finds where the chunk following an emission begins. It
// walks sentence units backwards from the emitted chunk's end, taking
// whole trailing sentences while they fit in the overlap budget. If
// even the final sentence is larger than the budget the overlap is
// skipped entirely rather than splitting it mid-sentence. The walk
// never reaches the emitted chunk's own start, so a short chunk is
// never wholly contained in its successor.
func (b *Builder) overlapStart(sentences []sentence, next, prevStart, chunkEnd int) int {
	budgetStart := chunkEnd - b.config.OverlapSize
	start := chunkEnd
	for j := next - 1; j >= 0; j-- {
		if sentences[j].start < budgetStart || sentences[j].start <= prevStart {
			break
		}
		start = sentences[j].start
	}
	return start
}

// finishAtCap applies the overflow policy once the chunk cap is reached.
func (b *Builder) finishAtCap(text string, chunks []document.Chunk, lastEnd int, report *BuildReport) ([]document.Chunk, *BuildReport, error) {
	remaining := len(text) - lastEnd

	switch b.config.Overflow {
	case OverflowExtendLast:
		if remaining > 0 {
			last := &chunks[len(chunks)-1]
			last.CharEnd = len(text)
			last.Text = text[last.CharStart:]
		}
	default: // OverflowTruncate
		report.TruncatedChars = remaining
		if remaining > 0 {
			b.logger.Warn("chunk cap reached, truncating document text",
				zap.String("document_id", chunks[0].DocumentID),
				zap.Int("max_chunks", b.config.MaxChunksPerDoc),
				zap.Int("truncated_chars", remaining),
			)
		}
	}

	report.ChunkCount = len(chunks)
	return chunks, report, nil
}

// splitSentences divides text into sentence-like units on boundary
// punctuation (. ? !) followed by whitespace, and on newlines. The
// units tile the input: unit i ends exactly where unit i+1 starts.
func splitSentences(text string) []sentence {
	var units []sentence
	start := -1 // -1 while consuming leading whitespace

	terminated := false
	for i, r := range text {
		isSpace := r == ' ' || r == '\n'

		if start == -1 {
			if isSpace {
				continue
			}
			start = i
		}

		switch {
		case r == '.' || r == '?' || r == '!':
			terminated = true
		case r == '\n':
			// Newline always closes the current unit, including the
			// newline itself in it.
			units = append(units, sentence{start: start, end: i + 1})
			start = -1
			terminated = false
		case isSpace:
			// Whitespace after terminal punctuation closes the unit; the
			// space is carried in the unit so units tile the text.
			if terminated {
				units = append(units, sentence{start: start, end: i + 1})
				start = -1
				terminated = false
			}
		default:
			terminated = false
		}
	}

	if start != -1 {
		units = append(units, sentence{start: start, end: len(text)})
	}
	return units
}
