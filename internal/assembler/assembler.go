// Package assembler builds the final context block handed to the answering
// model, with numbered citations back to the source chunks.
package assembler

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/chartd/internal/ranker"
)

// excerptLength is the maximum citation excerpt length in runes.
const excerptLength = 160

// Citation maps one numbered context snippet back to its source.
type Citation struct {
	// RefIndex is the 1-based snippet number as it appears in the
	// context text, e.g. 2 for "[2]".
	RefIndex int `json:"ref_index"`

	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`

	// SectionHint is the detected clinical section, empty if none.
	SectionHint string `json:"section_hint,omitempty"`

	// Excerpt is the beginning of the cited chunk.
	Excerpt string `json:"excerpt"`
}

// Assemble formats ranked results into a context block of numbered
// snippets within the character budget.
//
// Chunks are taken whole or not at all, in rank order: assembly stops at
// the first chunk that would push the block past maxChars, even when a
// later, smaller chunk would still fit. Undershooting the budget keeps
// the context a strict rank prefix, so a lower-ranked chunk never
// displaces a higher-ranked one. A budget of zero or less means
// unlimited. Empty input yields an empty block and no citations.
func Assemble(results []ranker.Result, maxChars int) (string, []Citation) {
	if len(results) == 0 {
		return "", nil
	}

	var (
		b         strings.Builder
		citations []Citation
		used      int
	)

	for _, r := range results {
		snippet := fmt.Sprintf("[%d] %s", len(citations)+1, r.Text)
		cost := utf8.RuneCountInString(snippet)
		if used > 0 {
			cost += 2 // separator
		}
		if maxChars > 0 && used+cost > maxChars {
			break
		}

		if used > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(snippet)
		used += cost

		citations = append(citations, Citation{
			RefIndex:    len(citations) + 1,
			ChunkID:     r.ChunkID,
			DocumentID:  r.DocumentID,
			Filename:    r.Filename,
			SectionHint: r.SectionHint,
			Excerpt:     excerpt(r.Text),
		})
	}

	return b.String(), citations
}

// excerpt trims text to the excerpt length at a rune boundary.
func excerpt(text string) string {
	if utf8.RuneCountInString(text) <= excerptLength {
		return text
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:excerptLength]), " ") + "..."
}
