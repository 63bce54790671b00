package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBuilder(t *testing.T, cfg Config) *Builder {
	t.Helper()
	b, err := NewBuilder(cfg, zap.NewNop())
	require.NoError(t, err)
	return b
}

// sentenceText builds a sentence of exactly n characters including the
// terminating period and one trailing space.
func sentenceText(n int) string {
	return strings.Repeat("a", n-2) + ". "
}

func TestBuildEmptyInput(t *testing.T) {
	b := newTestBuilder(t, Config{})

	for _, in := range []string{"", "   ", "\n\n"} {
		chunks, report, err := b.Build("doc-1", in)
		require.NoError(t, err)
		assert.Empty(t, chunks)
		assert.Equal(t, 0, report.TruncatedChars)
	}
}

func TestBuildShortTextSingleChunk(t *testing.T) {
	b := newTestBuilder(t, Config{})

	text := "Patient presents with chest pain. No prior cardiac history."
	chunks, report, err := b.Build("doc-1", text)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.Equal(t, "doc-1_000", c.ID)
	assert.Equal(t, "doc-1", c.DocumentID)
	assert.Equal(t, 0, c.SequenceIndex)
	assert.Equal(t, 0, c.CharStart)
	assert.Equal(t, len(text), c.CharEnd)
	assert.Equal(t, text, c.Text)
	assert.False(t, report.Truncated())
}

func TestBuildExactScenario2400(t *testing.T) {
	// 24 sentences of exactly 100 characters each: 2400 characters total.
	// With target 1000 and overlap 200 this must yield exactly 3 chunks.
	text := strings.Repeat(sentenceText(100), 24)
	require.Len(t, text, 2400)

	b := newTestBuilder(t, Config{TargetSize: 1000, OverlapSize: 200})

	chunks, report, err := b.Build("doc-1", text)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.False(t, report.Truncated())

	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, 1000, chunks[0].CharEnd)
	assert.GreaterOrEqual(t, chunks[1].CharStart, 800)
	assert.Equal(t, 2400, chunks[2].CharEnd)
}

func TestBuildChunkTextMatchesOffsets(t *testing.T) {
	text := strings.Repeat(sentenceText(80), 40)
	b := newTestBuilder(t, Config{TargetSize: 500, OverlapSize: 100})

	chunks, _, err := b.Build("doc-1", text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.Less(t, c.CharStart, c.CharEnd)
		assert.Equal(t, text[c.CharStart:c.CharEnd], c.Text)
	}
}

func TestBuildReconstruction(t *testing.T) {
	// Concatenating chunks after removing overlaps must reproduce the
	// source text byte for byte.
	text := strings.Repeat(sentenceText(73), 50)
	b := newTestBuilder(t, Config{TargetSize: 600, OverlapSize: 120, MaxChunksPerDoc: 100})

	chunks, report, err := b.Build("doc-1", text)
	require.NoError(t, err)
	require.False(t, report.Truncated())

	var rebuilt strings.Builder
	pos := 0
	for _, c := range chunks {
		require.LessOrEqual(t, c.CharStart, pos, "chunks must not leave gaps")
		rebuilt.WriteString(c.Text[pos-c.CharStart:])
		pos = c.CharEnd
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestBuildOverlapProperty(t *testing.T) {
	text := strings.Repeat(sentenceText(90), 30)
	b := newTestBuilder(t, Config{TargetSize: 700, OverlapSize: 180})

	chunks, _, err := b.Build("doc-1", text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		// The next chunk starts inside the previous one, within the
		// overlap budget rounded to a sentence boundary.
		assert.Less(t, cur.CharStart, prev.CharEnd)
		assert.GreaterOrEqual(t, cur.CharStart, prev.CharEnd-180)

		overlap := prev.CharEnd - cur.CharStart
		assert.Equal(t, prev.Text[len(prev.Text)-overlap:], cur.Text[:overlap])
	}
}

func TestBuildIdempotent(t *testing.T) {
	text := strings.Repeat(sentenceText(95), 25)
	b := newTestBuilder(t, Config{TargetSize: 800, OverlapSize: 160})

	first, _, err := b.Build("doc-1", text)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, _, err := b.Build("doc-1", text)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestBuildOversizedSentenceEmittedWhole(t *testing.T) {
	// A giant table row with no sentence boundaries must come through as
	// a single oversized chunk, never split or dropped.
	row := strings.Repeat("col1,col2,col3,", 200) // 3000 chars, no terminator
	text := "Lab results below. " + row

	b := newTestBuilder(t, Config{TargetSize: 1000, OverlapSize: 200})

	chunks, report, err := b.Build("doc-1", text)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.False(t, report.Truncated())

	assert.Equal(t, "Lab results below. ", chunks[0].Text)
	assert.Equal(t, row, chunks[1].Text)
	assert.Greater(t, len(chunks[1].Text), 1000)
}

func TestBuildTruncatePolicyReportsDroppedChars(t *testing.T) {
	text := strings.Repeat(sentenceText(100), 40) // 4000 chars
	b := newTestBuilder(t, Config{
		TargetSize:      1000,
		OverlapSize:     200,
		MaxChunksPerDoc: 2,
		Overflow:        OverflowTruncate,
	})

	chunks, report, err := b.Build("doc-1", text)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.True(t, report.Truncated())
	assert.Equal(t, len(text)-chunks[1].CharEnd, report.TruncatedChars)
	assert.Greater(t, report.TruncatedChars, 0)
}

func TestBuildExtendLastPolicyKeepsEverything(t *testing.T) {
	text := strings.Repeat(sentenceText(100), 40)
	b := newTestBuilder(t, Config{
		TargetSize:      1000,
		OverlapSize:     200,
		MaxChunksPerDoc: 2,
		Overflow:        OverflowExtendLast,
	})

	chunks, report, err := b.Build("doc-1", text)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.False(t, report.Truncated())
	last := chunks[len(chunks)-1]
	assert.Equal(t, len(text), last.CharEnd)
	assert.Equal(t, text[last.CharStart:], last.Text)
}

func TestBuildSequenceIndexOrdering(t *testing.T) {
	text := strings.Repeat(sentenceText(100), 30)
	b := newTestBuilder(t, Config{TargetSize: 600, OverlapSize: 100})

	chunks, _, err := b.Build("doc-9", text)
	require.NoError(t, err)

	for i, c := range chunks {
		assert.Equal(t, i, c.SequenceIndex)
		assert.Equal(t, "doc-9", c.DocumentID)
	}
	// Deterministic IDs: document id plus zero-padded index.
	assert.Equal(t, "doc-9_000", chunks[0].ID)
	assert.Equal(t, "doc-9_001", chunks[1].ID)
}

func TestBuildSectionHints(t *testing.T) {
	text := "Medications: metformin 500mg twice daily, lisinopril 10mg daily. " +
		"Patient reports good adherence."
	b := newTestBuilder(t, Config{})

	chunks, _, err := b.Build("doc-1", text)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "medications", chunks[0].SectionHint)
}

func TestBuildNoSectionHint(t *testing.T) {
	chunks, _, err := newTestBuilder(t, Config{}).Build("doc-1", "The patient walked two miles today.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].SectionHint)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults valid", DefaultConfig(), false},
		{"negative overlap", Config{TargetSize: 1000, OverlapSize: -1, MaxChunksPerDoc: 50, Overflow: OverflowTruncate}, true},
		{"overlap not smaller than target", Config{TargetSize: 200, OverlapSize: 200, MaxChunksPerDoc: 50, Overflow: OverflowTruncate}, true},
		{"zero target", Config{TargetSize: -5, OverlapSize: 0, MaxChunksPerDoc: 50, Overflow: OverflowTruncate}, true},
		{"unknown policy", Config{TargetSize: 1000, OverlapSize: 100, MaxChunksPerDoc: 50, Overflow: "drop"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitSentences(t *testing.T) {
	text := "First sentence. Second one? Third!\nFourth on a new line."
	units := splitSentences(text)
	require.Len(t, units, 4)

	// Units tile the text with no gaps.
	assert.Equal(t, 0, units[0].start)
	for i := 1; i < len(units); i++ {
		assert.Equal(t, units[i-1].end, units[i].start)
	}
	assert.Equal(t, len(text), units[len(units)-1].end)

	// Decimal points inside numbers do not split.
	units = splitSentences("Dose is 0.5 mg daily. Next.")
	assert.Len(t, units, 2)
}
