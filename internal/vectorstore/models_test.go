package vectorstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "chart_chunks", false},
		{"valid with digits", "chunks_v2", false},
		{"empty", "", true},
		{"uppercase", "ChartChunks", true},
		{"spaces", "chart chunks", true},
		{"path traversal", "../etc", true},
		{"too long", strings.Repeat("a", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollectionName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCollectionName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRecordFromMetadataMissingFields(t *testing.T) {
	// Sparse payloads must not fail the query, numeric fields stay zero.
	r := recordFromMetadata("doc-1_000", "some text", nil, map[string]string{
		keyDocumentID: "doc-1",
	})

	assert.Equal(t, "doc-1_000", r.ChunkID)
	assert.Equal(t, "doc-1", r.DocumentID)
	assert.Equal(t, "some text", r.Text)
	assert.Zero(t, r.SequenceIndex)
	assert.Zero(t, r.Generation)
	assert.Empty(t, r.Categories)
	assert.True(t, r.UploadedAt.IsZero())
}

func TestRecordValidate(t *testing.T) {
	valid := Record{ChunkID: "doc-1_000", DocumentID: "doc-1", Embedding: []float32{1}}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{"empty chunk id", func(r *Record) { r.ChunkID = "" }},
		{"empty document id", func(r *Record) { r.DocumentID = "" }},
		{"no embedding", func(r *Record) { r.Embedding = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			assert.ErrorIs(t, r.Validate(), ErrEmptyRecords)
		})
	}
}
