package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDimensionFromModel(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"BAAI/bge-small-en-v1.5", 384},
		{"BAAI/bge-base-en-v1.5", 768},
		{"BAAI/bge-small-zh-v1.5", 512},
		{"sentence-transformers/all-MiniLM-L6-v2", 384},
		{"custom-base-model", 768},
		{"custom-large-model", 1024},
		{"custom-small-model", 384},
		{"completely-unknown", 384},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, detectDimensionFromModel(tt.model))
		})
	}
}

func TestNewProviderTEI(t *testing.T) {
	p, err := NewProvider(ProviderConfig{
		Provider: "tei",
		Model:    "BAAI/bge-base-en-v1.5",
		BaseURL:  "http://localhost:8080",
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 768, p.Dimension())
	assert.Equal(t, "BAAI/bge-base-en-v1.5", p.ModelID())
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Provider: "cohere"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
