package entity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexTaggerMedications(t *testing.T) {
	tagger := NewRegexTagger(0)

	entities, err := tagger.Tag(context.Background(), "Started metformin 500mg twice daily. Continue lisinopril.")
	require.NoError(t, err)

	var names []string
	for _, e := range entities[CategoryMedications] {
		names = append(names, e.Name)
		assert.InDelta(t, 0.7, e.Confidence, 0.001)
	}
	assert.Contains(t, names, "metformin")
	assert.Contains(t, names, "lisinopril")
}

func TestRegexTaggerConditionsAndAnatomy(t *testing.T) {
	tagger := NewRegexTagger(0)

	entities, err := tagger.Tag(context.Background(),
		"History of type 2 diabetes and hypertension. Echocardiogram showed normal left ventricle.")
	require.NoError(t, err)

	assert.NotEmpty(t, entities[CategoryConditions])
	assert.NotEmpty(t, entities[CategoryAnatomy])
	assert.NotEmpty(t, entities[CategoryProcedures])
}

func TestRegexTaggerDeduplicates(t *testing.T) {
	tagger := NewRegexTagger(0)

	entities, err := tagger.Tag(context.Background(), "aspirin, aspirin, and more aspirin")
	require.NoError(t, err)
	assert.Len(t, entities[CategoryMedications], 1)
}

func TestRegexTaggerEmptyText(t *testing.T) {
	tagger := NewRegexTagger(0)

	entities, err := tagger.Tag(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestRegexTaggerMinConfidenceFiltersAll(t *testing.T) {
	tagger := NewRegexTagger(0.9) // above the fixed 0.7 pattern score

	entities, err := tagger.Tag(context.Background(), "metformin for diabetes")
	require.NoError(t, err)
	assert.Empty(t, entities[CategoryMedications])
	assert.Empty(t, entities[CategoryConditions])
}

func TestNoopTagger(t *testing.T) {
	entities, err := NoopTagger{}.Tag(context.Background(), "metformin for diabetes")
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestNewTaggerSelection(t *testing.T) {
	tagger, err := NewTagger(Config{})
	require.NoError(t, err)
	assert.IsType(t, &RegexTagger{}, tagger)

	tagger, err = NewTagger(Config{Provider: "noop"})
	require.NoError(t, err)
	assert.IsType(t, NoopTagger{}, tagger)

	_, err = NewTagger(Config{Provider: "remote"})
	assert.ErrorIs(t, err, ErrInvalidConfig) // missing base URL

	_, err = NewTagger(Config{Provider: "comprehend"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRemoteTagger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)

		var req extractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Text)

		resp := map[string]interface{}{
			"entities": map[string]interface{}{
				"medications": []map[string]interface{}{
					{"name": "warfarin", "confidence": 0.95},
					{"name": "unsure-drug", "confidence": 0.2},
				},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	tagger, err := NewRemoteTagger(RemoteConfig{BaseURL: server.URL, MinConfidence: 0.5})
	require.NoError(t, err)

	entities, err := tagger.Tag(context.Background(), "patient on warfarin")
	require.NoError(t, err)

	require.Len(t, entities[CategoryMedications], 1)
	assert.Equal(t, "warfarin", entities[CategoryMedications][0].Name)
}

func TestRemoteTaggerServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	tagger, err := NewRemoteTagger(RemoteConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = tagger.Tag(context.Background(), "text")
	assert.ErrorIs(t, err, ErrExtractionFailed)
}
