package entity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fyrsmithlabs/chartd/internal/document"
)

// ErrExtractionFailed indicates the remote extractor returned an error.
var ErrExtractionFailed = errors.New("entity extraction failed")

// RemoteConfig holds configuration for the remote entity extractor.
type RemoteConfig struct {
	// BaseURL is the extractor's base URL. Required.
	BaseURL string

	// MinConfidence drops entities the backend scored below this value.
	MinConfidence float64
}

// Validate validates the configuration.
func (c RemoteConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("%w: min confidence must be in [0,1], got %f", ErrInvalidConfig, c.MinConfidence)
	}
	return nil
}

// RemoteTagger calls an external medical NLP extraction service over
// HTTP. The wire contract mirrors managed entity-detection APIs: a
// text in, a category-keyed list of scored entities out.
type RemoteTagger struct {
	config RemoteConfig
	client *http.Client
}

// NewRemoteTagger creates a tagger backed by a remote extraction service.
func NewRemoteTagger(config RemoteConfig) (*RemoteTagger, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &RemoteTagger{
		config: config,
		client: &http.Client{},
	}, nil
}

// extractRequest is the request body for the extractor's detect endpoint.
type extractRequest struct {
	Text string `json:"text"`
}

// extractResponse is the extractor's response shape.
type extractResponse struct {
	Entities map[string][]struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"entities"`
}

// Tag sends text to the remote extractor and converts its response.
func (t *RemoteTagger) Tag(ctx context.Context, text string) (map[string][]document.Entity, error) {
	body, err := json.Marshal(extractRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", t.config.BaseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrExtractionFailed, resp.StatusCode, string(respBody))
	}

	var decoded extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	entities := make(map[string][]document.Entity, len(decoded.Entities))
	for category, list := range decoded.Entities {
		for _, e := range list {
			if e.Confidence < t.config.MinConfidence {
				continue
			}
			entities[category] = append(entities[category], document.Entity{
				Name:       e.Name,
				Confidence: e.Confidence,
			})
		}
	}
	return entities, nil
}
