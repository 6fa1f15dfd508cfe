// Package embedding turns item text into fixed-dimension vectors with full
// lineage, caching, and budget enforcement.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/osintlab/trendwatch/pkg/models"
)

// Usage is the provider-reported token consumption for one call.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Provider produces one vector per input text.
type Provider interface {
	Embed(ctx context.Context, input string) (models.Vector, Usage, error)
	Model() string
}

// HTTPProvider calls an OpenAI-compatible /embeddings endpoint. Transient
// failures (5xx, 429, transport errors) are retried with exponential backoff.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	maxElapsed time.Duration
}

// NewHTTPProvider creates a provider client.
func NewHTTPProvider(baseURL, apiKey, model string, dimensions int, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: timeout},
		maxElapsed: 2 * time.Minute,
	}
}

// Model returns the provider's embedding model identifier.
func (p *HTTPProvider) Model() string { return p.model }

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage Usage `json:"usage"`
}

// Embed requests one embedding, retrying transient failures.
func (p *HTTPProvider) Embed(ctx context.Context, input string) (models.Vector, Usage, error) {
	var result embeddingResponse

	operation := func() error {
		resp, retryable, err := p.call(ctx, input)
		if err != nil {
			if retryable {
				return err
			}
			return backoff.Permanent(err)
		}
		result = *resp
		return nil
	}

	policy := backoff.WithContext(
		backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(p.maxElapsed)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, Usage{}, fmt.Errorf("embedding request failed: %w", err)
	}

	if len(result.Data) == 0 {
		return nil, Usage{}, fmt.Errorf("embedding response contained no vectors")
	}
	vec := models.Vector(result.Data[0].Embedding)
	if p.dimensions > 0 && len(vec) != p.dimensions {
		return nil, Usage{}, fmt.Errorf("embedding has %d dimensions, want %d", len(vec), p.dimensions)
	}
	return vec, result.Usage, nil
}

func (p *HTTPProvider) call(ctx context.Context, input string) (*embeddingResponse, bool, error) {
	body, err := json.Marshal(embeddingRequest{
		Model:      p.model,
		Input:      input,
		Dimensions: p.dimensions,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("transport error: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var parsed embeddingResponse
		if err := json.Unmarshal(payload, &parsed); err != nil {
			return nil, false, fmt.Errorf("failed to parse response: %w", err)
		}
		return &parsed, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("provider returned %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("provider returned %d: %s", resp.StatusCode, truncateBody(payload))
	}
}

func truncateBody(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
