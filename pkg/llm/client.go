// Package llm provides the two-tier model interface: a cheap batch relevance
// classifier and a deep analyst, behind budget, pricing, and schema policy.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/osintlab/trendwatch/pkg/config"
)

// Request is one chat completion request.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature *float64
}

// Response is the model output with provider-reported token counts.
type Response struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
}

// Client is one provider endpoint.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	ProviderName() string
	PricingKey() string
}

// HTTPClient talks to an OpenAI-compatible /chat/completions endpoint.
type HTTPClient struct {
	cfg    *config.ProviderConfig
	apiKey string
	client *http.Client
}

// NewHTTPClient creates a client for one configured provider. The API key is
// resolved from the provider's configured env var.
func NewHTTPClient(cfg *config.ProviderConfig) (*HTTPClient, error) {
	apiKey, err := config.RequireSecret(cfg.APIKeyEnv)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", cfg.Name, err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		cfg:    cfg,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// ProviderName returns the registry name of this provider.
func (c *HTTPClient) ProviderName() string { return c.cfg.Name }

// PricingKey returns the operator pricing map key for this provider's model.
func (c *HTTPClient) PricingKey() string { return c.cfg.PricingKey() }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends the request, retrying transient failures with exponential
// backoff up to the provider's configured retry count.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (*Response, error) {
	maxRetries := c.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var result *Response
	operation := func() error {
		resp, retryable, err := c.call(ctx, req)
		if err != nil {
			if retryable {
				return err
			}
			return backoff.Permanent(err)
		}
		result = resp
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("provider %s: %w", c.cfg.Name, err)
	}
	return result, nil
}

func (c *HTTPClient) call(ctx context.Context, req Request) (*Response, bool, error) {
	temperature := req.Temperature
	if temperature == nil {
		temperature = c.cfg.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("transport error: %w", err)
	}
	defer httpResp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, 16<<20))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case httpResp.StatusCode == http.StatusOK:
		var parsed chatResponse
		if err := json.Unmarshal(payload, &parsed); err != nil {
			return nil, false, fmt.Errorf("failed to parse response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return nil, false, fmt.Errorf("response contained no choices")
		}
		return &Response{
			Content:      parsed.Choices[0].Message.Content,
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		}, false, nil
	case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500:
		return nil, true, fmt.Errorf("provider returned %d", httpResp.StatusCode)
	default:
		return nil, false, fmt.Errorf("provider returned %d: %s", httpResp.StatusCode, previewBody(payload))
	}
}

func previewBody(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
