package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/knoguchi/docsearch/internal/ratelimit"
)

// openAIBackend talks to the OpenAI-compatible embeddings REST API. It
// honors a requested "dimensions" option when the caller asked for one.
type openAIBackend struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// OpenAIConfig configures the OpenAI-style variant.
type OpenAIConfig struct {
	BaseURL    string // default "https://api.openai.com/v1"
	APIKey     string
	Model      string
	Dimensions int // 0 = model default
}

// NewOpenAI constructs an OpenAI-style embedding Client.
func NewOpenAI(cfg OpenAIConfig) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &Client{
		kind:      kindOpenAI,
		model:     cfg.Model,
		dimension: cfg.Dimensions,
		openai: &openAIBackend{
			baseURL: base,
			apiKey:  cfg.APIKey,
			model:   cfg.Model,
			client:  &http.Client{Timeout: 30 * time.Second},
		},
	}
}

type openAIEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openAIStatusError struct {
	status     int
	message    string
	retryAfter string
}

func (e *openAIStatusError) Error() string   { return fmt.Sprintf("openai embedding: %s", e.message) }
func (e *openAIStatusError) StatusCode() int { return e.status }
func (e *openAIStatusError) RetryAfter() (time.Duration, bool) {
	return ratelimit.ParseRetryAfter(e.retryAfter)
}

func (b *openAIBackend) embed(ctx context.Context, texts []string, dimensions int) ([][]float32, error) {
	body := openAIEmbedRequest{Input: texts, Model: b.model}
	if dimensions > 0 {
		body.Dimensions = dimensions
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embedding: create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: openai request failed: %w", err)
	}
	defer resp.Body.Close()

	var result openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("embedding: decode openai response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != nil {
			msg = result.Error.Message
		}
		return nil, &openAIStatusError{status: resp.StatusCode, message: msg, retryAfter: resp.Header.Get("Retry-After")}
	}

	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding: index %d out of range [0, %d)", d.Index, len(texts))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
