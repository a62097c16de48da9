package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// googleBackend talks to the Gemini embedding API. It reports whatever
// dimension the provider actually returns and, unless the provider
// already pre-normalizes its output, the Client L2-normalizes each
// vector.
type googleBackend struct {
	client *genai.Client
	model  string
}

// GoogleConfig configures the Google-style variant. Dimension is the
// caller's best-known declared dimension for the model (used to size
// the vector store ahead of the first real embed call); EmbedBatch
// corrects it once the provider's actual output length is observed.
type GoogleConfig struct {
	APIKey    string
	Model     string // e.g. "text-embedding-004"
	Dimension int
}

// NewGoogle constructs a Google-style embedding Client backed by
// google.golang.org/genai.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: create genai client: %w", err)
	}

	return &Client{
		kind:      kindGoogle,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		normalize: true,
		google:    &googleBackend{client: client, model: cfg.Model},
	}, nil
}

func (b *googleBackend) embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	resp, err := b.client.Models.EmbedContent(ctx, b.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("embedding: gemini request failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}
