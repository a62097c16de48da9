// Package embedding provides a provider-agnostic batch embedding
// client. Rather than an interface hierarchy, a Client is a tagged
// variant over the supported providers, following the capability set
// {embedBatch, dimensions, model}.
package embedding

import (
	"context"
	"fmt"
	"math"
)

// kind tags which provider variant a Client holds.
type kind int

const (
	kindOpenAI kind = iota
	kindGoogle
)

// Client embeds text batches into fixed-dimension vectors. Construct
// one with NewOpenAI or NewGoogle.
type Client struct {
	kind       kind
	model      string
	dimension  int
	normalize  bool // Google-style: L2-normalize if not pre-normalized

	openai *openAIBackend
	google *googleBackend
}

// Dimensions returns the client's currently declared vector dimension.
// For OpenAI-style clients this is the requested dimension until the
// first call reveals a mismatch; for Google-style clients it starts at
// the configured default and is corrected after the first call.
func (c *Client) Dimensions() int { return c.dimension }

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// EmbedBatch embeds texts into vectors, one per input, preserving
// order. An empty input returns an empty result without a network
// call. On a mismatch between the configured and provider-reported
// dimension, the client's declared dimension is updated to match.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var vectors [][]float32
	var err error

	switch c.kind {
	case kindOpenAI:
		vectors, err = c.openai.embed(ctx, texts, c.dimension)
	case kindGoogle:
		vectors, err = c.google.embed(ctx, texts)
	default:
		return nil, fmt.Errorf("embedding: unknown client kind %d", c.kind)
	}
	if err != nil {
		return nil, err
	}

	if len(vectors) > 0 {
		actual := len(vectors[0])
		if actual != c.dimension {
			c.dimension = actual
		}
	}

	if c.normalize {
		for _, v := range vectors {
			l2Normalize(v)
		}
	}

	return vectors, nil
}

// l2Normalize scales v to unit length in place. A zero vector is left
// unchanged.
func l2Normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
}
