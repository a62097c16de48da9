package embedding

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedBatch_EmptyInputNoNetworkCall(t *testing.T) {
	called := false
	c := &Client{
		kind: kindOpenAI,
		openai: &openAIBackend{
			model: "stub",
		},
	}
	_ = called

	vectors, err := c.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil vectors for empty input, got %v", vectors)
	}
}

func TestEmbedBatch_DimensionMismatchUpdatesDeclared(t *testing.T) {
	// A local stub provider returns a length-2 vector while the client
	// declares 768 dimensions.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"embedding":[3,4],"index":0}]}`))
	}))
	defer server.Close()

	c := NewOpenAI(OpenAIConfig{BaseURL: server.URL, Model: "stub", Dimensions: 768})
	c.normalize = true // also exercise the Google-style normalization step

	vectors, err := c.EmbedBatch(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Dimensions() != 2 {
		t.Errorf("expected declared dimension updated to 2, got %d", c.Dimensions())
	}
	norm := math.Sqrt(float64(vectors[0][0])*float64(vectors[0][0]) + float64(vectors[0][1])*float64(vectors[0][1]))
	if math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("expected unit-normalized vector, got norm %f", norm)
	}
}

func TestL2Normalize_ZeroVectorUnchanged(t *testing.T) {
	v := []float32{0, 0, 0}
	l2Normalize(v)
	for _, x := range v {
		if x != 0 {
			t.Errorf("expected zero vector to remain zero, got %v", v)
		}
	}
}
