package memory

import (
	"context"

	"github.com/xiaot623/recall/llm"
)

// LLMEmbedder backs the Embedder interface with the gateway's
// embeddings endpoint.
type LLMEmbedder struct {
	client     llm.LLMClient
	model      string
	dimensions int
}

// NewLLMEmbedder creates an embedder that calls the given client.
// dimensions must match the model's output size (1536 for
// text-embedding-3-small).
func NewLLMEmbedder(client llm.LLMClient, model string, dimensions int) *LLMEmbedder {
	return &LLMEmbedder{
		client:     client,
		model:      model,
		dimensions: dimensions,
	}
}

// Embed converts a single text to an embedding vector.
func (e *LLMEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.client.CreateEmbedding(ctx, e.model, text)
}

// Dimensions returns the embedding vector size.
func (e *LLMEmbedder) Dimensions() int {
	return e.dimensions
}

var _ Embedder = (*LLMEmbedder)(nil)
var _ Embedder = (*HashEmbedder)(nil)
