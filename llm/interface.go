// Package llm provides the client for the OpenAI-compatible gateway used
// for generation and embedding.
package llm

import "context"

// LLMClient defines the interface for LLM API operations.
type LLMClient interface {
	// CreateChatCompletion sends a chat completion request (non-streaming).
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)

	// CreateEmbedding converts a single text into an embedding vector.
	CreateEmbedding(ctx context.Context, model, input string) ([]float32, error)
}

// Ensure Client implements LLMClient interface.
var _ LLMClient = (*Client)(nil)
