package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"
)

// MockClient is a mock implementation of LLMClient for testing.
type MockClient struct {
	// Response overrides the generated reply when non-empty.
	Response string
	// Err, when set, is returned from every call.
	Err error
}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements LLMClient interface.
var _ LLMClient = (*MockClient)(nil)

// CreateChatCompletion returns a canned response echoing the last user
// message.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	content := m.Response
	if content == "" {
		last := ""
		for _, msg := range req.Messages {
			if msg.Role == "user" {
				last = msg.Content
			}
		}
		content = fmt.Sprintf("mock reply to: %s", last)
	}

	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{
			{
				Index: 0,
				Message: &ChatMessage{
					Role:    "assistant",
					Content: content,
				},
				FinishReason: "stop",
			},
		},
		Usage: &Usage{
			PromptTokens:     len(req.Messages) * 8,
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(req.Messages)*8 + len(content)/4,
		},
	}, nil
}

// CreateEmbedding returns a deterministic hash-derived vector.
func (m *MockClient) CreateEmbedding(ctx context.Context, model, input string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	h := fnv.New64a()
	h.Write([]byte(input))
	seed := h.Sum64()

	const dims = 64
	vec := make([]float32, dims)
	for i := 0; i < dims; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return vec, nil
}
