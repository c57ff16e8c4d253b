package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/recall/domain"
	"github.com/xiaot623/recall/llm"
)

const personalityMetadataKey = "personality_id"

// summaryInstruction frames a long-term summary query; it rides on the
// same assembly path as interactive queries, only with a wider
// short-term window.
const summaryInstruction = "Summarize the recurring topics of our past conversations, grouped by theme."

// Query runs one hybrid-memory turn: short-term history plus long-term
// matches assembled into a single bounded generation request. On success
// the user query and the reply are committed to the ledger as one
// atomic pair.
func (s *Service) Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error) {
	return s.answer(ctx, req, s.config.ShortTermLimit, "")
}

// Summarize answers a summary query over a wider short-term window.
func (s *Service) Summarize(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error) {
	if req.Query == "" {
		req.Query = summaryInstruction
	}
	return s.answer(ctx, req, s.config.SummaryTermLimit, summaryInstruction)
}

func (s *Service) answer(ctx context.Context, req domain.QueryRequest, historyLimit int, framing string) (*domain.QueryResponse, error) {
	// Validation happens before any side effect.
	if req.PersonalityID != "" {
		if _, err := s.personalities.Get(req.PersonalityID); err != nil {
			return nil, err
		}
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	} else if _, err := uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("%w: session id %q", domain.ErrInvalidIdentifier, sessionID)
	}

	session, err := s.store.GetOrCreateSession(ctx, sessionID, "")
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	personalityID, err := s.resolvePersonality(ctx, session, req.PersonalityID)
	if err != nil {
		return nil, err
	}

	history, err := s.store.RecentMessages(ctx, sessionID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = s.config.MaxResults
	}
	sources, err := s.retriever.Retrieve(ctx, req.Query, maxResults)
	if err != nil {
		// Long-term memory being momentarily unavailable must not block
		// an answer; the turn degrades to short-term context only.
		log.Printf("WARN: long-term retrieval failed, continuing without it: %v", err)
		sources = nil
	}

	systemPrompt, err := s.personalities.CompileSystemPrompt(personalityID)
	if err != nil {
		return nil, err
	}

	messages := assembleMessages(systemPrompt, framing, sources, history, req.Query)
	resp, err := s.llmClient.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Model:    s.config.ChatModel,
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return nil, fmt.Errorf("%w: empty completion", domain.ErrGenerationFailed)
	}
	reply := resp.Choices[0].Message.Content

	now := time.Now().UTC()
	userMsg := &domain.Message{
		MessageID: uuid.New().String(),
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   req.Query,
		Timestamp: now,
	}
	assistantMsg := &domain.Message{
		MessageID: uuid.New().String(),
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   reply,
		Timestamp: now.Add(time.Millisecond),
	}
	if err := s.store.AppendTurn(ctx, userMsg, assistantMsg); err != nil {
		return nil, fmt.Errorf("record turn: %w", err)
	}

	return &domain.QueryResponse{
		SessionID: sessionID,
		Response:  reply,
		Sources:   sources,
	}, nil
}

// resolvePersonality persists a supplied personality choice into the
// session metadata, or reads back the previously stored one.
func (s *Service) resolvePersonality(ctx context.Context, session *domain.Session, requested string) (string, error) {
	meta := map[string]string{}
	if session.Metadata != nil {
		// Ignore unparsable metadata rather than failing the turn.
		_ = json.Unmarshal(session.Metadata, &meta)
	}

	if requested != "" {
		if meta[personalityMetadataKey] != requested {
			meta[personalityMetadataKey] = requested
			raw, err := json.Marshal(meta)
			if err != nil {
				return "", fmt.Errorf("marshal session metadata: %w", err)
			}
			if err := s.store.UpdateSessionMetadata(ctx, session.SessionID, raw); err != nil {
				return "", fmt.Errorf("persist personality choice: %w", err)
			}
		}
		return requested, nil
	}
	return meta[personalityMetadataKey], nil
}

// assembleMessages builds the single generation request: system prompt,
// long-term context, short-term history, then the current query.
func assembleMessages(systemPrompt, framing string, sources []domain.Source, history []domain.Message, query string) []llm.ChatMessage {
	messages := []llm.ChatMessage{}
	if systemPrompt != "" {
		messages = append(messages, llm.ChatMessage{Role: "system", Content: systemPrompt})
	}

	if len(sources) > 0 {
		var b strings.Builder
		b.WriteString("Relevant context from long-term memory:\n")
		for i, src := range sources {
			fmt.Fprintf(&b, "\n[%d]\n%s\n", i+1, src.Text)
		}
		messages = append(messages, llm.ChatMessage{Role: "system", Content: b.String()})
	}
	if framing != "" {
		messages = append(messages, llm.ChatMessage{Role: "system", Content: framing})
	}

	for _, msg := range history {
		messages = append(messages, llm.ChatMessage{Role: msg.Role, Content: msg.Content})
	}

	messages = append(messages, llm.ChatMessage{Role: "user", Content: query})
	return messages
}
