package domain

import (
	"encoding/json"
	"time"
)

// Session represents a conversation session. LastActive is bumped on
// every turn written to the session.
type Session struct {
	SessionID  string          `json:"session_id"`
	UserID     string          `json:"user_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	LastActive time.Time       `json:"last_active"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// Message represents a single message in a session. Messages are
// immutable once written except for EmbeddingStatus.
type Message struct {
	MessageID       string          `json:"message_id"`
	SessionID       string          `json:"session_id"`
	Role            string          `json:"role"` // user, assistant
	Content         string          `json:"content"`
	Timestamp       time.Time       `json:"timestamp"`
	EmbeddingStatus EmbeddingStatus `json:"embedding_status"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

// EmbeddingJob is the audit record for one pipeline run. Rows are
// append-only; only the terminal status transition mutates them.
type EmbeddingJob struct {
	JobID             string     `json:"job_id"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	Status            JobStatus  `json:"status"`
	MessagesProcessed int        `json:"messages_processed"`
	ErrorMessage      string     `json:"error_message,omitempty"`
}

// Chunk is a bounded, contiguous group of messages rendered to one
// embeddable text unit. Chunks are ephemeral: they exist only during a
// pipeline run and get a fresh ID at upsert time.
type Chunk struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	MessageIDs []string  `json:"message_ids"`
}

// Source is one long-term memory match returned alongside a generated
// response, so callers can see what context was used.
type Source struct {
	Text     string            `json:"text"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
