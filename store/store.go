// Package store defines the ledger interface and implementations.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xiaot623/recall/domain"
)

// Store defines the interface for the message ledger. Every write method
// is one transaction per logical operation: a crash mid-call leaves either
// the old or the new state, never a mix.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetOrCreateSession(ctx context.Context, sessionID, userID string) (*domain.Session, error)
	UpdateSessionMetadata(ctx context.Context, sessionID string, metadata json.RawMessage) error

	// Message operations
	AppendMessage(ctx context.Context, message *domain.Message) error
	AppendTurn(ctx context.Context, userMsg, assistantMsg *domain.Message) error
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
	GetMessages(ctx context.Context, sessionID string, limit int, before string) ([]domain.Message, error)

	// Embedding-status operations
	PendingMessagesBefore(ctx context.Context, cutoff time.Time) ([]domain.Message, error)
	MarkEmbedded(ctx context.Context, messageIDs []string) error
	MarkFailed(ctx context.Context, messageIDs []string) error
	ResetFailedMessages(ctx context.Context) (int64, error)

	// Embedding-job operations
	CreateJob(ctx context.Context, job *domain.EmbeddingJob) error
	CompleteJob(ctx context.Context, jobID string, processed int) error
	FailJob(ctx context.Context, jobID string, processed int, errMsg string) error
	GetJob(ctx context.Context, jobID string) (*domain.EmbeddingJob, error)
	ListJobs(ctx context.Context, limit int) ([]domain.EmbeddingJob, error)

	// Lifecycle
	Close() error
}
