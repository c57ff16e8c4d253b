// Package domain defines the core domain models for the memory service.
package domain

// EmbeddingStatus tracks whether a message has been migrated into
// long-term memory.
type EmbeddingStatus string

const (
	EmbeddingStatusPending  EmbeddingStatus = "pending"
	EmbeddingStatusEmbedded EmbeddingStatus = "embedded"
	EmbeddingStatusFailed   EmbeddingStatus = "failed"
)

// JobStatus represents the status of an embedding job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
