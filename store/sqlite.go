package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/recall/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_active DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			metadata TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			embedding_status TEXT NOT NULL DEFAULT 'pending',
			metadata TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(embedding_status, timestamp)`,
		`CREATE TABLE IF NOT EXISTS embedding_jobs (
			job_id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME,
			status TEXT NOT NULL DEFAULT 'running',
			messages_processed INTEGER NOT NULL DEFAULT 0,
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_started ON embedding_jobs(started_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	var metadata sql.NullString
	if session.Metadata != nil {
		metadata = sql.NullString{String: string(session.Metadata), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, created_at, last_active, metadata) VALUES (?, ?, ?, ?, ?)`,
		session.SessionID, session.UserID, session.CreatedAt, session.LastActive, metadata)
	return err
}

// GetSession retrieves a session by ID. Returns nil when not found.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var userID, metadata sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, created_at, last_active, metadata FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &userID, &session.CreatedAt, &session.LastActive, &metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		session.UserID = userID.String
	}
	if metadata.Valid {
		session.Metadata = json.RawMessage(metadata.String)
	}
	return &session, nil
}

// GetOrCreateSession gets an existing session or creates a new one.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	now := time.Now().UTC()
	session = &domain.Session{
		SessionID:  sessionID,
		UserID:     userID,
		CreatedAt:  now,
		LastActive: now,
	}
	if err := s.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateSessionMetadata replaces a session's metadata document.
func (s *SQLiteStore) UpdateSessionMetadata(ctx context.Context, sessionID string, metadata json.RawMessage) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET metadata = ? WHERE session_id = ?`,
		string(metadata), sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AppendMessage inserts one message and bumps the session's last_active
// in a single transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, message *domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertMessage(ctx, tx, message); err != nil {
		return err
	}
	if err := touchSession(ctx, tx, message.SessionID, message.Timestamp); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendTurn inserts a user/assistant message pair atomically. Either both
// messages and the last_active bump land, or none of them do.
func (s *SQLiteStore) AppendTurn(ctx context.Context, userMsg, assistantMsg *domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertMessage(ctx, tx, userMsg); err != nil {
		return err
	}
	if err := insertMessage(ctx, tx, assistantMsg); err != nil {
		return err
	}
	if err := touchSession(ctx, tx, userMsg.SessionID, assistantMsg.Timestamp); err != nil {
		return err
	}
	return tx.Commit()
}

func insertMessage(ctx context.Context, tx *sql.Tx, message *domain.Message) error {
	if message.EmbeddingStatus == "" {
		message.EmbeddingStatus = domain.EmbeddingStatusPending
	}
	var metadata sql.NullString
	if message.Metadata != nil {
		metadata = sql.NullString{String: string(message.Metadata), Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, role, content, timestamp, embedding_status, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.SessionID, message.Role, message.Content, message.Timestamp, message.EmbeddingStatus, metadata)
	return err
}

func touchSession(ctx context.Context, tx *sql.Tx, sessionID string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE sessions SET last_active = ? WHERE session_id = ?`,
		at, sessionID)
	return err
}

// RecentMessages returns the most recent N messages of a session in
// chronological order.
func (s *SQLiteStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	// Select newest-first, then reverse so callers get chronological order.
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, role, content, timestamp, embedding_status, metadata
		 FROM messages WHERE session_id = ? ORDER BY timestamp DESC, message_id DESC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetMessages retrieves messages for a session in chronological order,
// with optional cursor paging.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, limit int, before string) ([]domain.Message, error) {
	query := `SELECT message_id, session_id, role, content, timestamp, embedding_status, metadata FROM messages WHERE session_id = ?`
	args := []interface{}{sessionID}

	if before != "" {
		query += ` AND message_id < ?`
		args = append(args, before)
	}

	query += ` ORDER BY timestamp ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// PendingMessagesBefore returns all pending messages older than cutoff
// in timestamp order, across sessions.
func (s *SQLiteStore) PendingMessagesBefore(ctx context.Context, cutoff time.Time) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, role, content, timestamp, embedding_status, metadata
		 FROM messages WHERE embedding_status = ? AND timestamp < ? ORDER BY timestamp ASC`,
		domain.EmbeddingStatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var metadata sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Timestamp, &msg.EmbeddingStatus, &metadata); err != nil {
			return nil, err
		}
		if metadata.Valid {
			msg.Metadata = json.RawMessage(metadata.String)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkEmbedded transitions the given messages pending -> embedded. Rows
// in any other state are left untouched.
func (s *SQLiteStore) MarkEmbedded(ctx context.Context, messageIDs []string) error {
	return s.updateStatus(ctx, messageIDs, domain.EmbeddingStatusEmbedded)
}

// MarkFailed transitions the given messages pending -> failed.
func (s *SQLiteStore) MarkFailed(ctx context.Context, messageIDs []string) error {
	return s.updateStatus(ctx, messageIDs, domain.EmbeddingStatusFailed)
}

func (s *SQLiteStore) updateStatus(ctx context.Context, messageIDs []string, status domain.EmbeddingStatus) error {
	if len(messageIDs) == 0 {
		return nil
	}

	placeholders := make([]string, len(messageIDs))
	args := []interface{}{status}
	for i, id := range messageIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	// The WHERE clause enforces the state machine: only pending rows move.
	query := fmt.Sprintf(
		`UPDATE messages SET embedding_status = ? WHERE message_id IN (%s) AND embedding_status = 'pending'`,
		strings.Join(placeholders, ","))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return tx.Commit()
}

// ResetFailedMessages moves failed messages back to pending so the next
// pipeline run retries them. Only called when the retry policy is on.
func (s *SQLiteStore) ResetFailedMessages(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET embedding_status = ? WHERE embedding_status = ?`,
		domain.EmbeddingStatusPending, domain.EmbeddingStatusFailed)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateJob inserts a new embedding job record.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *domain.EmbeddingJob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embedding_jobs (job_id, started_at, status, messages_processed) VALUES (?, ?, ?, ?)`,
		job.JobID, job.StartedAt, job.Status, job.MessagesProcessed)
	return err
}

// CompleteJob marks a job completed with its final processed count.
func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, processed int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE embedding_jobs SET status = ?, completed_at = ?, messages_processed = ? WHERE job_id = ? AND status = ?`,
		domain.JobStatusCompleted, time.Now().UTC(), processed, jobID, domain.JobStatusRunning)
	return err
}

// FailJob marks a job failed, keeping the partial processed count.
func (s *SQLiteStore) FailJob(ctx context.Context, jobID string, processed int, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE embedding_jobs SET status = ?, completed_at = ?, messages_processed = ?, error_message = ? WHERE job_id = ? AND status = ?`,
		domain.JobStatusFailed, time.Now().UTC(), processed, errMsg, jobID, domain.JobStatusRunning)
	return err
}

// GetJob retrieves a job by ID. Returns nil when not found.
func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*domain.EmbeddingJob, error) {
	var job domain.EmbeddingJob
	var completedAt sql.NullTime
	var errMsg sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, started_at, completed_at, status, messages_processed, error_message FROM embedding_jobs WHERE job_id = ?`,
		jobID).Scan(&job.JobID, &job.StartedAt, &completedAt, &job.Status, &job.MessagesProcessed, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		job.ErrorMessage = errMsg.String
	}
	return &job, nil
}

// ListJobs returns the most recent jobs, newest first.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]domain.EmbeddingJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, started_at, completed_at, status, messages_processed, error_message
		 FROM embedding_jobs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.EmbeddingJob
	for rows.Next() {
		var job domain.EmbeddingJob
		var completedAt sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&job.JobID, &job.StartedAt, &completedAt, &job.Status, &job.MessagesProcessed, &errMsg); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			job.CompletedAt = &completedAt.Time
		}
		if errMsg.Valid {
			job.ErrorMessage = errMsg.String
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
