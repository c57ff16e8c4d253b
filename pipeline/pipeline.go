// Package pipeline migrates pending messages from the ledger into the
// long-term vector index.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/recall/domain"
	"github.com/xiaot623/recall/memory"
	"github.com/xiaot623/recall/policy"
	"github.com/xiaot623/recall/store"
)

// ErrAlreadyRunning is returned when a run is requested while another
// run holds the single-flight lock.
var ErrAlreadyRunning = errors.New("embedding pipeline already running")

// Options configure a Runner.
type Options struct {
	// StalenessThreshold is the minimum age a message must reach before
	// it is eligible for embedding.
	StalenessThreshold time.Duration
	// ChunkSize is the number of messages per chunk.
	ChunkSize int
	// RetryFailed resets failed messages back to pending at the start of
	// every run. Off by default: stranded messages then need manual
	// intervention, but a flaky embedding backend cannot loop forever.
	RetryFailed bool
}

// Runner executes embedding runs. All runs are serialized through an
// in-process lock, so two overlapping triggers cannot select the same
// pending messages.
type Runner struct {
	store    store.Store
	embedder memory.Embedder
	index    memory.Index
	policy   *policy.Engine
	opts     Options

	mu sync.Mutex
}

// NewRunner creates a pipeline runner.
func NewRunner(st store.Store, embedder memory.Embedder, index memory.Index, eng *policy.Engine, opts Options) *Runner {
	if opts.StalenessThreshold <= 0 {
		opts.StalenessThreshold = time.Hour
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = memory.DefaultChunkSize
	}
	return &Runner{
		store:    st,
		embedder: embedder,
		index:    index,
		policy:   eng,
		opts:     opts,
	}
}

// Run executes one embedding pass and returns its job record. A failure
// inside the pass is recorded on the job, not returned: the pipeline
// runs unattended and its outcome is observable through job records.
// Returns ErrAlreadyRunning when another run is in flight.
func (r *Runner) Run(ctx context.Context) (*domain.EmbeddingJob, error) {
	if !r.mu.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer r.mu.Unlock()

	if r.opts.RetryFailed {
		n, err := r.store.ResetFailedMessages(ctx)
		if err != nil {
			return nil, fmt.Errorf("reset failed messages: %w", err)
		}
		if n > 0 {
			log.Printf("[PIPELINE] Reset %d failed messages to pending", n)
		}
	}

	job := &domain.EmbeddingJob{
		JobID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Status:    domain.JobStatusRunning,
	}
	if err := r.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	processed, runErr := r.process(ctx, job)
	if runErr != nil {
		log.Printf("ERROR: embedding job %s failed after %d messages: %v", job.JobID, processed, runErr)
		if err := r.store.FailJob(ctx, job.JobID, processed, runErr.Error()); err != nil {
			return nil, fmt.Errorf("fail job: %w", err)
		}
	} else {
		log.Printf("[PIPELINE] Embedding job %s completed, processed %d messages", job.JobID, processed)
		if err := r.store.CompleteJob(ctx, job.JobID, processed); err != nil {
			return nil, fmt.Errorf("complete job: %w", err)
		}
	}

	return r.store.GetJob(ctx, job.JobID)
}

// process selects, chunks, embeds and upserts. It returns how many
// messages were committed as embedded before any error.
func (r *Runner) process(ctx context.Context, job *domain.EmbeddingJob) (int, error) {
	cutoff := time.Now().UTC().Add(-r.opts.StalenessThreshold)
	pending, err := r.store.PendingMessagesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("select pending messages: %w", err)
	}
	if len(pending) == 0 {
		log.Printf("[PIPELINE] No pending messages to embed")
		return 0, nil
	}

	eligible, err := r.filterEligible(ctx, pending)
	if err != nil {
		return 0, err
	}
	if len(eligible) == 0 {
		log.Printf("[PIPELINE] No eligible messages after policy filtering (%d pending)", len(pending))
		return 0, nil
	}

	// Group by session, preserving first-seen order so runs over the
	// same backlog process sessions identically.
	bySession := make(map[string][]domain.Message)
	var order []string
	for _, msg := range eligible {
		if _, ok := bySession[msg.SessionID]; !ok {
			order = append(order, msg.SessionID)
		}
		bySession[msg.SessionID] = append(bySession[msg.SessionID], msg)
	}

	processed := 0
	for _, sessionID := range order {
		messages := bySession[sessionID]
		log.Printf("[PIPELINE] Processing session %s with %d messages", sessionID, len(messages))

		for _, chunk := range memory.ChunkMessages(messages, r.opts.ChunkSize) {
			if err := r.embedChunk(ctx, chunk); err != nil {
				// Partial progress stays committed; this chunk's
				// messages are marked failed and the run stops.
				if markErr := r.store.MarkFailed(ctx, chunk.MessageIDs); markErr != nil {
					log.Printf("ERROR: failed to mark messages failed: %v", markErr)
				}
				return processed, err
			}
			if err := r.store.MarkEmbedded(ctx, chunk.MessageIDs); err != nil {
				return processed, fmt.Errorf("mark embedded: %w", err)
			}
			processed += len(chunk.MessageIDs)
		}
	}

	return processed, nil
}

// filterEligible drops messages the embed policy denies. Denied messages
// keep their pending status and simply stay out of this run.
func (r *Runner) filterEligible(ctx context.Context, messages []domain.Message) ([]domain.Message, error) {
	if r.policy == nil {
		return messages, nil
	}

	eligible := make([]domain.Message, 0, len(messages))
	for _, msg := range messages {
		input := policy.Input{
			Role:          msg.Role,
			ContentLength: len(msg.Content),
			Metadata:      metadataMap(msg),
		}
		decision, err := r.policy.Evaluate(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("evaluate embed policy: %w", err)
		}
		if decision != "deny" {
			eligible = append(eligible, msg)
		}
	}
	return eligible, nil
}

func metadataMap(msg domain.Message) map[string]string {
	if msg.Metadata == nil {
		return nil
	}
	var m map[string]string
	// Non-string metadata values are irrelevant to the policy input.
	if err := json.Unmarshal(msg.Metadata, &m); err != nil {
		return nil
	}
	return m
}

// embedChunk embeds one chunk and upserts it under a fresh identifier.
func (r *Runner) embedChunk(ctx context.Context, chunk domain.Chunk) error {
	vector, err := r.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return fmt.Errorf("embed chunk: %w", err)
	}

	metadata := map[string]string{
		"session_id":  chunk.SessionID,
		"start_time":  chunk.StartTime.UTC().Format(time.RFC3339),
		"end_time":    chunk.EndTime.UTC().Format(time.RFC3339),
		"message_ids": strings.Join(chunk.MessageIDs, ","),
		"type":        "conversation_history",
	}
	if err := r.index.Upsert(ctx, uuid.New().String(), vector, chunk.Text, metadata); err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	return nil
}

// Start runs the pipeline on a fixed interval until ctx is cancelled.
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[PIPELINE] Scheduler started, interval %s", interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[PIPELINE] Scheduler stopped")
			return
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				log.Printf("ERROR: embedding run failed: %v", err)
			}
		}
	}
}
