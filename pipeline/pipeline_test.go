package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xiaot623/recall/domain"
	"github.com/xiaot623/recall/memory"
	"github.com/xiaot623/recall/policy"
	"github.com/xiaot623/recall/store"
)

func newRunner(t *testing.T, st store.Store, embedder memory.Embedder, opts Options) (*Runner, *memory.ChromemIndex) {
	t.Helper()
	index, err := memory.NewChromemIndex("pipeline-test")
	if err != nil {
		t.Fatalf("NewChromemIndex failed: %v", err)
	}
	eng, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return NewRunner(st, embedder, index, eng, opts), index
}

func seedPending(t *testing.T, st store.Store, sessionID string, n int, age time.Duration) {
	t.Helper()
	ctx := context.Background()
	if _, err := st.GetOrCreateSession(ctx, sessionID, "u1"); err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	base := time.Now().UTC().Add(-age)
	for i := 0; i < n; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		msg := &domain.Message{
			MessageID: fmt.Sprintf("%s-m%02d", sessionID, i),
			SessionID: sessionID,
			Role:      role,
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := st.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}
}

func countByStatus(t *testing.T, st store.Store, sessionID string, status domain.EmbeddingStatus) int {
	t.Helper()
	messages, err := st.GetMessages(context.Background(), sessionID, 0, "")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	n := 0
	for _, m := range messages {
		if m.EmbeddingStatus == status {
			n++
		}
	}
	return n
}

func TestRunEmbedsStaleBacklog(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer st.Close()

	seedPending(t, st, "s1", 12, 2*time.Hour)
	runner, index := newRunner(t, st, memory.NewHashEmbedder(64), Options{
		StalenessThreshold: time.Hour,
		ChunkSize:          5,
	})

	job, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("expected completed job, got %+v", job)
	}
	if job.MessagesProcessed != 12 {
		t.Fatalf("expected 12 processed, got %d", job.MessagesProcessed)
	}
	if job.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}
	if got := countByStatus(t, st, "s1", domain.EmbeddingStatusEmbedded); got != 12 {
		t.Fatalf("expected 12 embedded messages, got %d", got)
	}

	// 12 messages at window 5 produce chunks of 5, 5 and 2.
	vec, _ := memory.NewHashEmbedder(64).Embed(ctx, "message 0")
	sources, err := index.Query(ctx, vec, 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(sources) != 3 {
		t.Fatalf("expected 3 chunks in the index, got %d", len(sources))
	}
}

func TestRunIsIdempotentOnNoop(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer st.Close()

	seedPending(t, st, "s1", 4, 2*time.Hour)
	runner, _ := newRunner(t, st, memory.NewHashEmbedder(64), Options{StalenessThreshold: time.Hour})

	first, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if first.MessagesProcessed != 4 {
		t.Fatalf("expected 4 processed, got %d", first.MessagesProcessed)
	}

	second, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if second.MessagesProcessed != 0 {
		t.Fatalf("expected 0 processed on second run, got %d", second.MessagesProcessed)
	}
	if second.Status != domain.JobStatusCompleted {
		t.Fatalf("expected completed job, got %+v", second)
	}
}

func TestRunSkipsFreshMessages(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer st.Close()

	seedPending(t, st, "s1", 2, 0) // younger than the threshold
	runner, _ := newRunner(t, st, memory.NewHashEmbedder(64), Options{StalenessThreshold: time.Hour})

	job, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.MessagesProcessed != 0 {
		t.Fatalf("fresh messages must not be embedded, processed=%d", job.MessagesProcessed)
	}
	if got := countByStatus(t, st, "s1", domain.EmbeddingStatusPending); got != 2 {
		t.Fatalf("expected 2 still pending, got %d", got)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding backend down")
}

func (failingEmbedder) Dimensions() int { return 64 }

func TestRunRecordsFailure(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer st.Close()

	seedPending(t, st, "s1", 5, 2*time.Hour)
	runner, _ := newRunner(t, st, failingEmbedder{}, Options{StalenessThreshold: time.Hour})

	job, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed job, got %+v", job)
	}
	if job.ErrorMessage == "" {
		t.Fatalf("expected error message on job record")
	}
	if got := countByStatus(t, st, "s1", domain.EmbeddingStatusFailed); got != 5 {
		t.Fatalf("expected 5 failed messages, got %d", got)
	}
}

func TestRetryFailedOption(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer st.Close()

	seedPending(t, st, "s1", 5, 2*time.Hour)

	// First run fails and strands the messages.
	failing, _ := newRunner(t, st, failingEmbedder{}, Options{StalenessThreshold: time.Hour})
	if _, err := failing.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := countByStatus(t, st, "s1", domain.EmbeddingStatusFailed); got != 5 {
		t.Fatalf("expected 5 failed messages, got %d", got)
	}

	// A healthy runner without RetryFailed leaves them stranded.
	healthy, _ := newRunner(t, st, memory.NewHashEmbedder(64), Options{StalenessThreshold: time.Hour})
	job, err := healthy.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.MessagesProcessed != 0 {
		t.Fatalf("expected stranded messages to be skipped, processed=%d", job.MessagesProcessed)
	}

	// With RetryFailed on, the backlog drains.
	retrying, _ := newRunner(t, st, memory.NewHashEmbedder(64), Options{
		StalenessThreshold: time.Hour,
		RetryFailed:        true,
	})
	job, err = retrying.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.MessagesProcessed != 5 {
		t.Fatalf("expected 5 processed after retry, got %d", job.MessagesProcessed)
	}
}

func TestPolicyDeniedMessagesStayPending(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer st.Close()

	if _, err := st.GetOrCreateSession(ctx, "s1", "u1"); err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	old := time.Now().UTC().Add(-2 * time.Hour)
	private := &domain.Message{
		MessageID: "m1",
		SessionID: "s1",
		Role:      domain.RoleUser,
		Content:   "keep this out of long-term memory",
		Timestamp: old,
		Metadata:  json.RawMessage(`{"no_embed":"true"}`),
	}
	public := &domain.Message{
		MessageID: "m2",
		SessionID: "s1",
		Role:      domain.RoleUser,
		Content:   "remember this",
		Timestamp: old.Add(time.Second),
	}
	for _, m := range []*domain.Message{private, public} {
		if err := st.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	runner, _ := newRunner(t, st, memory.NewHashEmbedder(64), Options{StalenessThreshold: time.Hour})
	job, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if job.MessagesProcessed != 1 {
		t.Fatalf("expected 1 processed, got %d", job.MessagesProcessed)
	}
	if got := countByStatus(t, st, "s1", domain.EmbeddingStatusPending); got != 1 {
		t.Fatalf("expected the denied message to stay pending, got %d pending", got)
	}
}

type blockingEmbedder struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	b.started <- struct{}{}
	<-b.release
	return memory.NewHashEmbedder(64).Embed(ctx, text)
}

func (b *blockingEmbedder) Dimensions() int { return 64 }

func TestRunSingleFlight(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer st.Close()

	seedPending(t, st, "s1", 2, 2*time.Hour)
	embedder := &blockingEmbedder{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	runner, _ := newRunner(t, st, embedder, Options{StalenessThreshold: time.Hour})

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(ctx)
		done <- err
	}()

	<-embedder.started
	if _, err := runner.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	close(embedder.release)
	if err := <-done; err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
}
