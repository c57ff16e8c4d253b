package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/recall/config"
	"github.com/xiaot623/recall/domain"
	"github.com/xiaot623/recall/llm"
	"github.com/xiaot623/recall/memory"
	"github.com/xiaot623/recall/personality"
	"github.com/xiaot623/recall/pipeline"
	"github.com/xiaot623/recall/policy"
	"github.com/xiaot623/recall/service"
	"github.com/xiaot623/recall/store"
	"github.com/xiaot623/recall/tests/helpers"
)

func newTestHandler(t *testing.T) (*Handler, store.Store) {
	t.Helper()

	cfg := &config.Config{
		ChatModel:        "gpt-test",
		ShortTermLimit:   10,
		SummaryTermLimit: 20,
		MaxResults:       3,
	}
	db := helpers.NewTestSQLiteStore(t)

	index, err := memory.NewChromemIndex("api-test")
	if err != nil {
		t.Fatalf("NewChromemIndex failed: %v", err)
	}
	embedder := memory.NewHashEmbedder(64)
	retriever, err := memory.NewRetriever(embedder, index)
	if err != nil {
		t.Fatalf("NewRetriever failed: %v", err)
	}

	dir := t.TempDir()
	def := []byte(`{"name":"Sage","role":"a helpful assistant","core_identity":"You answer plainly."}`)
	if err := os.WriteFile(filepath.Join(dir, "default.json"), def, 0o644); err != nil {
		t.Fatalf("write personality failed: %v", err)
	}
	personalities, err := personality.NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	runner := pipeline.NewRunner(db, embedder, index, policyEngine, pipeline.Options{
		StalenessThreshold: time.Hour,
	})

	svc := service.New(db, retriever, personalities, llm.NewMockClient(), cfg)
	return NewHandler(svc, runner), db
}

func doJSON(t *testing.T, h echo.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func TestPostQuerySuccess(t *testing.T) {
	h, db := newTestHandler(t)

	rec := doJSON(t, h.PostQuery, http.MethodPost, "/v1/query", `{"query":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp domain.QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if resp.SessionID == "" || resp.Response == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	messages, err := db.GetMessages(context.Background(), resp.SessionID, 10, "")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected the turn on the ledger, got %d messages", len(messages))
	}
}

func TestPostQueryValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h.PostQuery, http.MethodPost, "/v1/query", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing query, got %d", rec.Code)
	}

	rec = doJSON(t, h.PostQuery, http.MethodPost, "/v1/query", `{"query":"hi","session_id":"not-a-uuid"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad session id, got %d", rec.Code)
	}

	rec = doJSON(t, h.PostQuery, http.MethodPost, "/v1/query", `{"query":"hi","format":"yaml"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rec.Code)
	}
}

func TestPostQueryUnknownPersonality(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h.PostQuery, http.MethodPost, "/v1/query", `{"query":"hi","personality_id":"nobody"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPostQueryMarkdownFormat(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h.PostQuery, http.MethodPost, "/v1/query", `{"query":"hello","format":"markdown"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("expected markdown content type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Session ID:") {
		t.Fatalf("expected session footer in markdown body:\n%s", rec.Body.String())
	}
}

func TestPostSummarizeDefaults(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h.PostSummarize, http.MethodPost, "/v1/summarize", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetSessionMessagesPaging(t *testing.T) {
	h, db := newTestHandler(t)
	ctx := context.Background()

	if _, err := db.GetOrCreateSession(ctx, "s1", "u1"); err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		msg := &domain.Message{
			MessageID: fmt.Sprintf("m%d", i),
			SessionID: "s1",
			Role:      domain.RoleUser,
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := db.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/messages?limit=2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("s1")

	if err := h.GetSessionMessages(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var page struct {
		Messages []domain.Message `json:"messages"`
		HasMore  bool             `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page failed: %v", err)
	}
	if len(page.Messages) != 2 || !page.HasMore {
		t.Fatalf("expected 2 messages with has_more, got %d has_more=%v", len(page.Messages), page.HasMore)
	}
	if page.Messages[0].MessageID != "m0" {
		t.Fatalf("expected chronological order, got %+v", page.Messages[0])
	}
}

func TestListPersonalities(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h.ListPersonalities, http.MethodGet, "/v1/personalities", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"default"`) {
		t.Fatalf("expected the default personality in the listing: %s", rec.Body.String())
	}
}

func TestAddPersonality(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h.AddPersonality, http.MethodPost, "/v1/personalities",
		`{"id":"curt","extension":".txt","content":"You are curt."}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h.ListPersonalities, http.MethodGet, "/v1/personalities", "")
	if !strings.Contains(rec.Body.String(), `"curt"`) {
		t.Fatalf("expected the new personality in the listing: %s", rec.Body.String())
	}
}

func TestAddPersonalityValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h.AddPersonality, http.MethodPost, "/v1/personalities", `{"content":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing id, got %d", rec.Code)
	}

	rec = doJSON(t, h.AddPersonality, http.MethodPost, "/v1/personalities",
		`{"id":"../evil","extension":".txt","content":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for path-like id, got %d", rec.Code)
	}
}

func TestGetJobNotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/nope", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("job_id")
	c.SetParamValues("nope")

	if err := h.GetJob(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRunJobRecordsOutcome(t *testing.T) {
	h, db := newTestHandler(t)

	rec := doJSON(t, h.RunJob, http.MethodPost, "/v1/jobs/run", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	// The run happens in the background; wait for its job record.
	deadline := time.Now().Add(2 * time.Second)
	for {
		jobs, err := db.ListJobs(context.Background(), 10)
		if err != nil {
			t.Fatalf("ListJobs failed: %v", err)
		}
		if len(jobs) == 1 && jobs[0].Status == domain.JobStatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no completed job record after manual run, jobs=%+v", jobs)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h.Health, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Fatalf("unexpected health body: %s", rec.Body.String())
	}
}
