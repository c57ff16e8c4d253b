package format

import (
	"strings"
	"testing"

	"github.com/xiaot623/recall/domain"
)

func sampleResult() *domain.QueryResponse {
	return &domain.QueryResponse{
		SessionID: "11111111-2222-3333-4444-555555555555",
		Response:  "Lisbon, as you mentioned before.",
		Sources: []domain.Source{
			{
				Text:  "user: my favourite city is Lisbon",
				Score: 0.91,
				Metadata: map[string]string{
					"session_id": "old-session",
					"start_time": "2026-08-01T10:00:00Z",
					"end_time":   "2026-08-01T10:05:00Z",
				},
			},
			{
				Text:  "assistant: noted, Lisbon it is",
				Score: 0.84,
			},
		},
	}
}

func TestMarkdownIncludesSourcesAndSession(t *testing.T) {
	out := Markdown(sampleResult())

	for _, want := range []string{
		"Lisbon, as you mentioned before.",
		"## Sources",
		"1. session old-session (2026-08-01T10:00:00Z – 2026-08-01T10:05:00Z)",
		"2. assistant: noted, Lisbon it is",
		"_Session ID: `11111111-2222-3333-4444-555555555555`_",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("markdown output missing %q:\n%s", want, out)
		}
	}
}

func TestMarkdownWithoutSources(t *testing.T) {
	out := Markdown(&domain.QueryResponse{SessionID: "s1", Response: "hello"})
	if strings.Contains(out, "Sources") {
		t.Fatalf("did not expect a sources section:\n%s", out)
	}
	if !strings.Contains(out, "hello\n") {
		t.Fatalf("expected the response body:\n%s", out)
	}
}

func TestHTMLEscapesContent(t *testing.T) {
	out := HTML(&domain.QueryResponse{
		SessionID: "s1",
		Response:  `<script>alert("x")</script>`,
	})
	if strings.Contains(out, "<script>") {
		t.Fatalf("response was not escaped:\n%s", out)
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Fatalf("expected escaped markup:\n%s", out)
	}
}

func TestHTMLListsSources(t *testing.T) {
	out := HTML(sampleResult())
	if !strings.Contains(out, "<ol><li>session old-session") {
		t.Fatalf("expected an ordered sources list:\n%s", out)
	}
	if !strings.Contains(out, "<code>11111111-2222-3333-4444-555555555555</code>") {
		t.Fatalf("expected the session id footer:\n%s", out)
	}
}

func TestExcerptTruncatesLongText(t *testing.T) {
	long := strings.Repeat("a", 200)
	out := Markdown(&domain.QueryResponse{
		Response: "ok",
		Sources:  []domain.Source{{Text: long}},
	})
	if strings.Contains(out, long) {
		t.Fatalf("expected the source text to be truncated")
	}
	if !strings.Contains(out, strings.Repeat("a", 80)+"...") {
		t.Fatalf("expected an 80 character excerpt with ellipsis:\n%s", out)
	}
}
