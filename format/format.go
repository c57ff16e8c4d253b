// Package format renders an assembled query result for presentation.
// It is a pure post-processing transform: no state, no store access.
package format

import (
	"fmt"
	"html"
	"strings"

	"github.com/xiaot623/recall/domain"
)

// Markdown renders a query result as a markdown document with a sources
// section and the session id footer.
func Markdown(result *domain.QueryResponse) string {
	var b strings.Builder

	b.WriteString(result.Response)
	b.WriteString("\n")

	if len(result.Sources) > 0 {
		b.WriteString("\n---\n\n## Sources\n")
		for i, src := range result.Sources {
			fmt.Fprintf(&b, "%d. %s\n", i+1, sourceLabel(src))
		}
	}

	if result.SessionID != "" {
		fmt.Fprintf(&b, "\n---\n_Session ID: `%s`_\n", result.SessionID)
	}

	return b.String()
}

// HTML renders a query result as a minimal HTML fragment. All text is
// escaped.
func HTML(result *domain.QueryResponse) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<div class=\"response\"><p>%s</p>", html.EscapeString(result.Response))

	if len(result.Sources) > 0 {
		b.WriteString("<h2>Sources</h2><ol>")
		for _, src := range result.Sources {
			fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(sourceLabel(src)))
		}
		b.WriteString("</ol>")
	}

	if result.SessionID != "" {
		fmt.Fprintf(&b, "<p class=\"session\">Session ID: <code>%s</code></p>", html.EscapeString(result.SessionID))
	}

	b.WriteString("</div>")
	return b.String()
}

// sourceLabel describes one long-term match by its chunk metadata,
// falling back to a text excerpt.
func sourceLabel(src domain.Source) string {
	sessionID := src.Metadata["session_id"]
	span := src.Metadata["start_time"]
	if end := src.Metadata["end_time"]; end != "" && span != "" {
		span = span + " – " + end
	}

	switch {
	case sessionID != "" && span != "":
		return fmt.Sprintf("session %s (%s)", sessionID, span)
	case sessionID != "":
		return fmt.Sprintf("session %s", sessionID)
	default:
		return excerpt(src.Text, 80)
	}
}

func excerpt(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
