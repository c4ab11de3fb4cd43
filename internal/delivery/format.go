package delivery

import (
	"html"
	"strings"

	"feedforwarder/internal/model"
)

// Format renders an article as a Telegram HTML message: bold title, summary
// and link. Input may already be escaped; escaping is applied idempotently.
func Format(a model.Article) string {
	var parts []string
	if title := escape(a.Title); title != "" {
		parts = append(parts, "<b>"+title+"</b>")
	}
	if summary := escape(a.Summary); summary != "" {
		parts = append(parts, summary)
	}
	if a.Link != "" {
		parts = append(parts, "🔗 "+escape(a.Link))
	}
	return strings.Join(parts, "\n\n")
}

func escape(s string) string {
	return html.EscapeString(html.UnescapeString(strings.TrimSpace(s)))
}
