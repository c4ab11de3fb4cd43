// Package filter implements keyword gating of articles.
package filter

import (
	"html"
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"golang.org/x/text/cases"

	"feedforwarder/internal/model"
)

// Matcher decides whether an article passes the keyword filters of a source.
// It is safe for concurrent use.
type Matcher struct {
	mu       sync.Mutex
	fold     cases.Caser
	matcher  *ahocorasick.Matcher
	keywords []string
	matchAll bool
}

// New builds a Matcher from the filters of one source.
//
// With no filters every article passes. Otherwise an article passes when at
// least one keyword, compared case-insensitively, is a substring of its title
// and summary. A blank keyword matches every article.
func New(filters []model.Filter) *Matcher {
	m := &Matcher{
		fold:     cases.Fold(),
		matchAll: len(filters) == 0,
	}

	for _, f := range filters {
		kw := m.fold.String(strings.TrimSpace(f.Keyword))
		if kw == "" {
			m.matchAll = true
			continue
		}
		m.keywords = append(m.keywords, kw)
	}

	if len(m.keywords) > 0 {
		m.matcher = ahocorasick.NewStringMatcher(m.keywords)
	}
	return m
}

// Match reports whether the article passes the filters.
func (m *Matcher) Match(a model.Article) bool {
	if m.matchAll {
		return true
	}

	// Articles carry escaped text; keywords are typed by users in plain text.
	text := html.UnescapeString(a.Title + " " + a.Summary)

	m.mu.Lock()
	defer m.mu.Unlock()

	folded := m.fold.String(text)
	return len(m.matcher.Match([]byte(folded))) > 0
}
