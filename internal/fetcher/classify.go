package fetcher

import "strings"

// Kind tells how a source locator is extracted.
type Kind int

const (
	// KindPage is a generic HTML page yielding at most one article.
	KindPage Kind = iota
	// KindFeed is an RSS or Atom feed.
	KindFeed
)

func (k Kind) String() string {
	if k == KindFeed {
		return "feed"
	}
	return "page"
}

// Classify decides from the locator alone whether a source is a feed or a page.
func Classify(locator string) Kind {
	l := strings.ToLower(strings.TrimSpace(locator))
	if strings.Contains(l, "rss") || strings.Contains(l, "feed") || strings.HasSuffix(l, ".xml") {
		return KindFeed
	}
	return KindPage
}
