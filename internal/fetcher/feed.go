package fetcher

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"feedforwarder/internal/model"
)

func parseFeed(body []byte, locator string) ([]model.Article, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w: %w", ErrParse, err)
	}

	items := feed.Items
	if len(items) > maxFeedEntries {
		items = items[:maxFeedEntries]
	}

	articles := make([]model.Article, 0, len(items))
	for _, item := range items {
		summary := item.Description
		if strings.TrimSpace(summary) == "" {
			summary = item.Content
		}

		link := strings.TrimSpace(item.Link)
		if link == "" {
			link = locator
		}

		articles = append(articles, model.Article{
			Title:   sanitize(strings.TrimSpace(item.Title)),
			Summary: sanitize(truncate(plainText(summary), summaryLimit)),
			Link:    link,
		})
	}
	return articles, nil
}

// plainText reduces an HTML fragment to its whitespace-normalized text.
func plainText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return strings.Join(strings.Fields(fragment), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
