package fetcher

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"feedforwarder/internal/model"
)

// noTitle is used for pages without a <title>; such pages produce no article.
const noTitle = "No Title"

// minParagraphRunes is the length a paragraph must exceed to serve as summary.
const minParagraphRunes = 60

func parsePage(body []byte, locator string) ([]model.Article, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w: %w", ErrParse, err)
	}

	title := pageTitle(doc)
	if title == noTitle {
		return nil, nil
	}

	return []model.Article{{
		Title:   sanitize(title),
		Summary: sanitize(truncate(pageSummary(doc), summaryLimit)),
		Link:    locator,
	}}, nil
}

func pageTitle(doc *goquery.Document) string {
	title := strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
	if title == "" {
		return noTitle
	}
	return title
}

// pageSummary prefers the meta description, then the first paragraph long
// enough to carry content.
func pageSummary(doc *goquery.Document) string {
	var summary string
	doc.Find("meta[name]").EachWithBreak(func(_ int, m *goquery.Selection) bool {
		if name, _ := m.Attr("name"); !strings.EqualFold(strings.TrimSpace(name), "description") {
			return true
		}
		summary = strings.TrimSpace(m.AttrOr("content", ""))
		return summary == ""
	})
	if summary != "" {
		return summary
	}

	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := strings.Join(strings.Fields(p.Text()), " ")
		if utf8.RuneCountInString(text) > minParagraphRunes {
			summary = text
			return false
		}
		return true
	})
	return summary
}
