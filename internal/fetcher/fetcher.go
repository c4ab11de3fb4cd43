// Package fetcher downloads sources and extracts normalized articles from
// RSS/Atom feeds and generic HTML pages.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"feedforwarder/internal/model"
)

var (
	// ErrFetch covers network failures, timeouts and non-200 responses.
	ErrFetch = errors.New("fetch failed")
	// ErrParse covers feeds and pages that cannot be parsed.
	ErrParse = errors.New("parse failed")
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 5 * 1024 * 1024
	maxFeedEntries = 5
	summaryLimit   = 300
	userAgent      = "Mozilla/5.0 FeedForwarderBot/1.0"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads sources and turns them into articles.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: defaultTimeout,
	}
}

// SetTimeout overrides the per-download timeout.
func (f *Fetcher) SetTimeout(d time.Duration) {
	if d > 0 {
		f.timeout = d
	}
}

// Extract downloads the locator and returns its articles in source order.
// Feeds yield at most five entries, pages at most one. Title and Summary of
// every article are HTML-escaped.
func (f *Fetcher) Extract(ctx context.Context, locator string) ([]model.Article, error) {
	body, err := f.download(ctx, locator)
	if err != nil {
		return nil, err
	}

	if Classify(locator) == KindFeed {
		return parseFeed(body, locator)
	}
	return parsePage(body, locator)
}

func (f *Fetcher) download(ctx context.Context, locator string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w: %w", ErrFetch, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w: %w", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w: %w", ErrFetch, err)
	}
	return body, nil
}

func sanitize(s string) string {
	return html.EscapeString(s)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:limit])) + "..."
}
