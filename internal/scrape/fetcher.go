// Package scrape fetches third-party pages and extracts facts from them.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError reports a non-2xx response from a scraped page.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

const (
	defaultUserAgent = "pitwall/1.0 (+https://github.com/ent0n29/pitwall)"
	defaultMaxBytes  = 5 * 1024 * 1024
)

// Fetcher downloads pages with a bounded body size. It never retries.
type Fetcher struct {
	client    HTTPClient
	userAgent string
	maxBytes  int64
}

// NewFetcher creates a Fetcher. A nil client gets a default one with a 30s
// ceiling; callers bound individual requests through the context.
func NewFetcher(client HTTPClient) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		client:    client,
		userAgent: defaultUserAgent,
		maxBytes:  defaultMaxBytes,
	}
}

// Get returns the body of url or an error for transport failures and non-2xx statuses.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
