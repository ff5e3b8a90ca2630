// Package webclient provides pluggable HTTP fetch backends. The plain
// nethttp backend covers the admin and discovery endpoints; the chromedp
// backend renders script-heavy editor pages (SharePoint, Google Drive)
// before handing back their HTML.
package webclient

import (
	"context"
	"net/http"
	"time"
)

// WebClient is the minimal cross-package contract for fetching URLs.
// Implementations should be safe for concurrent use.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	// Get is a convenience method for simple GET requests
	Get(ctx context.Context, url string) (*Response, error)

	Close() error
}

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
	// Options contains backend-specific options like "render": "true" for chromedp
	Options map[string]string
}

type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
}
