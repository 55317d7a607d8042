// Package fetch defines the fetcher port of the cascade engine and the
// built-in backends: a lightweight HTTP client, a colly-based collector
// and a rod-driven headless browser.
package fetch

import (
	"context"
	"time"
)

// Method names for the built-in fetchers, cheapest first.
const (
	MethodHTTP      = "http"
	MethodCollector = "collector"
	MethodBrowser   = "browser"
)

// DefaultOrder is the cascade order used when none is configured.
var DefaultOrder = []string{MethodHTTP, MethodCollector, MethodBrowser}

// Options modify a single fetch call.
type Options struct {
	// WaitFor is a CSS selector a browser fetcher waits for before
	// reading the page. Ignored by non-browser fetchers.
	WaitFor string
	// TakeScreenshot asks a capable fetcher to attach a PNG of the
	// rendered page to the outcome.
	TakeScreenshot bool
}

// Outcome is the result of one fetch attempt. Errors are carried in
// Error rather than returned so the cascade engine can treat every
// attempt uniformly.
type Outcome struct {
	Success        bool   `json:"success"`
	HTML           string `json:"-"`
	StatusCode     int    `json:"statusCode,omitempty"`
	Error          string `json:"error,omitempty"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
	Screenshot     []byte `json:"-"`
}

// Fetcher produces HTML for a URL. Implementations must either be safe
// for concurrent Fetch calls or serialise internally.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, url string, timeout time.Duration, opts Options) Outcome
}

// Screenshotter is implemented by fetchers that can render a page to a
// PNG without a full fetch outcome. The vision fallback uses the first
// one found in cascade order.
type Screenshotter interface {
	Screenshot(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
}
