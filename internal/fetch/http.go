package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// maxBodyBytes caps how much of a response body is read. Pages past
// this size are truncated, not failed.
const maxBodyBytes = 10 << 20

// HTTPFetcher is the lightweight first-tier fetcher built on net/http.
// The cascade engine gives it half the method timeout so slow targets
// promote to heavier backends quickly.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher returns an HTTP fetcher using the given User-Agent.
func NewHTTPFetcher(userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{},
		userAgent: userAgent,
	}
}

func (f *HTTPFetcher) Name() string { return MethodHTTP }

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration, _ Options) Outcome {
	start := time.Now()

	u, err := url.Parse(rawURL)
	if err != nil {
		return Outcome{Error: fmt.Sprintf("invalid url: %v", err), ResponseTimeMs: elapsedMs(start)}
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Outcome{Error: err.Error(), ResponseTimeMs: elapsedMs(start)}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return Outcome{Error: err.Error(), ResponseTimeMs: elapsedMs(start)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Outcome{
			StatusCode:     resp.StatusCode,
			Error:          fmt.Sprintf("reading body: %v", err),
			ResponseTimeMs: elapsedMs(start),
		}
	}

	out := Outcome{
		HTML:           string(body),
		StatusCode:     resp.StatusCode,
		ResponseTimeMs: elapsedMs(start),
	}
	if resp.StatusCode >= 400 {
		out.Error = fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		return out
	}
	out.Success = true
	return out
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
