package fetch

import (
	"context"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
)

// CollyFetcher is the mid-tier fetcher. It rides colly's cookie jar,
// redirect handling and user-agent rotation, which clears sites that
// object to the bare HTTP client without paying for a browser.
type CollyFetcher struct {
	userAgent string
}

// NewCollyFetcher returns a collector fetcher. An empty userAgent
// enables per-request user-agent rotation instead.
func NewCollyFetcher(userAgent string) *CollyFetcher {
	return &CollyFetcher{userAgent: userAgent}
}

func (f *CollyFetcher) Name() string { return MethodCollector }

func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration, _ Options) Outcome {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return Outcome{Error: err.Error(), ResponseTimeMs: elapsedMs(start)}
	}

	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	}
	if f.userAgent != "" {
		opts = append(opts, colly.UserAgent(f.userAgent))
	}
	c := colly.NewCollector(opts...)
	if f.userAgent == "" {
		extensions.RandomUserAgent(c)
	}
	extensions.Referer(c)
	c.SetRequestTimeout(timeout)

	var (
		html    string
		status  int
		fetchEr error
	)
	c.OnResponse(func(r *colly.Response) {
		html = string(r.Body)
		status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
			if len(r.Body) > 0 {
				html = string(r.Body)
			}
		}
		fetchEr = err
	})

	if err := c.Visit(rawURL); err != nil && fetchEr == nil {
		fetchEr = err
	}
	c.Wait()

	out := Outcome{
		HTML:           html,
		StatusCode:     status,
		ResponseTimeMs: elapsedMs(start),
	}
	if fetchEr != nil {
		out.Error = fetchEr.Error()
		return out
	}
	if status >= 400 {
		out.Error = "HTTP error response"
		return out
	}
	out.Success = true
	return out
}
