package fetch

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// RodFetcher renders pages in a headless browser over CDP. It is the
// heavyweight tier: JS-rendered SPAs and most bot walls clear here.
// Calls are serialised by an internal mutex; one page per browser
// connection at a time.
type RodFetcher struct {
	browserURL string
	mu         sync.Mutex
}

// NewRodFetcher returns a browser fetcher. browserURL points at a
// remote CDP endpoint; empty means launch a local browser.
func NewRodFetcher(browserURL string) *RodFetcher {
	return &RodFetcher{browserURL: browserURL}
}

func (f *RodFetcher) Name() string { return MethodBrowser }

func (f *RodFetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration, opts Options) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()

	browser, page, err := f.openPage(ctx, rawURL, timeout)
	if err != nil {
		return Outcome{Error: err.Error(), ResponseTimeMs: elapsedMs(start)}
	}
	defer browser.MustClose()
	defer page.MustClose()

	if opts.WaitFor != "" {
		if _, err := page.Element(opts.WaitFor); err != nil {
			return Outcome{Error: "waiting for selector: " + err.Error(), ResponseTimeMs: elapsedMs(start)}
		}
	}

	html, err := page.HTML()
	if err != nil {
		return Outcome{Error: err.Error(), ResponseTimeMs: elapsedMs(start)}
	}

	out := Outcome{
		Success:        true,
		HTML:           html,
		StatusCode:     200,
		ResponseTimeMs: elapsedMs(start),
	}

	if opts.TakeScreenshot {
		if shot, err := page.Screenshot(false, nil); err == nil {
			out.Screenshot = shot
		}
	}
	return out
}

// Screenshot renders the page and returns a PNG of the viewport.
func (f *RodFetcher) Screenshot(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	browser, page, err := f.openPage(ctx, rawURL, timeout)
	if err != nil {
		return nil, err
	}
	defer browser.MustClose()
	defer page.MustClose()

	return page.Screenshot(false, nil)
}

func (f *RodFetcher) openPage(ctx context.Context, rawURL string, timeout time.Duration) (*rod.Browser, *rod.Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, err
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	browser := rod.New().Context(ctx).Timeout(timeout)
	if f.browserURL != "" {
		browser = browser.ControlURL(f.browserURL)
	}
	if err := browser.Connect(); err != nil {
		return nil, nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: u.String()})
	if err != nil {
		browser.MustClose()
		return nil, nil, err
	}
	if err := page.WaitLoad(); err != nil {
		page.MustClose()
		browser.MustClose()
		return nil, nil, err
	}
	return browser, page, nil
}
