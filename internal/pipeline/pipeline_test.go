package pipeline

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"scrapeforge/internal/cascade"
	"scrapeforge/internal/extract"
	"scrapeforge/internal/fetch"
	"scrapeforge/internal/model"
	"scrapeforge/internal/poison"
)

type stubFetcher struct {
	name    string
	outcome fetch.Outcome
}

func (s *stubFetcher) Name() string { return s.name }

func (s *stubFetcher) Fetch(_ context.Context, _ string, _ time.Duration, _ fetch.Options) fetch.Outcome {
	return s.outcome
}

// shotFetcher is a stub that can also produce screenshots.
type shotFetcher struct {
	stubFetcher
	png     []byte
	shotErr error
}

func (s *shotFetcher) Screenshot(_ context.Context, _ string, _ time.Duration) ([]byte, error) {
	return s.png, s.shotErr
}

type stubVision struct {
	result *extract.VisionResult
	err    error
	calls  int
}

func (s *stubVision) ExtractImage(_ context.Context, _ []byte) (*extract.VisionResult, error) {
	s.calls++
	return s.result, s.err
}

func registryWith(t *testing.T, fetchers ...fetch.Fetcher) *fetch.Registry {
	t.Helper()
	reg := fetch.NewRegistry()
	for _, f := range fetchers {
		f := f
		reg.Register(f.Name(), func() bool { return true }, func() (fetch.Fetcher, error) { return f, nil })
	}
	return reg
}

func newScraper(t *testing.T, reg *fetch.Registry, vision extract.VisionExtractor) *Scraper {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScraper(cascade.NewEngine(reg, logger), reg, vision, logger)
}

func cleanPage(inner string) string {
	filler := strings.Repeat("plain readable article text with many ordinary words here ", 30)
	return "<html><body>" + inner + "<p>" + filler + "</p></body></html>"
}

func cascadeConfig(order ...string) cascade.Config {
	cfg := cascade.DefaultConfig()
	cfg.Order = order
	return cfg
}

func TestProcess_PromotesOn403AndExtracts(t *testing.T) {
	httpF := &stubFetcher{name: fetch.MethodHTTP, outcome: fetch.Outcome{
		Success: false, StatusCode: 403, Error: "Access denied", ResponseTimeMs: 3,
	}}
	browserF := &stubFetcher{name: fetch.MethodBrowser, outcome: fetch.Outcome{
		Success: true, StatusCode: 200, HTML: cleanPage("<h1>OK</h1>"), ResponseTimeMs: 9,
	}}
	s := newScraper(t, registryWith(t, httpF, browserF), nil)

	res := s.Process(context.Background(), Request{
		URL:     "https://example.com",
		Rules:   []model.Rule{{FieldName: "title", SelectorKind: model.SelectorCSS, Selector: "h1"}},
		Cascade: cascadeConfig(fetch.MethodHTTP, fetch.MethodBrowser),
		Timeout: 10 * time.Second,
	})

	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.MethodUsed != fetch.MethodBrowser {
		t.Fatalf("expected method browser, got %q", res.MethodUsed)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(res.Attempts))
	}
	if res.Data["title"] != "OK" {
		t.Fatalf("expected title OK, got %v", res.Data["title"])
	}
	if res.ResponseTimeMs != 12 {
		t.Fatalf("expected summed response time 12, got %d", res.ResponseTimeMs)
	}
}

func TestProcess_PaywallFailsWithPillErrorType(t *testing.T) {
	filler := strings.Repeat("ordinary readable words to satisfy the length and word floors ", 20)
	paywalled := `<html><body><p class="paywall">Subscribe to read</p><h1>Teaser</h1><p>` + filler + `</p></body></html>`
	f := &stubFetcher{name: fetch.MethodHTTP, outcome: fetch.Outcome{Success: true, StatusCode: 200, HTML: paywalled}}
	s := newScraper(t, registryWith(t, f), nil)

	res := s.Process(context.Background(), Request{
		URL:     "https://example.com",
		Rules:   []model.Rule{{FieldName: "title", SelectorKind: model.SelectorCSS, Selector: "h1"}},
		Cascade: cascadeConfig(fetch.MethodHTTP),
		Timeout: 10 * time.Second,
	})

	if res.Success {
		t.Fatal("expected failure on paywalled page")
	}
	if res.ErrorType != string(poison.KindPaywall) {
		t.Fatalf("expected error type %s, got %q", poison.KindPaywall, res.ErrorType)
	}
	if len(res.Attempts) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(res.Attempts))
	}
	if res.Pill == nil || res.Pill.Kind != poison.KindPaywall {
		t.Fatalf("expected paywall pill on result, got %+v", res.Pill)
	}
}

func TestProcess_RetrySetPillIsAcceptedAfterExhaustion(t *testing.T) {
	filler := strings.Repeat("checking your browser before accessing please stand by while we verify ", 15)
	blocked := `<html><body><div class="cf-browser-verification"></div><h1>Partial</h1><p>` + filler + `</p></body></html>`
	f := &stubFetcher{name: fetch.MethodHTTP, outcome: fetch.Outcome{Success: true, StatusCode: 200, HTML: blocked}}
	s := newScraper(t, registryWith(t, f), nil)

	res := s.Process(context.Background(), Request{
		URL:     "https://example.com",
		Rules:   []model.Rule{{FieldName: "title", SelectorKind: model.SelectorCSS, Selector: "h1"}},
		Cascade: cascadeConfig(fetch.MethodHTTP),
		Timeout: 10 * time.Second,
	})

	if !res.Success {
		t.Fatalf("retry-set pill with no methods left should be accepted, got error %q", res.Error)
	}
	if res.Data["title"] != "Partial" {
		t.Fatalf("expected extraction from the accepted page, got %v", res.Data["title"])
	}
	if res.Pill == nil || res.Pill.Kind != poison.KindAntiBot {
		t.Fatalf("expected anti_bot pill recorded, got %+v", res.Pill)
	}
}

func TestProcess_VisionFallbackMergesFields(t *testing.T) {
	page := cleanPage("<div>no price anywhere</div>")
	f := &shotFetcher{
		stubFetcher: stubFetcher{name: fetch.MethodBrowser, outcome: fetch.Outcome{Success: true, StatusCode: 200, HTML: page}},
		png:         []byte{0x89, 0x50, 0x4e, 0x47},
	}
	vision := &stubVision{result: &extract.VisionResult{
		Text: "price: $9.99",
		StructuredData: map[string]any{
			"price":     "$9.99",
			"_ocr_text": "price: $9.99",
		},
	}}
	s := newScraper(t, registryWith(t, f), vision)

	res := s.Process(context.Background(), Request{
		URL:     "https://example.com",
		Rules:   []model.Rule{{FieldName: "price", SelectorKind: model.SelectorCSS, Selector: ".price", IsRequired: true}},
		Cascade: cascadeConfig(fetch.MethodBrowser),
		Timeout: 10 * time.Second,
	})

	if !res.Success {
		t.Fatalf("expected vision fallback success, got error %q", res.Error)
	}
	if !res.VisionExtracted {
		t.Fatal("expected visionExtracted flag")
	}
	if res.Data["price"] != "$9.99" {
		t.Fatalf("expected merged price, got %v", res.Data["price"])
	}
	if vision.calls != 1 {
		t.Fatalf("expected one vision call, got %d", vision.calls)
	}
}

func TestProcess_VisionNotCalledWhenRulesMatched(t *testing.T) {
	f := &shotFetcher{
		stubFetcher: stubFetcher{name: fetch.MethodBrowser, outcome: fetch.Outcome{Success: true, StatusCode: 200, HTML: cleanPage("<h1>Hit</h1>")}},
		png:         []byte{1},
	}
	vision := &stubVision{result: &extract.VisionResult{StructuredData: map[string]any{"x": "y"}}}
	s := newScraper(t, registryWith(t, f), vision)

	res := s.Process(context.Background(), Request{
		URL:     "https://example.com",
		Rules:   []model.Rule{{FieldName: "title", SelectorKind: model.SelectorCSS, Selector: "h1"}},
		Cascade: cascadeConfig(fetch.MethodBrowser),
		Timeout: 10 * time.Second,
	})

	if !res.Success || vision.calls != 0 {
		t.Fatalf("vision must stay idle when the DOM matched; success=%v calls=%d", res.Success, vision.calls)
	}
}

func TestProcess_NoDataExtracted(t *testing.T) {
	f := &stubFetcher{name: fetch.MethodHTTP, outcome: fetch.Outcome{Success: true, StatusCode: 200, HTML: cleanPage("<div>text</div>")}}
	s := newScraper(t, registryWith(t, f), nil)

	res := s.Process(context.Background(), Request{
		URL:     "https://example.com",
		Rules:   []model.Rule{{FieldName: "price", SelectorKind: model.SelectorCSS, Selector: ".price"}},
		Cascade: cascadeConfig(fetch.MethodHTTP),
		Timeout: 10 * time.Second,
	})

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "No data extracted (0/1 selectors matched)" {
		t.Fatalf("unexpected error %q", res.Error)
	}
	if res.ErrorType != "extraction_failed" {
		t.Fatalf("unexpected error type %q", res.ErrorType)
	}
}

func TestProcess_EmptyRuleListFails(t *testing.T) {
	f := &stubFetcher{name: fetch.MethodHTTP, outcome: fetch.Outcome{Success: true, StatusCode: 200, HTML: cleanPage("<h1>x</h1>")}}
	s := newScraper(t, registryWith(t, f), nil)

	res := s.Process(context.Background(), Request{
		URL:     "https://example.com",
		Cascade: cascadeConfig(fetch.MethodHTTP),
		Timeout: 10 * time.Second,
	})

	if res.Success {
		t.Fatal("zero rules can never produce data; expected failure")
	}
	if res.Error != "No data extracted (0/0 selectors matched)" {
		t.Fatalf("unexpected error %q", res.Error)
	}
}

func TestProcess_RequiredMissFailsButKeepsPartialData(t *testing.T) {
	f := &stubFetcher{name: fetch.MethodHTTP, outcome: fetch.Outcome{Success: true, StatusCode: 200, HTML: cleanPage("<h1>Title</h1>")}}
	s := newScraper(t, registryWith(t, f), nil)

	res := s.Process(context.Background(), Request{
		URL: "https://example.com",
		Rules: []model.Rule{
			{FieldName: "title", SelectorKind: model.SelectorCSS, Selector: "h1"},
			{FieldName: "sku", SelectorKind: model.SelectorCSS, Selector: ".sku", IsRequired: true},
		},
		Cascade: cascadeConfig(fetch.MethodHTTP),
		Timeout: 10 * time.Second,
	})

	if res.Success {
		t.Fatal("expected failure from required-field miss")
	}
	if !strings.Contains(res.Error, `required field "sku"`) {
		t.Fatalf("expected required-field error, got %q", res.Error)
	}
	if res.Data["title"] != "Title" {
		t.Fatalf("partial data should survive, got %v", res.Data)
	}
}

func TestProcess_FetchFailureWithoutHTML(t *testing.T) {
	f := &stubFetcher{name: fetch.MethodHTTP, outcome: fetch.Outcome{Success: false, StatusCode: 503, Error: "HTTP 503 Service Unavailable"}}
	s := newScraper(t, registryWith(t, f), nil)

	res := s.Process(context.Background(), Request{
		URL:     "https://example.com",
		Rules:   []model.Rule{{FieldName: "title", SelectorKind: model.SelectorCSS, Selector: "h1"}},
		Cascade: cascadeConfig(fetch.MethodHTTP),
		Timeout: 10 * time.Second,
	})

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorType != "http_503" {
		t.Fatalf("expected http_503, got %q", res.ErrorType)
	}
}

func TestProcess_NetworkErrorWithoutStatus(t *testing.T) {
	f := &stubFetcher{name: fetch.MethodHTTP, outcome: fetch.Outcome{Success: false, Error: "dial tcp: connection refused"}}
	s := newScraper(t, registryWith(t, f), nil)

	res := s.Process(context.Background(), Request{
		URL:     "https://example.com",
		Cascade: cascadeConfig(fetch.MethodHTTP),
		Timeout: 10 * time.Second,
	})

	if res.ErrorType != "exception" {
		t.Fatalf("expected exception, got %q", res.ErrorType)
	}
	if !strings.Contains(res.Error, "connection refused") {
		t.Fatalf("expected engine error propagated, got %q", res.Error)
	}
}

func TestProcess_MarkdownAndRawHTMLFlags(t *testing.T) {
	f := &stubFetcher{name: fetch.MethodHTTP, outcome: fetch.Outcome{Success: true, StatusCode: 200, HTML: cleanPage("<h1>Heading</h1>")}}
	s := newScraper(t, registryWith(t, f), nil)

	req := Request{
		URL:             "https://example.com/article",
		Rules:           []model.Rule{{FieldName: "title", SelectorKind: model.SelectorCSS, Selector: "h1"}},
		Cascade:         cascadeConfig(fetch.MethodHTTP),
		Timeout:         10 * time.Second,
		IncludeMarkdown: true,
		StoreRawHTML:    true,
	}

	res := s.Process(context.Background(), req)
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if !strings.Contains(res.Markdown, "Heading") {
		t.Fatalf("expected markdown rendition, got %q", res.Markdown)
	}
	if res.RawHTML == "" {
		t.Fatal("expected raw HTML attached")
	}

	req.IncludeMarkdown = false
	req.StoreRawHTML = false
	res = s.Process(context.Background(), req)
	if res.Markdown != "" || res.RawHTML != "" {
		t.Fatal("expected markdown and raw HTML omitted when flags are off")
	}
}
