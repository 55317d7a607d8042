// Package pipeline runs the full per-URL scrape: cascade fetch, poison
// gate, rule extraction, optional vision fallback and markdown rendition.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"

	"scrapeforge/internal/cascade"
	"scrapeforge/internal/extract"
	"scrapeforge/internal/fetch"
	"scrapeforge/internal/metrics"
	"scrapeforge/internal/model"
	"scrapeforge/internal/poison"
)

// Request is one URL's worth of work.
type Request struct {
	URL     string
	Rules   []model.Rule
	Cascade cascade.Config
	// Timeout bounds each non-HTTP fetch attempt; the worker applies its
	// own hard deadline around the whole call.
	Timeout time.Duration
	// WaitFor is passed through to browser fetchers.
	WaitFor string
	// IncludeMarkdown renders the winning HTML to markdown on success.
	IncludeMarkdown bool
	// StoreRawHTML attaches the winning HTML to the result.
	StoreRawHTML bool
}

// Result mirrors what the worker persists and logs for one URL.
type Result struct {
	Success         bool              `json:"success"`
	Data            map[string]any    `json:"data,omitempty"`
	MethodUsed      string            `json:"methodUsed,omitempty"`
	StatusCode      int               `json:"statusCode,omitempty"`
	ResponseTimeMs  int64             `json:"responseTimeMs"`
	Attempts        []cascade.Attempt `json:"attempts,omitempty"`
	RawHTML         string            `json:"-"`
	Markdown        string            `json:"-"`
	VisionExtracted bool              `json:"visionExtracted,omitempty"`
	Pill            *poison.Pill      `json:"pill,omitempty"`
	ErrorType       string            `json:"errorType,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// Scraper wires the pieces together. The vision extractor may be nil;
// its absence only disables the fallback.
type Scraper struct {
	engine *cascade.Engine
	reg    *fetch.Registry
	vision extract.VisionExtractor
	logger *slog.Logger
}

func NewScraper(engine *cascade.Engine, reg *fetch.Registry, vision extract.VisionExtractor, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{engine: engine, reg: reg, vision: vision, logger: logger}
}

// Process fetches one URL through the cascade and applies the job's
// extraction rules. It never returns an error; everything a caller needs
// is on the Result.
func (s *Scraper) Process(ctx context.Context, req Request) Result {
	fres := s.engine.Run(ctx, req.URL, req.Cascade, req.Timeout, fetch.Options{WaitFor: req.WaitFor})

	out := Result{
		MethodUsed:     fres.MethodUsed,
		StatusCode:     fres.StatusCode,
		ResponseTimeMs: fres.ResponseTimeMs,
		Attempts:       fres.Attempts,
	}

	// Even a failed cascade may have produced a body worth inspecting;
	// only a completely empty one is a hard stop.
	if fres.HTML == "" {
		out.Error = fres.Error
		out.ErrorType = fetchErrorType(fres)
		return out
	}

	// Poison gate. Pills in the cascade retry set already drove the
	// fallback; whatever survived to this point is accepted as-is.
	if pill := poison.Detect(fres.HTML); pill != nil {
		out.Pill = pill
		metrics.RecordPill(string(pill.Kind))
		if !req.Cascade.RetriesOn(pill.Kind) {
			out.ErrorType = string(pill.Kind)
			out.Error = fmt.Sprintf("poison pill detected: %s (%s)", pill.Kind, pill.Evidence)
			s.logger.Info("scrape_poison_detected",
				"url", req.URL,
				"kind", string(pill.Kind),
				"severity", string(pill.Severity),
			)
			return out
		}
	}

	data, extractErrs := extract.ApplyRules(fres.HTML, req.Rules)

	// Vision fallback: only when the DOM yielded nothing at all and
	// there were rules that could have matched.
	if s.vision != nil && len(data) == 0 && len(req.Rules) > 0 {
		if fields, ok := s.visionFields(ctx, req.URL, req.Cascade.Order, req.Timeout); ok {
			for k, v := range fields {
				if _, exists := data[k]; !exists {
					data[k] = v
				}
			}
			extractErrs = nil
			out.VisionExtracted = true
		}
	}

	out.Data = data

	switch {
	case len(data) == 0:
		out.ErrorType = "extraction_failed"
		out.Error = fmt.Sprintf("No data extracted (0/%d selectors matched)", len(req.Rules))
	case len(extractErrs) > 0:
		out.ErrorType = "extraction_failed"
		out.Error = strings.Join(extractErrs, "; ")
	default:
		out.Success = true
	}

	if req.StoreRawHTML {
		out.RawHTML = fres.HTML
	}
	if req.IncludeMarkdown && out.Success {
		out.Markdown = s.renderMarkdown(req.URL, fres.HTML)
	}
	return out
}

// visionFields screenshots the page with the first browser-capable
// fetcher and asks the vision extractor for structured fields.
func (s *Scraper) visionFields(ctx context.Context, rawURL string, order []string, timeout time.Duration) (map[string]any, bool) {
	shooter, ok := s.reg.FirstScreenshotter(order)
	if !ok {
		s.logger.Debug("vision_skipped", "url", rawURL, "reason", "no screenshot-capable fetcher")
		return nil, false
	}

	png, err := shooter.Screenshot(ctx, rawURL, timeout)
	if err != nil {
		s.logger.Debug("vision_skipped", "url", rawURL, "reason", "screenshot failed", "error", err)
		return nil, false
	}

	vres, err := s.vision.ExtractImage(ctx, png)
	if err != nil {
		metrics.RecordVisionExtract(false)
		s.logger.Debug("vision_skipped", "url", rawURL, "reason", "extractor failed", "error", err)
		return nil, false
	}
	metrics.RecordVisionExtract(true)
	if len(vres.StructuredData) == 0 {
		return nil, false
	}

	s.logger.Info("vision_fallback_used", "url", rawURL, "fields", len(vres.StructuredData))
	return vres.StructuredData, true
}

// renderMarkdown is best-effort; a conversion failure only costs the
// markdown rendition.
func (s *Scraper) renderMarkdown(rawURL, html string) string {
	domain := ""
	if u, err := url.Parse(rawURL); err == nil {
		domain = u.Hostname()
	}
	converter := htmlmd.NewConverter(domain, true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		s.logger.Debug("markdown_conversion_failed", "url", rawURL, "error", err)
		return ""
	}
	return markdown
}

// fetchErrorType normalises an all-attempts-failed cascade outcome into
// the URL error taxonomy.
func fetchErrorType(res cascade.Result) string {
	if res.StatusCode > 0 {
		return fmt.Sprintf("http_%d", res.StatusCode)
	}
	return "exception"
}
