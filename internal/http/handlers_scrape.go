package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"scrapeforge/internal/cascade"
	"scrapeforge/internal/config"
	"scrapeforge/internal/jobs"
	"scrapeforge/internal/metrics"
	"scrapeforge/internal/pipeline"
)

// scrapePreviewHandler runs one URL through the full pipeline without
// persisting anything. It exists to try rules out before committing
// them to a job, so the response always carries the pipeline's verdict;
// a failed scrape is a 200 with success=false and diagnostics attached.
func scrapePreviewHandler(c *fiber.Ctx) error {
	var req ScrapePreviewRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST_INVALID_JSON",
			Error:   "Bad request, malformed JSON",
		})
	}

	if req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Missing required field 'url'",
		})
	}

	rules, err := rulesFromInput(req.Rules)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   err.Error(),
		})
	}

	cfg := c.Locals("config").(*config.Config)
	proc, ok := c.Locals("scraper").(jobs.URLProcessor)
	if !ok || proc == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Success: false,
			Code:    "SCRAPER_UNAVAILABLE",
			Error:   "scrape pipeline is not configured",
		})
	}

	timeout := previewTimeout(cfg, req.Settings)
	cc := cascade.FromSettings(cascade.FromAppConfig(cfg), req.Settings)

	ctx, cancel := context.WithTimeout(c.Context(), timeout)
	defer cancel()

	res := proc.Process(ctx, pipeline.Request{
		URL:             req.URL,
		Rules:           rules,
		Cascade:         cc,
		Timeout:         timeout,
		WaitFor:         previewString(req.Settings, "wait_for"),
		IncludeMarkdown: previewBool(req.Settings, "include_markdown", cfg.Scraper.IncludeMarkdown),
		StoreRawHTML:    previewBool(req.Settings, "store_raw_html", false),
	})

	for _, att := range res.Attempts {
		metrics.RecordFetchAttempt(att.Method, att.Success)
	}

	return c.Status(fiber.StatusOK).JSON(ScrapePreviewResponse{
		Success:         res.Success,
		Data:            res.Data,
		MethodUsed:      res.MethodUsed,
		StatusCode:      res.StatusCode,
		ResponseTimeMs:  res.ResponseTimeMs,
		Attempts:        res.Attempts,
		Markdown:        res.Markdown,
		RawHTML:         res.RawHTML,
		VisionExtracted: res.VisionExtracted,
		ErrorType:       res.ErrorType,
		Error:           res.Error,
	})
}

// previewTimeout resolves url_timeout from the request's settings map,
// falling back to the configured default. JSON numbers decode as
// float64, so fractional seconds are accepted.
func previewTimeout(cfg *config.Config, settings map[string]any) time.Duration {
	d := time.Duration(cfg.Scraper.URLTimeoutSeconds) * time.Second
	if v, ok := settings["url_timeout"]; ok {
		switch n := v.(type) {
		case int:
			if n > 0 {
				d = time.Duration(n) * time.Second
			}
		case int64:
			if n > 0 {
				d = time.Duration(n) * time.Second
			}
		case float64:
			if n > 0 {
				d = time.Duration(n * float64(time.Second))
			}
		}
	}
	if d <= 0 {
		d = 30 * time.Second
	}
	return d
}

func previewBool(settings map[string]any, key string, def bool) bool {
	if v, ok := settings[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func previewString(settings map[string]any, key string) string {
	if v, ok := settings[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
