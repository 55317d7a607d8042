// Package cascade implements the ordered fetch fallback: try the cheapest
// fetcher first and promote the URL to heavier methods when the response
// looks blocked, empty or javascript-rendered.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"scrapeforge/internal/fetch"
	"scrapeforge/internal/poison"
)

// Attempt records one fetcher invocation inside a run.
type Attempt struct {
	Method         string `json:"method"`
	Success        bool   `json:"success"`
	StatusCode     int    `json:"statusCode,omitempty"`
	Error          string `json:"error,omitempty"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// Result is the outcome of a full cascade run. ResponseTimeMs is the sum
// across attempts, not wall clock.
type Result struct {
	Success        bool      `json:"success"`
	HTML           string    `json:"-"`
	MethodUsed     string    `json:"methodUsed,omitempty"`
	StatusCode     int       `json:"statusCode,omitempty"`
	Error          string    `json:"error,omitempty"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	Attempts       []Attempt `json:"attempts"`
}

// Engine runs the cascade over a fetcher registry. It never returns an
// error and never panics; fetcher failures become attempt entries.
type Engine struct {
	reg    *fetch.Registry
	logger *slog.Logger
}

func NewEngine(reg *fetch.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{reg: reg, logger: logger}
}

// Run tries the configured methods in order until one produces acceptable
// HTML or everything is exhausted. Unavailable fetchers are filtered out
// before iteration and never consume an attempt.
func (e *Engine) Run(ctx context.Context, url string, cfg Config, timeout time.Duration, opts fetch.Options) Result {
	order := e.availableOrder(cfg.Order)
	if len(order) == 0 {
		return Result{Success: false, Error: "no fetchers available", Attempts: []Attempt{}}
	}
	if !cfg.Enabled {
		// Cascade off: the first available fetcher is the only try.
		order = order[:1]
	}

	budget := cfg.MaxAttempts
	if budget <= 0 || budget > len(cfg.Order) {
		budget = len(cfg.Order)
	}

	res := Result{Attempts: make([]Attempt, 0, len(order))}
	for i, name := range order {
		if len(res.Attempts) >= budget {
			break
		}

		methodTimeout := timeout
		if name == fetch.MethodHTTP {
			// The plain client is cheap; give it half the budget so the
			// heavier methods keep room to run.
			methodTimeout = timeout / 2
		}

		out := e.invoke(ctx, name, url, methodTimeout, opts)
		att := Attempt{
			Method:         name,
			Success:        out.Success,
			StatusCode:     out.StatusCode,
			Error:          out.Error,
			ResponseTimeMs: out.ResponseTimeMs,
		}
		res.ResponseTimeMs += out.ResponseTimeMs
		res.MethodUsed = name
		res.StatusCode = out.StatusCode
		res.HTML = out.HTML
		res.Error = out.Error

		remaining := i+1 < len(order) && len(res.Attempts)+1 < budget

		if out.Success {
			reason := shouldFallback(out.HTML, cfg.FallbackOn)
			if reason != "" && remaining {
				att.FallbackReason = reason
				res.Attempts = append(res.Attempts, att)
				e.logger.Info("cascade_fallback", "url", url, "method", name, "reason", reason)
				continue
			}
			res.Attempts = append(res.Attempts, att)
			res.Success = true
			res.Error = ""
			return res
		}

		reason := shouldTryNext(out, cfg.FallbackOn)
		att.FallbackReason = reason
		res.Attempts = append(res.Attempts, att)
		e.logger.Info("cascade_attempt_failed",
			"url", url,
			"method", name,
			"status", out.StatusCode,
			"error", out.Error,
		)
		if !remaining {
			break
		}
	}

	// Exhausted. The last attempt may still have produced usable HTML
	// (a success that tripped a fallback trigger with nothing left to
	// promote to); in that case hand it back as a success and let the
	// caller's poison gate decide.
	last := res.Attempts[len(res.Attempts)-1]
	if last.Success {
		res.Success = true
		res.Error = ""
		return res
	}
	if res.Error == "" {
		res.Error = "All cascade methods failed"
	}
	e.logger.Warn("cascade_exhausted", "url", url, "attempts", len(res.Attempts), "error", res.Error)
	return res
}

// availableOrder filters the configured order down to fetchers the
// registry can actually produce, preserving order.
func (e *Engine) availableOrder(order []string) []string {
	out := make([]string, 0, len(order))
	for _, name := range order {
		if e.reg.Available(name) {
			out = append(out, name)
		} else {
			e.logger.Debug("fetcher_unavailable", "method", name)
		}
	}
	return out
}

// invoke resolves and calls one fetcher, converting panics and build
// failures into failed outcomes so the loop can continue.
func (e *Engine) invoke(ctx context.Context, name, url string, timeout time.Duration, opts fetch.Options) (out fetch.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = fetch.Outcome{Success: false, Error: fmt.Sprintf("fetcher panic: %v", r)}
		}
	}()

	f, ok := e.reg.Get(name)
	if !ok {
		return fetch.Outcome{Success: false, Error: fmt.Sprintf("fetcher %q could not be built", name)}
	}
	return f.Fetch(ctx, url, timeout, opts)
}

// SPA shell markers that indicate the HTML is an empty client-side
// rendering target rather than real content.
var spaSentinels = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"`,
	`window.__initial_state__`,
	`window.__nuxt__`,
	`ng-app=`,
	`data-reactroot`,
}

// shouldFallback evaluates a successful fetch against the fallback rules.
// A non-empty return is the reason to promote to the next method.
func shouldFallback(html string, rules FallbackRules) string {
	if rules.JavascriptRequired {
		if reason := javascriptShellReason(html); reason != "" {
			return reason
		}
	}
	if rules.EmptyContent && len(html) < rules.MinContentLength {
		return fmt.Sprintf("content below %d chars", rules.MinContentLength)
	}
	if len(rules.PoisonPills) > 0 {
		if pill := poison.Detect(html); pill != nil {
			for _, k := range rules.PoisonPills {
				if k == string(pill.Kind) {
					return "poison pill: " + string(pill.Kind)
				}
			}
		}
	}
	return ""
}

// javascriptShellReason reports why the HTML looks like an unrendered
// client-side app, or "" if it looks fine.
func javascriptShellReason(html string) string {
	if html == "" {
		return "empty response body"
	}
	if len(html) < 1000 {
		return "response too small to be a rendered page"
	}
	lower := strings.ToLower(html)
	for _, marker := range spaSentinels {
		if strings.Contains(lower, marker) {
			return "spa shell marker " + marker
		}
	}
	if strippedBodyLength(html) < 500 {
		return "body text under 500 chars after stripping markup"
	}
	return ""
}

// strippedBodyLength measures the visible body text with scripts and
// styles removed.
func strippedBodyLength(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return len(poison.StripTags(html))
	}
	body := doc.Find("body")
	body.Find("script, style, noscript").Remove()
	return len(strings.TrimSpace(body.Text()))
}

// shouldTryNext classifies a failed attempt. Failures always advance the
// cascade while methods remain; the return value is the recorded reason.
func shouldTryNext(out fetch.Outcome, rules FallbackRules) string {
	for _, code := range rules.StatusCodes {
		if out.StatusCode == code {
			return fmt.Sprintf("status %d triggers fallback", code)
		}
	}
	if out.Error != "" {
		lowerErr := strings.ToLower(out.Error)
		for _, pat := range rules.ErrorPatterns {
			if pat != "" && strings.Contains(lowerErr, strings.ToLower(pat)) {
				return fmt.Sprintf("error matched pattern %q", pat)
			}
		}
	}
	return "fetch failed"
}
