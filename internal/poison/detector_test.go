package poison

import (
	"strings"
	"testing"
)

// filler returns clean prose of exactly n bytes so tests can sit on
// either side of the raw-length floor without tripping other checks.
func filler(n int) string {
	base := strings.Repeat("plain readable words fill this page with ordinary text ", n/50+2)
	return base[:n]
}

func TestDetect_LengthFloorBoundary(t *testing.T) {
	if pill := Detect(filler(500)); pill != nil {
		t.Fatalf("expected 500 chars to pass the floor, got %+v", pill)
	}

	pill := Detect(filler(499))
	if pill == nil {
		t.Fatalf("expected 499 chars to fail the floor")
	}
	if pill.Kind != KindContentTooShort || pill.Severity != SeverityMedium {
		t.Fatalf("expected medium content_too_short, got %+v", pill)
	}
}

func TestDetect_EmptyInputIsContentTooShort(t *testing.T) {
	pill := Detect("")
	if pill == nil || pill.Kind != KindContentTooShort {
		t.Fatalf("expected content_too_short for empty input, got %+v", pill)
	}
}

func TestDetect_WordCountFloor(t *testing.T) {
	// Long enough in raw bytes, nearly no visible text.
	html := strings.Repeat("<div><span></span></div>", 40)
	pill := Detect(html)
	if pill == nil || pill.Kind != KindContentTooShort {
		t.Fatalf("expected content_too_short for markup-only page, got %+v", pill)
	}
}

func TestDetect_PaywallMarkup(t *testing.T) {
	html := `<html><body><p class="paywall">Subscribe to read</p>` + filler(600) + `</body></html>`
	pill := Detect(html)
	if pill == nil || pill.Kind != KindPaywall {
		t.Fatalf("expected paywall_detected, got %+v", pill)
	}
	if pill.Severity != SeverityHigh {
		t.Fatalf("expected high severity, got %s", pill.Severity)
	}
}

func TestDetect_RateLimitBeforeAntiBot(t *testing.T) {
	// Both vocabularies present; the rate-limit check must win.
	html := `<html><body><p>Access denied. You have exceeded our rate limit, too many requests.</p>` +
		filler(600) + `</body></html>`
	pill := Detect(html)
	if pill == nil || pill.Kind != KindRateLimited {
		t.Fatalf("expected rate_limited to win over anti_bot, got %+v", pill)
	}
}

func TestDetect_RateLimitMarkup(t *testing.T) {
	html := `<html><body data-status="429"><p>` + filler(600) + `</p></body></html>`
	pill := Detect(html)
	if pill == nil || pill.Kind != KindRateLimited {
		t.Fatalf("expected rate_limited from 429 markup, got %+v", pill)
	}
}

func TestDetect_AntiBotMarkupIsCritical(t *testing.T) {
	html := `<html><body><div id="cf-browser-verification"></div>` + filler(600) + `</body></html>`
	pill := Detect(html)
	if pill == nil || pill.Kind != KindAntiBot {
		t.Fatalf("expected anti_bot, got %+v", pill)
	}
	if pill.Severity != SeverityCritical {
		t.Fatalf("expected critical severity for cf marker, got %s", pill.Severity)
	}
}

func TestDetect_AntiBotText(t *testing.T) {
	html := `<html><body><h1>Access Denied</h1><p>Please verify you are human.</p>` +
		filler(600) + `</body></html>`
	pill := Detect(html)
	if pill == nil || pill.Kind != KindAntiBot {
		t.Fatalf("expected anti_bot, got %+v", pill)
	}
	if pill.Severity != SeverityHigh {
		t.Fatalf("expected high severity for text match, got %s", pill.Severity)
	}
}

func TestDetect_AntiBotTextProbeRunsBeforeMarkup(t *testing.T) {
	// Both anti-bot signals present; the text probe wins, so the pill
	// grades high rather than critical.
	html := `<html><body><div id="cf-browser-verification"></div><h1>Access Denied</h1>` +
		filler(600) + `</body></html>`
	pill := Detect(html)
	if pill == nil || pill.Kind != KindAntiBot {
		t.Fatalf("expected anti_bot, got %+v", pill)
	}
	if pill.Severity != SeverityHigh {
		t.Fatalf("expected text probe to grade high, got %s", pill.Severity)
	}
}

func TestDetect_Captcha(t *testing.T) {
	html := `<html><body><div class="g-recaptcha" data-sitekey="k"></div>` + filler(600) + `</body></html>`
	pill := Detect(html)
	if pill == nil || pill.Kind != KindCaptcha {
		t.Fatalf("expected captcha, got %+v", pill)
	}
	if pill.Severity != SeverityCritical {
		t.Fatalf("expected critical severity, got %s", pill.Severity)
	}
}

func TestDetect_LoginRequired(t *testing.T) {
	html := `<html><body><p>Please log in to continue.</p>` + filler(600) + `</body></html>`
	pill := Detect(html)
	if pill == nil || pill.Kind != KindLoginRequired {
		t.Fatalf("expected login_required, got %+v", pill)
	}
}

func TestDetect_DeadLinkFromTitle(t *testing.T) {
	html := `<html><head><title>Oops 404</title></head><body>` + filler(600) + `</body></html>`
	pill := Detect(html)
	if pill == nil || pill.Kind != KindDeadLink {
		t.Fatalf("expected dead_link from title, got %+v", pill)
	}
}

func TestDetect_DeadLinkFromBody(t *testing.T) {
	html := `<html><body><h1>Page not found</h1>` + filler(600) + `</body></html>`
	pill := Detect(html)
	if pill == nil || pill.Kind != KindDeadLink {
		t.Fatalf("expected dead_link, got %+v", pill)
	}
}

func TestDetect_CleanPage(t *testing.T) {
	html := `<html><head><title>Product</title></head><body><h1>Widget</h1><p>` +
		filler(800) + `</p></body></html>`
	if pill := Detect(html); pill != nil {
		t.Fatalf("expected clean page, got %+v", pill)
	}
}

func TestDetect_Deterministic(t *testing.T) {
	html := `<html><body><p>rate limit exceeded</p>` + filler(600) + `</body></html>`
	first := Detect(html)
	second := Detect(html)
	if first == nil || second == nil {
		t.Fatalf("expected detection on both runs")
	}
	if first.Kind != second.Kind || first.Severity != second.Severity {
		t.Fatalf("expected identical results, got %+v then %+v", first, second)
	}
}

func TestKind_Retryable(t *testing.T) {
	retryable := []Kind{KindContentTooShort, KindRateLimited, KindAntiBot}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("expected %s to be retryable", k)
		}
	}
	terminal := []Kind{KindPaywall, KindCaptcha, KindLoginRequired, KindDeadLink}
	for _, k := range terminal {
		if k.Retryable() {
			t.Errorf("expected %s to be terminal", k)
		}
	}
}
