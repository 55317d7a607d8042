// Package poison classifies fetched HTML into content-level failure
// modes (paywalls, anti-bot walls, CAPTCHAs, rate limiting, login walls,
// dead links, empty shells). Detection is a pure function over the
// document text; all patterns are compiled once at package init.
package poison

import (
	"regexp"
	"strings"
)

// Kind identifies a detected failure mode. The values double as URL
// error types.
type Kind string

const (
	KindContentTooShort Kind = "content_too_short"
	KindPaywall         Kind = "paywall_detected"
	KindRateLimited     Kind = "rate_limited"
	KindAntiBot         Kind = "anti_bot"
	KindCaptcha         Kind = "captcha"
	KindLoginRequired   Kind = "login_required"
	KindDeadLink        Kind = "dead_link"
)

// Retryable reports whether a different fetch method has a realistic
// chance of clearing the pill. Paywalls, CAPTCHAs, login walls and dead
// links fail the same way regardless of how the page is fetched.
func (k Kind) Retryable() bool {
	switch k {
	case KindContentTooShort, KindRateLimited, KindAntiBot:
		return true
	default:
		return false
	}
}

// Severity grades how confidently the page can be ruled unusable.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Pill is a positive detection: the failure kind, how severe it is, the
// evidence that triggered it, and a suggested remedial action.
type Pill struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Evidence string   `json:"evidence"`
	Action   string   `json:"action"`
}

const (
	// minContentLength is the raw-length floor below which a page is
	// treated as an empty shell. A page of exactly this length passes.
	minContentLength = 500
	// minWordCount is the floor on words left after tag stripping.
	minWordCount = 50
)

var (
	scriptRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`\s+`)
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
)

var paywallPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)subscribe\s+to\s+(?:read|continue|view)`),
	regexp.MustCompile(`(?i)subscription\s+required`),
	regexp.MustCompile(`(?i)premium\s+(?:content|article|access)`),
	regexp.MustCompile(`(?i)to\s+continue\s+reading`),
	regexp.MustCompile(`(?i)already\s+a\s+subscriber`),
	regexp.MustCompile(`(?i)for\s+subscribers\s+only`),
	regexp.MustCompile(`(?i)unlock\s+(?:this\s+)?(?:article|story)`),
	regexp.MustCompile(`(?i)register\s+to\s+(?:read|continue)`),
}

var paywallMarkup = []string{
	`class="paywall"`,
	`data-paywall`,
	`id="paywall"`,
	`class="subscriber-only"`,
}

var rateLimitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rate\s*limit(?:ed|ing)?`),
	regexp.MustCompile(`(?i)too\s+many\s+requests`),
	regexp.MustCompile(`(?i)throttl(?:ed|ing)`),
	regexp.MustCompile(`(?i)quota\s+exceeded`),
	regexp.MustCompile(`(?i)request\s+limit\s+(?:reached|exceeded)`),
	regexp.MustCompile(`(?i)retry\s+(?:again\s+)?(?:in|after)\s+\d+`),
	regexp.MustCompile(`(?i)slow\s+down`),
	regexp.MustCompile(`(?i)usage\s+limit\s+exceeded`),
	regexp.MustCompile(`(?i)temporarily\s+(?:blocked|limited)`),
}

var rateLimitMarkup = []string{
	`status="429"`,
	`429 too many`,
}

// Anti-bot phrasing deliberately excludes rate-limit wording; the
// rate-limit check must run first so "rate limit" pages are not
// classified as generic bot walls.
var antiBotPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)access\s+denied`),
	regexp.MustCompile(`(?i)verify\s+(?:that\s+)?you\s+are\s+(?:a\s+)?human`),
	regexp.MustCompile(`(?i)checking\s+your\s+browser`),
	regexp.MustCompile(`(?i)cloudflare\s+ray\s+id`),
	regexp.MustCompile(`(?i)attention\s+required.{0,40}cloudflare`),
	regexp.MustCompile(`(?i)bot\s+(?:detection|protection|check)`),
	regexp.MustCompile(`(?i)unusual\s+traffic\s+from\s+your`),
	regexp.MustCompile(`(?i)automated\s+(?:access|requests?)\s+(?:is|are)\s+not\s+allowed`),
}

var antiBotMarkup = []string{
	`cf-browser-verification`,
	`cf_chl_opt`,
}

var captchaMarkup = []string{
	`g-recaptcha`,
	`h-captcha`,
	`recaptcha`,
	`captcha-container`,
	`cf-turnstile`,
}

var loginPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)please\s+(?:log|sign)\s+in\s+to\s+(?:continue|view|read|access)`),
	regexp.MustCompile(`(?i)login\s+required`),
	regexp.MustCompile(`(?i)you\s+must\s+(?:be\s+logged|log|sign)\s+in`),
	regexp.MustCompile(`(?i)sign\s+in\s+to\s+your\s+account`),
	regexp.MustCompile(`(?i)authentication\s+required`),
	regexp.MustCompile(`(?i)members?\s+only\s+area`),
}

var deadLinkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)page\s+not\s+found`),
	regexp.MustCompile(`(?i)404\s+(?:error|not\s+found)`),
	regexp.MustCompile(`(?i)this\s+page\s+(?:doesn'?t|does\s+not)\s+exist`),
	regexp.MustCompile(`(?i)no\s+longer\s+available`),
	regexp.MustCompile(`(?i)content\s+(?:has\s+been\s+)?(?:removed|deleted)`),
}

// Detect classifies html, returning nil when the page looks usable.
// Checks run in a fixed order and the first hit wins, so repeated calls
// on the same input always return the same pill.
func Detect(html string) *Pill {
	if len(html) < minContentLength {
		return &Pill{
			Kind:     KindContentTooShort,
			Severity: SeverityMedium,
			Evidence: "raw length below floor",
			Action:   "retry with a browser fetcher or a longer wait",
		}
	}

	lower := strings.ToLower(html)
	text := StripTags(html)

	if wordCount(text) < minWordCount {
		return &Pill{
			Kind:     KindContentTooShort,
			Severity: SeverityMedium,
			Evidence: "visible word count below floor",
			Action:   "retry with a browser fetcher or a longer wait",
		}
	}

	if p := matchAny(text, paywallPatterns); p != "" {
		return &Pill{Kind: KindPaywall, Severity: SeverityHigh, Evidence: p, Action: "requires subscription; skip"}
	}
	if m := containsAny(lower, paywallMarkup); m != "" {
		return &Pill{Kind: KindPaywall, Severity: SeverityHigh, Evidence: m, Action: "requires subscription; skip"}
	}

	if p := matchAny(text, rateLimitPatterns); p != "" {
		return &Pill{Kind: KindRateLimited, Severity: SeverityHigh, Evidence: p, Action: "back off and retry later"}
	}
	if m := containsAny(lower, rateLimitMarkup); m != "" {
		return &Pill{Kind: KindRateLimited, Severity: SeverityHigh, Evidence: m, Action: "back off and retry later"}
	}

	if p := matchAny(text, antiBotPatterns); p != "" {
		return &Pill{Kind: KindAntiBot, Severity: SeverityHigh, Evidence: p, Action: "retry with a browser fetcher"}
	}
	if m := containsAny(lower, antiBotMarkup); m != "" {
		return &Pill{Kind: KindAntiBot, Severity: SeverityCritical, Evidence: m, Action: "retry with a browser fetcher"}
	}

	if m := containsAny(lower, captchaMarkup); m != "" {
		return &Pill{Kind: KindCaptcha, Severity: SeverityCritical, Evidence: m, Action: "manual solve required; skip"}
	}

	if p := matchAny(text, loginPatterns); p != "" {
		return &Pill{Kind: KindLoginRequired, Severity: SeverityHigh, Evidence: p, Action: "requires an authenticated session; skip"}
	}

	if p := matchAny(text, deadLinkPatterns); p != "" {
		return &Pill{Kind: KindDeadLink, Severity: SeverityHigh, Evidence: p, Action: "verify the URL; skip"}
	}
	if title := pageTitle(lower); title != "" {
		if strings.Contains(title, "404") || strings.Contains(title, "not found") {
			return &Pill{Kind: KindDeadLink, Severity: SeverityHigh, Evidence: "title: " + title, Action: "verify the URL; skip"}
		}
	}

	return nil
}

// StripTags removes script and style blocks, then all tags, and
// collapses whitespace. Shared with the cascade body heuristic.
func StripTags(html string) string {
	s := scriptRe.ReplaceAllString(html, " ")
	s = styleRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func wordCount(text string) int {
	if text == "" {
		return 0
	}
	return len(strings.Fields(text))
}

func matchAny(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

func containsAny(lower string, markers []string) string {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return m
		}
	}
	return ""
}

func pageTitle(lower string) string {
	m := titleRe.FindStringSubmatch(lower)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
