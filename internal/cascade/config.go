package cascade

import (
	"scrapeforge/internal/config"
	"scrapeforge/internal/fetch"
	"scrapeforge/internal/poison"
)

// FallbackRules decides when the engine abandons a successful fetch and
// promotes the URL to the next method in the order.
type FallbackRules struct {
	StatusCodes        []int    `json:"status_codes,omitempty"`
	ErrorPatterns      []string `json:"error_patterns,omitempty"`
	PoisonPills        []string `json:"poison_pills,omitempty"`
	EmptyContent       bool     `json:"empty_content,omitempty"`
	MinContentLength   int      `json:"min_content_length,omitempty"`
	JavascriptRequired bool     `json:"javascript_required,omitempty"`
}

// Config drives one engine run. The zero value is not usable; start from
// DefaultConfig or FromAppConfig and overlay per-job settings.
type Config struct {
	Enabled     bool          `json:"enabled"`
	Order       []string      `json:"order,omitempty"`
	MaxAttempts int           `json:"max_attempts,omitempty"`
	FallbackOn  FallbackRules `json:"fallback_on,omitempty"`
}

// RetriesOn reports whether a pill kind is in the configured retry set.
func (c Config) RetriesOn(kind poison.Kind) bool {
	for _, k := range c.FallbackOn.PoisonPills {
		if k == string(kind) {
			return true
		}
	}
	return false
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Order:       append([]string(nil), fetch.DefaultOrder...),
		MaxAttempts: 3,
		FallbackOn: FallbackRules{
			StatusCodes:      []int{403, 429, 503},
			PoisonPills:      []string{string(poison.KindAntiBot), string(poison.KindRateLimited)},
			MinContentLength: 500,
		},
	}
}

// FromAppConfig builds the application-wide base cascade config.
func FromAppConfig(cfg *config.Config) Config {
	out := DefaultConfig()
	out.Enabled = cfg.Cascade.IsEnabled()
	if len(cfg.Cascade.Order) > 0 {
		out.Order = cfg.Cascade.Order
	}
	if cfg.Cascade.MaxAttempts > 0 {
		out.MaxAttempts = cfg.Cascade.MaxAttempts
	}
	fb := cfg.Cascade.FallbackOn
	if len(fb.StatusCodes) > 0 {
		out.FallbackOn.StatusCodes = fb.StatusCodes
	}
	if len(fb.ErrorPatterns) > 0 {
		out.FallbackOn.ErrorPatterns = fb.ErrorPatterns
	}
	if len(fb.PoisonPills) > 0 {
		out.FallbackOn.PoisonPills = fb.PoisonPills
	}
	out.FallbackOn.EmptyContent = fb.EmptyContent
	if fb.MinContentLength > 0 {
		out.FallbackOn.MinContentLength = fb.MinContentLength
	}
	out.FallbackOn.JavascriptRequired = fb.JavascriptRequired
	return out
}

// FromSettings overlays a job's settings map (the "cascade" key, decoded
// from JSONB) on top of base. Absent keys keep the base value, so a job
// can flip a single knob without restating the whole config.
func FromSettings(base Config, settings map[string]any) Config {
	raw, ok := settings["cascade"].(map[string]any)
	if !ok {
		return base
	}

	out := base
	if v, ok := boolSetting(raw, "enabled"); ok {
		out.Enabled = v
	}
	if ss := stringSliceSetting(raw, "order"); len(ss) > 0 {
		out.Order = ss
	}
	if n, ok := intSetting(raw, "max_attempts"); ok {
		out.MaxAttempts = n
	}

	fb, ok := raw["fallback_on"].(map[string]any)
	if !ok {
		return out
	}
	if ns := intSliceSetting(fb, "status_codes"); len(ns) > 0 {
		out.FallbackOn.StatusCodes = ns
	}
	if ss := stringSliceSetting(fb, "error_patterns"); len(ss) > 0 {
		out.FallbackOn.ErrorPatterns = ss
	}
	if ss := stringSliceSetting(fb, "poison_pills"); len(ss) > 0 {
		out.FallbackOn.PoisonPills = ss
	}
	if v, ok := boolSetting(fb, "empty_content"); ok {
		out.FallbackOn.EmptyContent = v
	}
	if n, ok := intSetting(fb, "min_content_length"); ok {
		out.FallbackOn.MinContentLength = n
	}
	if v, ok := boolSetting(fb, "javascript_required"); ok {
		out.FallbackOn.JavascriptRequired = v
	}
	return out
}

func boolSetting(m map[string]any, key string) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}

// intSetting accepts the numeric types encoding/json and callers produce.
func intSetting(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

func stringSliceSetting(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		if ss, ok := m[key].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intSliceSetting(m map[string]any, key string) []int {
	raw, ok := m[key].([]any)
	if !ok {
		if ns, ok := m[key].([]int); ok {
			return ns
		}
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case float64:
			out = append(out, int(v))
		case int:
			out = append(out, v)
		}
	}
	return out
}
