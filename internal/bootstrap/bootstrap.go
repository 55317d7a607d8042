package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"scrapeforge/internal/config"
	"scrapeforge/internal/model"
	"scrapeforge/internal/store"
)

// Run seeds the app_settings table with the scraper defaults from the
// config file so the settings API exposes them and operators can tune
// them without a restart. It is designed to be idempotent and safe to
// run multiple times.
func Run(ctx context.Context, cfg *config.Config, st *store.Store) error {
	if cfg == nil || st == nil || st.Settings == nil {
		return nil
	}

	sc := cfg.Scraper
	defaults := []struct {
		key   string
		value string
	}{
		{"scraper.url_timeout", strconv.Itoa(sc.URLTimeoutSeconds)},
		{"scraper.delay_min", strconv.Itoa(sc.DelayMinMs)},
		{"scraper.delay_max", strconv.Itoa(sc.DelayMaxMs)},
		{"scraper.respect_robots", strconv.FormatBool(sc.RespectRobots)},
		{"scraper.include_markdown", strconv.FormatBool(sc.IncludeMarkdown)},
		{"scraper.store_raw_html", strconv.FormatBool(sc.StoreRawHTML)},
		{"scraper.user_agent", sc.UserAgent},
	}

	for _, d := range defaults {
		if err := seedSetting(ctx, st.Settings, d.key, d.value); err != nil {
			return fmt.Errorf("bootstrap setting %s: %w", d.key, err)
		}
	}
	return nil
}

func seedSetting(ctx context.Context, ss *store.SettingsStore, key, value string) error {
	_, err := ss.Get(ctx, key)
	if err == nil {
		// Setting already exists; do not overwrite operator changes
		// via bootstrap.
		return nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return err
	}
	return ss.Set(ctx, key, value)
}
