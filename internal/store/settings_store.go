package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"scrapeforge/internal/model"
)

// SettingsStore holds runtime-tunable key/value settings.
type SettingsStore struct {
	db *sql.DB
}

func (ss *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := ss.db.QueryRowContext(ctx,
		`SELECT value FROM app_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %s: %w", key, model.ErrNotFound)
	}
	return value, err
}

// GetInt returns the setting parsed as an integer, or the default on a
// missing key or unparseable value.
func (ss *SettingsStore) GetInt(ctx context.Context, key string, def int) int {
	v, err := ss.Get(ctx, key)
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetBool returns the setting parsed as a boolean, or the default on a
// missing key or unparseable value.
func (ss *SettingsStore) GetBool(ctx context.Context, key string, def bool) bool {
	v, err := ss.Get(ctx, key)
	if err != nil {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (ss *SettingsStore) Set(ctx context.Context, key, value string) error {
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO app_settings (key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	return err
}

// All returns every setting, for the settings API.
func (ss *SettingsStore) All(ctx context.Context) (map[string]string, error) {
	rows, err := ss.db.QueryContext(ctx,
		`SELECT key, value FROM app_settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
