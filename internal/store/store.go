// Package store persists jobs, URLs, rules, results and settings in
// Postgres. Queries are hand-written SQL over database/sql using the
// pgx stdlib driver; each table gets its own facet so the job engine
// can depend on narrow interfaces.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"scrapeforge/internal/model"
)

// Store bundles the per-table facets over one shared *sql.DB pool.
type Store struct {
	DB *sql.DB

	Jobs     *JobStore
	URLs     *URLStore
	Rules    *RuleStore
	Results  *ResultStore
	Settings *SettingsStore
}

// New wraps an already-open database handle.
func New(database *sql.DB) *Store {
	return &Store{
		DB:       database,
		Jobs:     &JobStore{db: database},
		URLs:     &URLStore{db: database},
		Rules:    &RuleStore{db: database},
		Results:  &ResultStore{db: database},
		Settings: &SettingsStore{db: database},
	}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return New(database), nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// newID returns a time-ordered UUID, falling back to v4 when the
// clock source misbehaves.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// CreateJob inserts a job with its URL set and rules in one
// transaction. progress_total is fixed to the submitted URL count and
// never changes afterwards.
func (s *Store) CreateJob(ctx context.Context, name string, mode model.JobMode, urls []string, rules []model.Rule, settings map[string]any) (*model.Job, error) {
	if mode == "" {
		mode = model.ModeList
	}

	var settingsJSON any
	if len(settings) > 0 {
		b, err := json.Marshal(settings)
		if err != nil {
			return nil, fmt.Errorf("encode settings: %w", err)
		}
		settingsJSON = b
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	jobID := newID()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (id, name, mode, status, progress_total, settings)
		 VALUES ($1, $2, $3, 'pending', $4, $5)`,
		jobID, name, string(mode), len(urls), settingsJSON)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	for i, u := range urls {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO job_urls (id, job_id, url, status, position)
			 VALUES ($1, $2, $3, 'pending', $4)`,
			newID(), jobID, u, i+1)
		if err != nil {
			return nil, fmt.Errorf("insert url: %w", err)
		}
	}

	for i, r := range rules {
		kind := r.SelectorKind
		if kind == "" {
			kind = model.SelectorCSS
		}
		order := r.DisplayOrder
		if order == 0 {
			order = i + 1
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO job_rules (id, job_id, field_name, selector_kind, selector, attribute, is_list, is_required, display_order)
			 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)`,
			newID(), jobID, r.FieldName, string(kind), r.Selector, r.Attribute, r.IsList, r.IsRequired, order)
		if err != nil {
			return nil, fmt.Errorf("insert rule: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.Jobs.Get(ctx, jobID)
}

// RecoverInterrupted resets crash leftovers at boot: in-flight URLs go
// back to pending and jobs stuck in running become paused. Returns the
// number of recovered jobs.
func (s *Store) RecoverInterrupted(ctx context.Context) (int64, error) {
	if _, err := s.DB.ExecContext(ctx,
		`UPDATE job_urls SET status = 'pending' WHERE status = 'processing'`); err != nil {
		return 0, fmt.Errorf("reset urls: %w", err)
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE jobs SET status = 'paused', paused_at = now() WHERE status = 'running'`)
	if err != nil {
		return 0, fmt.Errorf("reset jobs: %w", err)
	}
	return res.RowsAffected()
}
