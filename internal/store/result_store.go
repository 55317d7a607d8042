package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"scrapeforge/internal/model"
)

// ResultStore persists extracted data for completed URLs.
type ResultStore struct {
	db *sql.DB
}

// Create inserts a result. One result per URL: a re-run of the same
// URL replaces the previous row.
func (rs *ResultStore) Create(ctx context.Context, rec *model.ResultRecord) error {
	if rec.ID == "" {
		rec.ID = newID()
	}
	if rec.ScrapedAt.IsZero() {
		rec.ScrapedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("encode result data: %w", err)
	}

	_, err = rs.db.ExecContext(ctx,
		`INSERT INTO job_results (id, job_id, url_id, data, method_used, raw_html, markdown, scraped_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)
		 ON CONFLICT (url_id) DO UPDATE SET
			data = EXCLUDED.data,
			method_used = EXCLUDED.method_used,
			raw_html = EXCLUDED.raw_html,
			markdown = EXCLUDED.markdown,
			scraped_at = EXCLUDED.scraped_at`,
		rec.ID, rec.JobID, rec.URLID, data, rec.MethodUsed, rec.RawHTML, rec.Markdown, rec.ScrapedAt)
	return err
}

// ListByJob pages a job's results joined with the scraped URL, oldest
// first.
func (rs *ResultStore) ListByJob(ctx context.Context, jobID string, limit, offset int) ([]model.ResultRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := rs.db.QueryContext(ctx,
		`SELECT r.id, r.job_id, r.url_id, u.url, r.data, r.method_used, r.raw_html, r.markdown, r.scraped_at
		 FROM job_results r
		 JOIN job_urls u ON u.id = r.url_id
		 WHERE r.job_id = $1
		 ORDER BY r.scraped_at ASC, r.id ASC
		 LIMIT $2 OFFSET $3`, jobID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResults(rows)
}

// ListAllByJob returns every result for a job, oldest first. Exports
// use it; API reads page through ListByJob instead.
func (rs *ResultStore) ListAllByJob(ctx context.Context, jobID string) ([]model.ResultRecord, error) {
	rows, err := rs.db.QueryContext(ctx,
		`SELECT r.id, r.job_id, r.url_id, u.url, r.data, r.method_used, r.raw_html, r.markdown, r.scraped_at
		 FROM job_results r
		 JOIN job_urls u ON u.id = r.url_id
		 WHERE r.job_id = $1
		 ORDER BY r.scraped_at ASC, r.id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]model.ResultRecord, error) {
	var recs []model.ResultRecord
	for rows.Next() {
		var (
			rec    model.ResultRecord
			data   []byte
			method sql.NullString
			raw    sql.NullString
			md     sql.NullString
		)
		err := rows.Scan(&rec.ID, &rec.JobID, &rec.URLID, &rec.URL,
			&data, &method, &raw, &md, &rec.ScrapedAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return nil, fmt.Errorf("decode result data: %w", err)
		}
		rec.MethodUsed = method.String
		rec.RawHTML = raw.String
		rec.Markdown = md.String
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CountByJob reports how many results a job has accumulated.
func (rs *ResultStore) CountByJob(ctx context.Context, jobID string) (int, error) {
	var n int
	err := rs.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_results WHERE job_id = $1`, jobID).Scan(&n)
	return n, err
}
