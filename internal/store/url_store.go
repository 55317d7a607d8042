package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"scrapeforge/internal/model"
)

// URLStore drives the per-job URL queue.
type URLStore struct {
	db *sql.DB
}

const urlColumns = `id, job_id, url, status, attempts, error_type, error_message,
	processing_time_ms, position, last_attempt_at, completed_at`

func scanURL(row rowScanner) (*model.URLRecord, error) {
	var (
		rec     model.URLRecord
		status  string
		errType sql.NullString
		errMsg  sql.NullString
		timeMs  sql.NullInt64
		lastAt  sql.NullTime
		doneAt  sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.JobID, &rec.URL, &status, &rec.Attempts,
		&errType, &errMsg, &timeMs, &rec.Position, &lastAt, &doneAt)
	if err != nil {
		return nil, err
	}
	rec.Status = model.URLStatus(status)
	rec.ErrorType = errType.String
	rec.ErrorMessage = errMsg.String
	rec.ProcessingTimeMs = timeMs.Int64
	if lastAt.Valid {
		t := lastAt.Time
		rec.LastAttemptAt = &t
	}
	if doneAt.Valid {
		t := doneAt.Time
		rec.CompletedAt = &t
	}
	return &rec, nil
}

// NextPending returns the oldest pending URL by position, or nil when
// none remain.
func (us *URLStore) NextPending(ctx context.Context, jobID string) (*model.URLRecord, error) {
	row := us.db.QueryRowContext(ctx,
		`SELECT `+urlColumns+` FROM job_urls
		 WHERE job_id = $1 AND status = 'pending'
		 ORDER BY position ASC
		 LIMIT 1`, jobID)
	rec, err := scanURL(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (us *URLStore) MarkProcessing(ctx context.Context, id string) error {
	res, err := us.db.ExecContext(ctx,
		`UPDATE job_urls SET
			status = 'processing',
			attempts = attempts + 1,
			last_attempt_at = now()
		 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "url "+id)
}

func (us *URLStore) MarkCompleted(ctx context.Context, id string, timeMs int64) error {
	res, err := us.db.ExecContext(ctx,
		`UPDATE job_urls SET
			status = 'completed',
			processing_time_ms = $2,
			completed_at = now(),
			error_type = NULL,
			error_message = NULL
		 WHERE id = $1`, id, timeMs)
	if err != nil {
		return err
	}
	return requireRow(res, "url "+id)
}

func (us *URLStore) MarkFailed(ctx context.Context, id string, errorType, errorMessage string) error {
	res, err := us.db.ExecContext(ctx,
		`UPDATE job_urls SET
			status = 'failed',
			error_type = NULLIF($2, ''),
			error_message = NULLIF($3, '')
		 WHERE id = $1`, id, errorType, errorMessage)
	if err != nil {
		return err
	}
	return requireRow(res, "url "+id)
}

func (us *URLStore) MarkSkipped(ctx context.Context, id string, reason string) error {
	res, err := us.db.ExecContext(ctx,
		`UPDATE job_urls SET
			status = 'skipped',
			error_message = NULLIF($2, '')
		 WHERE id = $1`, id, reason)
	if err != nil {
		return err
	}
	return requireRow(res, "url "+id)
}

func (us *URLStore) ResetToPending(ctx context.Context, id string) error {
	res, err := us.db.ExecContext(ctx,
		`UPDATE job_urls SET
			status = 'pending',
			error_type = NULL,
			error_message = NULL
		 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "url "+id)
}

// ResetProcessing returns any URL stuck in processing to pending.
func (us *URLStore) ResetProcessing(ctx context.Context, jobID string) error {
	_, err := us.db.ExecContext(ctx,
		`UPDATE job_urls SET status = 'pending'
		 WHERE job_id = $1 AND status = 'processing'`, jobID)
	return err
}

func (us *URLStore) CountByStatus(ctx context.Context, jobID string) (model.URLCounts, error) {
	rows, err := us.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM job_urls WHERE job_id = $1 GROUP BY status`, jobID)
	if err != nil {
		return model.URLCounts{}, err
	}
	defer rows.Close()

	var counts model.URLCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return model.URLCounts{}, err
		}
		switch model.URLStatus(status) {
		case model.URLPending:
			counts.Pending = n
		case model.URLProcessing:
			counts.Processing = n
		case model.URLCompleted:
			counts.Completed = n
		case model.URLFailed:
			counts.Failed = n
		case model.URLSkipped:
			counts.Skipped = n
		}
		counts.Total += n
	}
	return counts, rows.Err()
}

// ListByJob returns every URL of a job in position order.
func (us *URLStore) ListByJob(ctx context.Context, jobID string) ([]model.URLRecord, error) {
	rows, err := us.db.QueryContext(ctx,
		`SELECT `+urlColumns+` FROM job_urls WHERE job_id = $1 ORDER BY position ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.URLRecord
	for rows.Next() {
		rec, err := scanURL(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// Get returns one URL row.
func (us *URLStore) Get(ctx context.Context, id string) (*model.URLRecord, error) {
	row := us.db.QueryRowContext(ctx,
		`SELECT `+urlColumns+` FROM job_urls WHERE id = $1`, id)
	rec, err := scanURL(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("url %s: %w", id, model.ErrNotFound)
	}
	return rec, err
}
