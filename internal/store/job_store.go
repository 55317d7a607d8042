package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sqlc-dev/pqtype"

	"scrapeforge/internal/model"
)

// JobStore reads and mutates the jobs table.
type JobStore struct {
	db *sql.DB
}

const jobColumns = `id, name, mode, status, progress_current, progress_total,
	success_count, failure_count, settings, error_message,
	created_at, started_at, paused_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		job       model.Job
		mode      string
		status    string
		settings  pqtype.NullRawMessage
		errMsg    sql.NullString
		startedAt sql.NullTime
		pausedAt  sql.NullTime
		doneAt    sql.NullTime
	)
	err := row.Scan(&job.ID, &job.Name, &mode, &status,
		&job.ProgressCurrent, &job.ProgressTotal,
		&job.SuccessCount, &job.FailureCount,
		&settings, &errMsg,
		&job.CreatedAt, &startedAt, &pausedAt, &doneAt)
	if err != nil {
		return nil, err
	}
	job.Mode = model.JobMode(mode)
	job.Status = model.JobStatus(status)
	if settings.Valid {
		if err := json.Unmarshal(settings.RawMessage, &job.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	job.ErrorMessage = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if pausedAt.Valid {
		t := pausedAt.Time
		job.PausedAt = &t
	}
	if doneAt.Valid {
		t := doneAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

func (js *JobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	row := js.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	return job, err
}

// List returns jobs newest first. Archived jobs are excluded unless
// asked for.
func (js *JobStore) List(ctx context.Context, includeArchived bool) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if !includeArchived {
		query += ` WHERE status <> 'archived'`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := js.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateStatus writes the new status and stamps the timestamp that
// matches it. An empty errorMessage clears any previous one.
func (js *JobStore) UpdateStatus(ctx context.Context, id string, status model.JobStatus, errorMessage string) error {
	res, err := js.db.ExecContext(ctx,
		`UPDATE jobs SET
			status = $2,
			error_message = NULLIF($3, ''),
			started_at = CASE WHEN $2 = 'running' THEN now() ELSE started_at END,
			paused_at = CASE WHEN $2 = 'paused' THEN now() ELSE paused_at END,
			completed_at = CASE WHEN $2 IN ('completed', 'cancelled', 'failed') THEN now() ELSE completed_at END
		 WHERE id = $1`,
		id, string(status), errorMessage)
	if err != nil {
		return err
	}
	return requireRow(res, "job "+id)
}

func (js *JobStore) IncrementProgress(ctx context.Context, id string, success bool) error {
	_, err := js.db.ExecContext(ctx,
		`UPDATE jobs SET
			progress_current = progress_current + 1,
			success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
			failure_count = failure_count + CASE WHEN $2 THEN 0 ELSE 1 END
		 WHERE id = $1`,
		id, success)
	return err
}

func (js *JobStore) IncrementSkipped(ctx context.Context, id string) error {
	_, err := js.db.ExecContext(ctx,
		`UPDATE jobs SET progress_current = progress_current + 1 WHERE id = $1`, id)
	return err
}

func (js *JobStore) DecrementFailure(ctx context.Context, id string) error {
	_, err := js.db.ExecContext(ctx,
		`UPDATE jobs SET
			progress_current = GREATEST(progress_current - 1, 0),
			failure_count = GREATEST(failure_count - 1, 0)
		 WHERE id = $1`,
		id)
	return err
}

// Delete removes a job; URLs, rules and results cascade with it.
func (js *JobStore) Delete(ctx context.Context, id string) error {
	res, err := js.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "job "+id)
}

// DeleteTerminalOlderThan removes completed, cancelled and failed jobs
// whose completion predates the cutoff. Archived jobs are retained
// indefinitely.
func (js *JobStore) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := js.db.ExecContext(ctx,
		`DELETE FROM jobs
		 WHERE status IN ('completed', 'cancelled', 'failed')
		   AND completed_at IS NOT NULL
		   AND completed_at < $1`,
		cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}
