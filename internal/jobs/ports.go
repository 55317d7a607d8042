package jobs

import (
	"context"
	"time"

	"scrapeforge/internal/model"
)

// The orchestrator and worker depend on these narrow persistence ports
// rather than the concrete store, so tests can run against in-memory
// fakes. internal/store satisfies all five.

// JobStore is the slice of job persistence the engine needs. Status
// updates stamp the matching timestamp field (running stamps started_at,
// paused stamps paused_at, terminal statuses stamp completed_at).
type JobStore interface {
	Get(ctx context.Context, id string) (*model.Job, error)
	UpdateStatus(ctx context.Context, id string, status model.JobStatus, errorMessage string) error
	// IncrementProgress advances progress_current and one of the
	// success/failure counters.
	IncrementProgress(ctx context.Context, id string, success bool) error
	// IncrementSkipped advances progress_current only, for URLs the
	// robots gate refused.
	IncrementSkipped(ctx context.Context, id string) error
	// DecrementFailure undoes one failed increment when a URL is reset
	// for the retry pass.
	DecrementFailure(ctx context.Context, id string) error
	// DeleteTerminalOlderThan removes completed, cancelled and failed
	// jobs whose completion predates the cutoff. Archived jobs are kept.
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// URLStore drives the per-job URL queue.
type URLStore interface {
	// NextPending returns the oldest pending URL by position, or nil
	// when none remain.
	NextPending(ctx context.Context, jobID string) (*model.URLRecord, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, timeMs int64) error
	MarkFailed(ctx context.Context, id string, errorType, errorMessage string) error
	MarkSkipped(ctx context.Context, id string, reason string) error
	ResetToPending(ctx context.Context, id string) error
	// ResetProcessing returns any URL stuck in processing to pending.
	// Called when a worker starts so a crash mid-URL cannot orphan it.
	ResetProcessing(ctx context.Context, jobID string) error
	CountByStatus(ctx context.Context, jobID string) (model.URLCounts, error)
}

// RuleStore lists a job's extraction rules in display order.
type RuleStore interface {
	ListByJob(ctx context.Context, jobID string) ([]model.Rule, error)
}

// ResultStore persists extracted data for completed URLs.
type ResultStore interface {
	Create(ctx context.Context, rec *model.ResultRecord) error
}

// SettingsStore exposes runtime-tunable application settings. Typed
// getters fall back to the given default on missing keys or bad values.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	GetInt(ctx context.Context, key string, def int) int
	GetBool(ctx context.Context, key string, def bool) bool
	Set(ctx context.Context, key, value string) error
}

// Stores bundles the five ports for constructor convenience.
type Stores struct {
	Jobs     JobStore
	URLs     URLStore
	Rules    RuleStore
	Results  ResultStore
	Settings SettingsStore
}
