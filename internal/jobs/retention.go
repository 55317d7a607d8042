package jobs

import (
	"context"
	"log/slog"
	"time"

	"scrapeforge/internal/config"
	"scrapeforge/internal/metrics"
)

// RetentionStats captures the number of records deleted by TTL cleanup.
type RetentionStats struct {
	JobsDeleted int64 `json:"jobsDeleted"`
}

// CleanupExpiredData deletes terminal jobs whose completion predates
// the retention TTL so that the database does not grow without bound.
// Archived jobs are exempt; their URLs, rules and results go with them
// via cascading deletes.
func CleanupExpiredData(ctx context.Context, cfg *config.Config, jobs JobStore) (RetentionStats, error) {
	stats := RetentionStats{}

	hours := cfg.Retention.CompletedTTLHours
	if hours <= 0 {
		return stats, nil
	}

	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	n, err := jobs.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		return stats, err
	}
	if n > 0 {
		stats.JobsDeleted = n
		metrics.RecordRetentionJobs(n)
	}
	return stats, nil
}

// RunRetention loops TTL cleanup at the configured interval until the
// context is cancelled. Callers run it in its own goroutine.
func RunRetention(ctx context.Context, cfg *config.Config, jobs JobStore, logger *slog.Logger) {
	if !cfg.Retention.Enabled {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	interval := time.Duration(cfg.Retention.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stats, err := CleanupExpiredData(ctx, cfg, jobs)
		if err != nil {
			logger.Error("retention_cleanup_failed", "error", err)
			continue
		}
		if stats.JobsDeleted > 0 {
			logger.Info("retention_cleanup", "jobs_deleted", stats.JobsDeleted)
		}
	}
}
