package jobs

import (
	"context"
	"testing"
	"time"

	"scrapeforge/internal/config"
	"scrapeforge/internal/model"
)

func retentionConfig(ttlHours int) *config.Config {
	cfg := &config.Config{}
	cfg.Retention.Enabled = true
	cfg.Retention.CompletedTTLHours = ttlHours
	return cfg
}

func addTerminalJob(st *memStores, id string, status model.JobStatus, completedAgo time.Duration) {
	st.addJob(id, nil, nil)
	st.mu.Lock()
	job := st.jobs[id]
	job.Status = status
	done := time.Now().UTC().Add(-completedAgo)
	job.CompletedAt = &done
	st.mu.Unlock()
}

func TestCleanupExpiredData_DeletesOldTerminalJobs(t *testing.T) {
	st := newMemStores()
	addTerminalJob(st, "old-done", model.JobCompleted, 100*time.Hour)
	addTerminalJob(st, "old-cancelled", model.JobCancelled, 100*time.Hour)
	addTerminalJob(st, "fresh-done", model.JobCompleted, time.Hour)
	addTerminalJob(st, "old-archived", model.JobArchived, 100*time.Hour)
	st.addJob("still-pending", nil, nil)

	stats, err := CleanupExpiredData(context.Background(), retentionConfig(72), st)
	if err != nil {
		t.Fatalf("expected cleanup to succeed, got %v", err)
	}
	if stats.JobsDeleted != 2 {
		t.Fatalf("expected 2 jobs deleted, got %d", stats.JobsDeleted)
	}

	for _, id := range []string{"fresh-done", "old-archived", "still-pending"} {
		if _, err := st.Get(context.Background(), id); err != nil {
			t.Fatalf("expected job %s to survive cleanup, got %v", id, err)
		}
	}
	for _, id := range []string{"old-done", "old-cancelled"} {
		if _, err := st.Get(context.Background(), id); err == nil {
			t.Fatalf("expected job %s to be deleted", id)
		}
	}
}

func TestCleanupExpiredData_ZeroTTLDisablesCleanup(t *testing.T) {
	st := newMemStores()
	addTerminalJob(st, "old-done", model.JobCompleted, 100*time.Hour)

	stats, err := CleanupExpiredData(context.Background(), retentionConfig(0), st)
	if err != nil {
		t.Fatalf("expected cleanup to succeed, got %v", err)
	}
	if stats.JobsDeleted != 0 {
		t.Fatalf("expected no deletions with zero TTL, got %d", stats.JobsDeleted)
	}
	if _, err := st.Get(context.Background(), "old-done"); err != nil {
		t.Fatalf("expected job to survive, got %v", err)
	}
}
