// Package jobs runs scraping jobs: a lifecycle orchestrator, one worker
// goroutine per running job, per-job log ring buffers and a robots.txt
// gate. Persistence goes through the narrow ports in ports.go.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scrapeforge/internal/config"
	"scrapeforge/internal/metrics"
	"scrapeforge/internal/model"
	"scrapeforge/internal/pipeline"
)

// ErrInvalidState is returned when a lifecycle action does not apply to
// the job's current status. Callers branch on it with errors.Is.
var ErrInvalidState = errors.New("invalid state")

// URLProcessor runs the scrape pipeline for one URL. *pipeline.Scraper
// satisfies it.
type URLProcessor interface {
	Process(ctx context.Context, req pipeline.Request) pipeline.Result
}

// RobotsPolicy answers whether a URL may be fetched. Nil disables the
// check. *RobotsGate satisfies it.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Orchestrator owns the job state machine. One per process. It maps
// job IDs to active workers and to log buffers, under two separate
// locks so log polling never contends with worker bookkeeping.
type Orchestrator struct {
	stores Stores
	proc   URLProcessor
	robots RobotsPolicy
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.RWMutex
	workers map[string]*worker

	logMu     sync.Mutex
	logs      map[string]*LogBuffer
	evictions map[string]*time.Timer

	wg sync.WaitGroup
}

func NewOrchestrator(stores Stores, proc URLProcessor, robots RobotsPolicy, cfg *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		stores:    stores,
		proc:      proc,
		robots:    robots,
		cfg:       cfg,
		logger:    logger,
		workers:   make(map[string]*worker),
		logs:      make(map[string]*LogBuffer),
		evictions: make(map[string]*time.Timer),
	}
}

// Start launches a worker for a pending or paused job. The returned
// bool reports whether a worker was actually started.
func (o *Orchestrator) Start(ctx context.Context, jobID string) (bool, error) {
	job, err := o.stores.Jobs.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status != model.JobPending && job.Status != model.JobPaused {
		return false, fmt.Errorf("%w: cannot start job in status %q", ErrInvalidState, job.Status)
	}
	if o.IsRunning(jobID) {
		return false, fmt.Errorf("%w: job %s already has an active worker", ErrInvalidState, jobID)
	}

	if err := o.stores.Jobs.UpdateStatus(ctx, jobID, model.JobRunning, ""); err != nil {
		return false, err
	}

	buf := o.ensureLogBuffer(jobID)
	w := newWorker(job, o.stores, o.proc, o.robots, o.cfg, buf, o.logger)

	o.mu.Lock()
	if _, exists := o.workers[jobID]; exists {
		o.mu.Unlock()
		return false, fmt.Errorf("%w: job %s already has an active worker", ErrInvalidState, jobID)
	}
	o.workers[jobID] = w
	o.mu.Unlock()

	o.logger.Info("job_start", "job_id", jobID, "name", job.Name)

	o.wg.Add(1)
	go o.runWorker(w)
	return true, nil
}

// Pause moves a running job to paused and signals its worker. The
// worker finishes the in-flight URL (or its timeout fires) and exits
// without touching the status again.
func (o *Orchestrator) Pause(ctx context.Context, jobID string) error {
	job, err := o.stores.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.JobRunning {
		return fmt.Errorf("%w: cannot pause job in status %q", ErrInvalidState, job.Status)
	}
	if err := o.stores.Jobs.UpdateStatus(ctx, jobID, model.JobPaused, ""); err != nil {
		return err
	}
	o.signalWorker(jobID)
	o.appendLog(jobID, model.LogInfo, "Job paused", nil)
	o.logger.Info("job_pause", "job_id", jobID)
	return nil
}

// Resume restarts a paused job. The pending URL set is picked up where
// the previous run left it.
func (o *Orchestrator) Resume(ctx context.Context, jobID string) (bool, error) {
	job, err := o.stores.Jobs.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status != model.JobPaused {
		return false, fmt.Errorf("%w: cannot resume job in status %q", ErrInvalidState, job.Status)
	}
	return o.Start(ctx, jobID)
}

// Stop cancels any non-terminal job. An in-flight URL is allowed to
// finish; no further URLs are dispatched.
func (o *Orchestrator) Stop(ctx context.Context, jobID string) error {
	job, err := o.stores.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: cannot stop job in status %q", ErrInvalidState, job.Status)
	}
	if err := o.stores.Jobs.UpdateStatus(ctx, jobID, model.JobCancelled, ""); err != nil {
		return err
	}
	o.signalWorker(jobID)
	o.appendLog(jobID, model.LogWarning, "Job stopped", nil)
	o.logger.Info("job_stop", "job_id", jobID)
	metrics.RecordJobFinished(string(model.JobCancelled))
	return nil
}

// Archive parks a job in the archived terminal state. Running jobs
// must be stopped or paused first.
func (o *Orchestrator) Archive(ctx context.Context, jobID string) error {
	job, err := o.stores.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == model.JobRunning || o.IsRunning(jobID) {
		return fmt.Errorf("%w: cannot archive a running job", ErrInvalidState)
	}
	if job.Status == model.JobArchived {
		return nil
	}
	return o.stores.Jobs.UpdateStatus(ctx, jobID, model.JobArchived, "")
}

// Unarchive returns an archived job to pending. URLs, rules and
// results are untouched.
func (o *Orchestrator) Unarchive(ctx context.Context, jobID string) error {
	job, err := o.stores.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.JobArchived {
		return fmt.Errorf("%w: cannot unarchive job in status %q", ErrInvalidState, job.Status)
	}
	return o.stores.Jobs.UpdateStatus(ctx, jobID, model.JobPending, "")
}

// Status reports the job row plus live URL counts.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (model.StatusSnapshot, error) {
	job, err := o.stores.Jobs.Get(ctx, jobID)
	if err != nil {
		return model.StatusSnapshot{}, err
	}
	counts, err := o.stores.URLs.CountByStatus(ctx, jobID)
	if err != nil {
		return model.StatusSnapshot{}, err
	}
	return model.StatusSnapshot{
		ID:              job.ID,
		Name:            job.Name,
		Status:          job.Status,
		ProgressCurrent: job.ProgressCurrent,
		ProgressTotal:   job.ProgressTotal,
		SuccessCount:    job.SuccessCount,
		FailureCount:    job.FailureCount,
		URLCounts:       counts,
		IsRunning:       o.IsRunning(jobID),
	}, nil
}

// Logs pages a job's buffered log entries. A job whose buffer was
// evicted (or never started) yields an empty page.
func (o *Orchestrator) Logs(jobID string, sinceIndex int, level model.LogLevel) model.LogPage {
	o.logMu.Lock()
	buf := o.logs[jobID]
	o.logMu.Unlock()
	if buf == nil {
		return model.LogPage{Logs: []model.LogEntry{}}
	}
	return buf.Page(sinceIndex, level)
}

// IsRunning reports whether a worker is currently registered for the
// job.
func (o *Orchestrator) IsRunning(jobID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.workers[jobID]
	return ok
}

// StopAll stops every active worker. Idempotent; used at shutdown.
func (o *Orchestrator) StopAll(ctx context.Context) {
	o.mu.RLock()
	ids := make([]string, 0, len(o.workers))
	for id := range o.workers {
		ids = append(ids, id)
	}
	o.mu.RUnlock()

	for _, id := range ids {
		if err := o.Stop(ctx, id); err != nil {
			o.logger.Warn("job_stop_failed", "job_id", id, "error", err)
		}
	}
}

// Wait blocks until all worker goroutines have exited. Callers bound
// it with their own timeout.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) runWorker(w *worker) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("worker_panic", "job_id", w.jobID, "panic", fmt.Sprint(r))
			w.buf.Append(model.LogError, fmt.Sprintf("Worker crashed: %v", r), nil)
			err := o.stores.Jobs.UpdateStatus(context.Background(), w.jobID, model.JobFailed, fmt.Sprintf("WORKER_PANIC: %v", r))
			if err != nil {
				o.logger.Error("job_status_update_failed", "job_id", w.jobID, "error", err)
			}
			metrics.RecordJobFinished(string(model.JobFailed))
		}
		o.release(w.jobID)
		o.wg.Done()
	}()
	w.run()
}

func (o *Orchestrator) release(jobID string) {
	o.mu.Lock()
	delete(o.workers, jobID)
	o.mu.Unlock()
	o.scheduleEviction(jobID)
}

func (o *Orchestrator) signalWorker(jobID string) {
	o.mu.RLock()
	w := o.workers[jobID]
	o.mu.RUnlock()
	if w != nil {
		w.halt()
	}
}

// ensureLogBuffer returns the job's buffer, creating it if absent and
// cancelling any pending eviction.
func (o *Orchestrator) ensureLogBuffer(jobID string) *LogBuffer {
	o.logMu.Lock()
	defer o.logMu.Unlock()
	if t, ok := o.evictions[jobID]; ok {
		t.Stop()
		delete(o.evictions, jobID)
	}
	buf, ok := o.logs[jobID]
	if !ok {
		buf = NewLogBuffer(o.cfg.Logs.BufferSize)
		o.logs[jobID] = buf
	}
	return buf
}

func (o *Orchestrator) appendLog(jobID string, level model.LogLevel, message string, data map[string]any) {
	o.logMu.Lock()
	buf := o.logs[jobID]
	o.logMu.Unlock()
	if buf != nil {
		buf.Append(level, message, data)
	}
}

// scheduleEviction arms the one-shot log cleanup for a job whose
// worker just ended. Restarting the job disarms it.
func (o *Orchestrator) scheduleEviction(jobID string) {
	ttl := time.Duration(o.cfg.Logs.EvictionSeconds) * time.Second
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	o.logMu.Lock()
	defer o.logMu.Unlock()
	if t, ok := o.evictions[jobID]; ok {
		t.Stop()
	}
	o.evictions[jobID] = time.AfterFunc(ttl, func() {
		o.logMu.Lock()
		defer o.logMu.Unlock()
		delete(o.logs, jobID)
		delete(o.evictions, jobID)
	})
}
