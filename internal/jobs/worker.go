package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"scrapeforge/internal/cascade"
	"scrapeforge/internal/config"
	"scrapeforge/internal/metrics"
	"scrapeforge/internal/model"
	"scrapeforge/internal/pipeline"
)

// runSettings is the worker's effective configuration, resolved once at
// start from the job settings map, the settings store and the config
// file, in that precedence order.
type runSettings struct {
	urlTimeout      time.Duration
	delayMin        time.Duration
	delayMax        time.Duration
	respectRobots   bool
	includeMarkdown bool
	storeRawHTML    bool
	waitFor         string
}

// worker drives one job to completion on its own goroutine.
type worker struct {
	jobID  string
	job    *model.Job
	stores Stores
	proc   URLProcessor
	robots RobotsPolicy
	cfg    *config.Config
	buf    *LogBuffer
	logger *slog.Logger

	halted   atomic.Bool
	haltCh   chan struct{}
	haltOnce sync.Once
}

func newWorker(job *model.Job, stores Stores, proc URLProcessor, robots RobotsPolicy, cfg *config.Config, buf *LogBuffer, logger *slog.Logger) *worker {
	return &worker{
		jobID:  job.ID,
		job:    job,
		stores: stores,
		proc:   proc,
		robots: robots,
		cfg:    cfg,
		buf:    buf,
		logger: logger,
		haltCh: make(chan struct{}),
	}
}

// halt requests a cooperative stop. The in-flight URL finishes (or its
// timeout fires); the delay between URLs is interrupted.
func (w *worker) halt() {
	w.haltOnce.Do(func() {
		w.halted.Store(true)
		close(w.haltCh)
	})
}

func (w *worker) stopped() bool {
	return w.halted.Load()
}

func (w *worker) run() {
	ctx := context.Background()

	set := w.resolveSettings(ctx)
	cc := cascade.FromSettings(cascade.FromAppConfig(w.cfg), w.job.Settings)

	rules, err := w.stores.Rules.ListByJob(ctx, w.jobID)
	if err != nil {
		w.buf.Append(model.LogError, fmt.Sprintf("Could not load extraction rules: %v", err), nil)
		if uerr := w.stores.Jobs.UpdateStatus(ctx, w.jobID, model.JobFailed, fmt.Sprintf("RULES_LOAD_FAILED: %v", err)); uerr != nil {
			w.logger.Error("job_status_update_failed", "job_id", w.jobID, "error", uerr)
		}
		metrics.RecordJobFinished(string(model.JobFailed))
		return
	}

	// A crash mid-URL leaves it processing; pull it back first.
	if err := w.stores.URLs.ResetProcessing(ctx, w.jobID); err != nil {
		w.logger.Warn("url_reset_processing_failed", "job_id", w.jobID, "error", err)
	}

	counts, err := w.stores.URLs.CountByStatus(ctx, w.jobID)
	if err != nil {
		w.logger.Warn("url_count_failed", "job_id", w.jobID, "error", err)
	}
	w.buf.Append(model.LogInfo, fmt.Sprintf("Job started: %d URLs pending", counts.Pending), map[string]any{
		"pending": counts.Pending,
		"rules":   len(rules),
	})
	w.logger.Info("job_run_begin", "job_id", w.jobID, "pending", counts.Pending, "rules", len(rules))

	var retry []*model.URLRecord
	for !w.stopped() {
		rec, err := w.stores.URLs.NextPending(ctx, w.jobID)
		if err != nil {
			w.buf.Append(model.LogError, fmt.Sprintf("Could not fetch next URL: %v", err), nil)
			break
		}
		if rec == nil {
			break
		}
		if ok := w.processOne(ctx, rec, rules, cc, set); !ok {
			retry = append(retry, rec)
		}
		w.delay(set)
	}

	// One retry pass over this run's failures. Each URL goes back to
	// pending and its failed increment is rolled back so the second
	// attempt counts cleanly.
	if len(retry) > 0 && !w.stopped() {
		w.buf.Append(model.LogInfo, fmt.Sprintf("Retrying %d failed URLs", len(retry)), nil)
		w.logger.Info("job_retry_pass", "job_id", w.jobID, "count", len(retry))
		for _, rec := range retry {
			if w.stopped() {
				break
			}
			if err := w.stores.URLs.ResetToPending(ctx, rec.ID); err != nil {
				w.logger.Warn("url_reset_failed", "job_id", w.jobID, "url_id", rec.ID, "error", err)
				continue
			}
			if err := w.stores.Jobs.DecrementFailure(ctx, w.jobID); err != nil {
				w.logger.Warn("job_decrement_failed", "job_id", w.jobID, "error", err)
			}
			w.processOne(ctx, rec, rules, cc, set)
			w.delay(set)
		}
	}

	w.finalize(ctx)
}

// processOne runs a single URL through the robots gate and the scrape
// pipeline under the hard timeout. It returns false when the URL
// failed and is a candidate for the retry pass.
func (w *worker) processOne(ctx context.Context, rec *model.URLRecord, rules []model.Rule, cc cascade.Config, set runSettings) bool {
	if set.respectRobots && w.robots != nil && !w.robots.Allowed(ctx, rec.URL) {
		if err := w.stores.URLs.MarkSkipped(ctx, rec.ID, "disallowed by robots.txt"); err != nil {
			w.logger.Warn("url_mark_skipped_failed", "url_id", rec.ID, "error", err)
		}
		if err := w.stores.Jobs.IncrementSkipped(ctx, w.jobID); err != nil {
			w.logger.Warn("job_progress_failed", "job_id", w.jobID, "error", err)
		}
		metrics.RecordURLProcessed(string(model.URLSkipped))
		w.buf.Append(model.LogWarning, fmt.Sprintf("Skipped %s: disallowed by robots.txt", rec.URL), nil)
		return true
	}

	// A URL that cannot be claimed must not stay pending, or NextPending
	// would hand it back forever. Fail it; the retry pass resets it.
	if err := w.stores.URLs.MarkProcessing(ctx, rec.ID); err != nil {
		w.logger.Warn("url_mark_processing_failed", "url_id", rec.ID, "error", err)
		w.recordFailure(ctx, rec, "exception", fmt.Sprintf("URL_CLAIM_FAILED: %v", err))
		return false
	}

	started := time.Now()
	res, timedOut := w.processWithTimeout(ctx, rec.URL, rules, cc, set)
	elapsed := time.Since(started).Milliseconds()

	if timedOut {
		msg := fmt.Sprintf("URL processing exceeded %s hard timeout", set.urlTimeout)
		w.recordFailure(ctx, rec, "timeout", msg)
		return false
	}

	for _, att := range res.Attempts {
		metrics.RecordFetchAttempt(att.Method, att.Success)
	}

	if !res.Success {
		errType := res.ErrorType
		if errType == "" {
			errType = "exception"
		}
		w.recordFailure(ctx, rec, errType, res.Error)
		return false
	}

	result := &model.ResultRecord{
		JobID:      w.jobID,
		URLID:      rec.ID,
		Data:       res.Data,
		MethodUsed: res.MethodUsed,
		RawHTML:    res.RawHTML,
		Markdown:   res.Markdown,
	}
	if err := w.stores.Results.Create(ctx, result); err != nil {
		w.recordFailure(ctx, rec, "exception", fmt.Sprintf("RESULT_WRITE_FAILED: %v", err))
		return false
	}

	if err := w.stores.URLs.MarkCompleted(ctx, rec.ID, elapsed); err != nil {
		w.logger.Warn("url_mark_completed_failed", "url_id", rec.ID, "error", err)
	}
	if err := w.stores.Jobs.IncrementProgress(ctx, w.jobID, true); err != nil {
		w.logger.Warn("job_progress_failed", "job_id", w.jobID, "error", err)
	}
	metrics.RecordURLProcessed(string(model.URLCompleted))

	data := map[string]any{"method": res.MethodUsed, "fields": len(res.Data), "ms": elapsed}
	if res.VisionExtracted {
		data["visionExtracted"] = true
	}
	w.buf.Append(model.LogSuccess, fmt.Sprintf("Scraped %s (%d fields, %dms)", rec.URL, len(res.Data), elapsed), data)
	return true
}

func (w *worker) recordFailure(ctx context.Context, rec *model.URLRecord, errType, message string) {
	if err := w.stores.URLs.MarkFailed(ctx, rec.ID, errType, message); err != nil {
		w.logger.Warn("url_mark_failed_failed", "url_id", rec.ID, "error", err)
	}
	if err := w.stores.Jobs.IncrementProgress(ctx, w.jobID, false); err != nil {
		w.logger.Warn("job_progress_failed", "job_id", w.jobID, "error", err)
	}
	metrics.RecordURLProcessed(string(model.URLFailed))
	w.buf.Append(model.LogError, fmt.Sprintf("Failed %s: %s", rec.URL, message), map[string]any{"errorType": errType})
}

// processWithTimeout runs the pipeline on its own goroutine and
// abandons it when the hard deadline fires. The context carries the
// same deadline so an abandoned fetch aborts instead of leaking.
func (w *worker) processWithTimeout(ctx context.Context, rawURL string, rules []model.Rule, cc cascade.Config, set runSettings) (pipeline.Result, bool) {
	cctx, cancel := context.WithTimeout(ctx, set.urlTimeout)
	defer cancel()

	ch := make(chan pipeline.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- pipeline.Result{ErrorType: "exception", Error: fmt.Sprintf("scrape panicked: %v", r)}
			}
		}()
		ch <- w.proc.Process(cctx, pipeline.Request{
			URL:             rawURL,
			Rules:           rules,
			Cascade:         cc,
			Timeout:         set.urlTimeout,
			WaitFor:         set.waitFor,
			IncludeMarkdown: set.includeMarkdown,
			StoreRawHTML:    set.storeRawHTML,
		})
	}()

	select {
	case res := <-ch:
		return res, false
	case <-time.After(set.urlTimeout):
		return pipeline.Result{}, true
	}
}

// delay sleeps a uniform-random interval between URLs. A halt request
// wakes it immediately.
func (w *worker) delay(set runSettings) {
	if w.stopped() {
		return
	}
	lo, hi := set.delayMin, set.delayMax
	if hi < lo {
		hi = lo
	}
	d := lo
	if hi > lo {
		d = lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
	}
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-w.haltCh:
	}
}

// finalize writes the completed status and summary unless a pause or
// stop already decided the job's fate.
func (w *worker) finalize(ctx context.Context) {
	if w.stopped() {
		return
	}
	counts, err := w.stores.URLs.CountByStatus(ctx, w.jobID)
	if err != nil {
		w.logger.Warn("url_count_failed", "job_id", w.jobID, "error", err)
	}
	if err := w.stores.Jobs.UpdateStatus(ctx, w.jobID, model.JobCompleted, ""); err != nil {
		w.logger.Error("job_status_update_failed", "job_id", w.jobID, "error", err)
	}
	metrics.RecordJobFinished(string(model.JobCompleted))
	w.buf.Append(model.LogSuccess,
		fmt.Sprintf("Job completed: %d succeeded, %d failed, %d skipped", counts.Completed, counts.Failed, counts.Skipped),
		map[string]any{"completed": counts.Completed, "failed": counts.Failed, "skipped": counts.Skipped})
	w.logger.Info("job_run_end", "job_id", w.jobID,
		"completed", counts.Completed, "failed", counts.Failed, "skipped", counts.Skipped)
}

// resolveSettings merges the three configuration layers for this run.
func (w *worker) resolveSettings(ctx context.Context) runSettings {
	sc := w.cfg.Scraper
	rs := runSettings{
		urlTimeout:      w.settingSeconds(ctx, "url_timeout", sc.URLTimeoutSeconds),
		delayMin:        time.Duration(w.settingInt(ctx, "delay_min", sc.DelayMinMs)) * time.Millisecond,
		delayMax:        time.Duration(w.settingInt(ctx, "delay_max", sc.DelayMaxMs)) * time.Millisecond,
		respectRobots:   w.settingBool(ctx, "respect_robots", sc.RespectRobots),
		includeMarkdown: w.settingBool(ctx, "include_markdown", sc.IncludeMarkdown),
		storeRawHTML:    w.settingBool(ctx, "store_raw_html", sc.StoreRawHTML),
		waitFor:         w.settingString("wait_for"),
	}
	if rs.urlTimeout <= 0 {
		rs.urlTimeout = 30 * time.Second
	}
	return rs
}

// settingSeconds resolves a seconds-denominated setting. Job settings
// may carry fractional values; the settings store and config are whole
// seconds.
func (w *worker) settingSeconds(ctx context.Context, key string, def int) time.Duration {
	if v, ok := w.job.Settings[key]; ok {
		switch n := v.(type) {
		case int:
			return time.Duration(n) * time.Second
		case int64:
			return time.Duration(n) * time.Second
		case float64:
			return time.Duration(n * float64(time.Second))
		}
	}
	if w.stores.Settings != nil {
		def = w.stores.Settings.GetInt(ctx, "scraper."+key, def)
	}
	return time.Duration(def) * time.Second
}

func (w *worker) settingInt(ctx context.Context, key string, def int) int {
	if v, ok := w.job.Settings[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	if w.stores.Settings != nil {
		return w.stores.Settings.GetInt(ctx, "scraper."+key, def)
	}
	return def
}

func (w *worker) settingBool(ctx context.Context, key string, def bool) bool {
	if v, ok := w.job.Settings[key]; ok {
		if b, isBool := v.(bool); isBool {
			return b
		}
	}
	if w.stores.Settings != nil {
		return w.stores.Settings.GetBool(ctx, "scraper."+key, def)
	}
	return def
}

func (w *worker) settingString(key string) string {
	if v, ok := w.job.Settings[key]; ok {
		if s, isStr := v.(string); isStr {
			return s
		}
	}
	return ""
}
