// Package model holds the domain types shared by the store, the job
// engine and the HTTP layer.
package model

import "time"

// JobStatus is the lifecycle position of a job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
	JobArchived  JobStatus = "archived"
)

// Terminal reports whether a status admits no further transitions other
// than unarchive.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobCancelled, JobFailed, JobArchived:
		return true
	default:
		return false
	}
}

// JobMode tags how the job's URL set was assembled. The tag is
// informational; all modes process exactly the submitted URLs.
type JobMode string

const (
	ModeSingle JobMode = "single"
	ModeList   JobMode = "list"
	ModeCrawl  JobMode = "crawl"
)

// Job is a declarative scraping job: a URL set plus extraction rules,
// with progress counters maintained by the worker.
type Job struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Mode            JobMode        `json:"mode"`
	Status          JobStatus      `json:"status"`
	ProgressCurrent int            `json:"progressCurrent"`
	ProgressTotal   int            `json:"progressTotal"`
	SuccessCount    int            `json:"successCount"`
	FailureCount    int            `json:"failureCount"`
	Settings        map[string]any `json:"settings,omitempty"`
	ErrorMessage    string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	StartedAt       *time.Time     `json:"startedAt,omitempty"`
	PausedAt        *time.Time     `json:"pausedAt,omitempty"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
}

// URLStatus is the lifecycle position of one URL within a job.
type URLStatus string

const (
	URLPending    URLStatus = "pending"
	URLProcessing URLStatus = "processing"
	URLCompleted  URLStatus = "completed"
	URLFailed     URLStatus = "failed"
	URLSkipped    URLStatus = "skipped"
)

// URLRecord is a single URL owned by a job.
type URLRecord struct {
	ID               string     `json:"id"`
	JobID            string     `json:"jobId"`
	URL              string     `json:"url"`
	Status           URLStatus  `json:"status"`
	Attempts         int        `json:"attempts"`
	ErrorType        string     `json:"errorType,omitempty"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	ProcessingTimeMs int64      `json:"processingTimeMs,omitempty"`
	Position         int        `json:"position"`
	LastAttemptAt    *time.Time `json:"lastAttemptAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// SelectorKind names the extraction engine a rule targets.
type SelectorKind string

const (
	SelectorCSS   SelectorKind = "css"
	SelectorXPath SelectorKind = "xpath"
)

// Rule is one field-extraction rule. Attribute empty means extract the
// element's text content.
type Rule struct {
	ID           string       `json:"id"`
	JobID        string       `json:"jobId"`
	FieldName    string       `json:"fieldName"`
	SelectorKind SelectorKind `json:"selectorKind"`
	Selector     string       `json:"selector"`
	Attribute    string       `json:"attribute,omitempty"`
	IsList       bool         `json:"isList"`
	IsRequired   bool         `json:"isRequired"`
	DisplayOrder int          `json:"displayOrder"`
}

// ResultRecord is the extracted data for one completed URL. Values are
// either strings or []string depending on the rule's IsList flag. URL
// is filled on reads that join the owning URL row.
type ResultRecord struct {
	ID         string         `json:"id"`
	JobID      string         `json:"jobId"`
	URLID      string         `json:"urlId"`
	URL        string         `json:"url,omitempty"`
	Data       map[string]any `json:"data"`
	MethodUsed string         `json:"methodUsed,omitempty"`
	RawHTML    string         `json:"rawHtml,omitempty"`
	Markdown   string         `json:"markdown,omitempty"`
	ScrapedAt  time.Time      `json:"scrapedAt"`
}

// LogLevel grades a job log entry.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogSuccess LogLevel = "success"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
	LogDebug   LogLevel = "debug"
)

// LogEntry is one per-job log record held in the orchestrator's ring
// buffer and polled over the API.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// LogPage is one page of log entries. CurrentIndex is monotonic per job
// and is passed back as since_index on the next poll.
type LogPage struct {
	Logs         []LogEntry `json:"logs"`
	TotalCount   int        `json:"totalCount"`
	CurrentIndex int        `json:"currentIndex"`
}

// URLCounts breaks a job's URLs down by status.
type URLCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Total      int `json:"total"`
}

// StatusSnapshot is the job status object returned by the orchestrator.
type StatusSnapshot struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Status          JobStatus `json:"status"`
	ProgressCurrent int       `json:"progressCurrent"`
	ProgressTotal   int       `json:"progressTotal"`
	SuccessCount    int       `json:"successCount"`
	FailureCount    int       `json:"failureCount"`
	URLCounts       URLCounts `json:"urlCounts"`
	IsRunning       bool      `json:"isRunning"`
}
