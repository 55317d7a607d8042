package http

import (
	"scrapeforge/internal/cascade"
	"scrapeforge/internal/model"
)

// ErrorResponse is the uniform failure envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// RuleInput is one extraction rule as submitted over the API.
// SelectorKind defaults to css; displayOrder defaults to list position.
type RuleInput struct {
	FieldName    string `json:"fieldName"`
	SelectorKind string `json:"selectorKind,omitempty"`
	Selector     string `json:"selector"`
	Attribute    string `json:"attribute,omitempty"`
	IsList       bool   `json:"isList,omitempty"`
	IsRequired   bool   `json:"isRequired,omitempty"`
	DisplayOrder int    `json:"displayOrder,omitempty"`
}

// CreateJobRequest is the payload for POST /v1/jobs.
type CreateJobRequest struct {
	Name     string         `json:"name"`
	Mode     string         `json:"mode,omitempty"`
	URLs     []string       `json:"urls"`
	Rules    []RuleInput    `json:"rules,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

type JobResponse struct {
	Success bool       `json:"success"`
	Job     *model.Job `json:"job,omitempty"`
	Code    string     `json:"code,omitempty"`
	Error   string     `json:"error,omitempty"`
}

type ListJobsResponse struct {
	Success bool        `json:"success"`
	Jobs    []model.Job `json:"jobs"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type JobStatusResponse struct {
	Success bool                  `json:"success"`
	Job     *model.StatusSnapshot `json:"job,omitempty"`
	Code    string                `json:"code,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// ActionResponse reports the outcome of a lifecycle action. Status is
// the job status the action moved the job into.
type ActionResponse struct {
	Success bool   `json:"success"`
	Started bool   `json:"started,omitempty"`
	Status  string `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

type LogsResponse struct {
	Success      bool             `json:"success"`
	Logs         []model.LogEntry `json:"logs"`
	TotalCount   int              `json:"totalCount"`
	CurrentIndex int              `json:"currentIndex"`
	Code         string           `json:"code,omitempty"`
	Error        string           `json:"error,omitempty"`
}

type URLsResponse struct {
	Success bool              `json:"success"`
	URLs    []model.URLRecord `json:"urls"`
	Code    string            `json:"code,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type ResultsResponse struct {
	Success bool                 `json:"success"`
	Results []model.ResultRecord `json:"results"`
	Total   int                  `json:"total"`
	Code    string               `json:"code,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// ScrapePreviewRequest is the payload for POST /v1/scrape: one URL run
// through the full pipeline without touching persistence. Settings take
// the same keys a job's settings map does.
type ScrapePreviewRequest struct {
	URL      string         `json:"url"`
	Rules    []RuleInput    `json:"rules,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

type ScrapePreviewResponse struct {
	Success         bool              `json:"success"`
	Data            map[string]any    `json:"data,omitempty"`
	MethodUsed      string            `json:"methodUsed,omitempty"`
	StatusCode      int               `json:"statusCode,omitempty"`
	ResponseTimeMs  int64             `json:"responseTimeMs"`
	Attempts        []cascade.Attempt `json:"attempts,omitempty"`
	Markdown        string            `json:"markdown,omitempty"`
	RawHTML         string            `json:"rawHtml,omitempty"`
	VisionExtracted bool              `json:"visionExtracted,omitempty"`
	ErrorType       string            `json:"errorType,omitempty"`
	Code            string            `json:"code,omitempty"`
	Error           string            `json:"error,omitempty"`
}

type SettingsResponse struct {
	Success  bool              `json:"success"`
	Settings map[string]string `json:"settings"`
	Code     string            `json:"code,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// UpdateSettingsRequest carries key/value overrides for PUT
// /v1/settings. Values are stored as strings; readers coerce.
type UpdateSettingsRequest struct {
	Settings map[string]string `json:"settings"`
}
