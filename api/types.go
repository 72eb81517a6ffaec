package api

import (
	"encoding/json"
	"time"

	"github.com/xraph/mediaq/engine"
	"github.com/xraph/mediaq/job"
	"github.com/xraph/mediaq/media"
)

// JobResponse is the public projection of a job.
type JobResponse struct {
	ID          string       `json:"id"`
	Kind        job.Kind     `json:"kind"`
	Status      job.Status   `json:"status"`
	Progress    int          `json:"progress"`
	Message     string       `json:"message"`
	Attempt     int          `json:"attempt"`
	MaxAttempts int          `json:"max_attempts"`
	LastError   *job.Failure `json:"last_error"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func newJobResponse(j *job.Job) JobResponse {
	return JobResponse{
		ID:          j.ID.String(),
		Kind:        j.Kind,
		Status:      j.Status,
		Progress:    j.Progress,
		Message:     j.Message,
		Attempt:     j.Attempt,
		MaxAttempts: j.MaxAttempts,
		LastError:   j.LastError,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// ListJobsRequest holds the query parameters of GET /v1/jobs.
type ListJobsRequest struct {
	Status string `query:"status" json:"status,omitempty"`
	Kind   string `query:"kind" json:"kind,omitempty"`
	Limit  int    `query:"limit" json:"limit,omitempty"`
	Offset int    `query:"offset" json:"offset,omitempty"`
}

// ResultResponse is returned for a succeeded job.
type ResultResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
}

// NotCompletedResponse is returned with 409 while a job is in progress.
type NotCompletedResponse struct {
	Message string     `json:"message"`
	Status  job.Status `json:"status"`
}

// FailedResponse is returned with 500 for a failed job.
type FailedResponse struct {
	Message string       `json:"message"`
	Error   *job.Failure `json:"error"`
}

// ProcessRequest is the body of POST /v1/process/:kind. Data is the file
// content, base64-encoded in JSON.
type ProcessRequest struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// ProcessResponse acknowledges a queued job.
type ProcessResponse struct {
	JobID  string     `json:"job_id"`
	Status job.Status `json:"status"`
}

// StatsResponse aggregates queue statistics.
type StatsResponse struct {
	Jobs map[job.Status]int64 `json:"jobs"`
	engine.Stats
}

// HealthResponse reports engine health.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SearchRequest holds the query parameters of GET /v1/search.
type SearchRequest struct {
	Query   string `query:"q" json:"q,omitempty"`
	TopK    int    `query:"top_k" json:"top_k,omitempty"`
	RefType string `query:"ref_type" json:"ref_type,omitempty"`
	RefID   int64  `query:"ref_id" json:"ref_id,omitempty"`
}

// SearchResponse lists ranked records, best match first.
type SearchResponse struct {
	Query   string               `json:"query"`
	Results []media.SearchResult `json:"results"`
}
