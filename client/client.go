// Package client is a Go client for a remote mediaq server. It speaks the
// REST API for submissions and lookups and a WebSocket stream for live
// job progress.
//
// Usage:
//
//	c := client.New("http://localhost:8080", client.WithFormat("msgpack"))
//
//	ack, err := c.Submit(ctx, job.KindAudio, "talk.wav", data)
//	events, err := c.Watch(ctx, ack.JobID)
//	for evt := range events {
//	    fmt.Printf("%s %d%% %s\n", evt.Data.Status, evt.Data.Progress, evt.Data.Message)
//	}
//
//	res, err := c.Result(ctx, ack.JobID)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/mediaq"
	"github.com/xraph/mediaq/api"
	"github.com/xraph/mediaq/id"
	"github.com/xraph/mediaq/job"
	"github.com/xraph/mediaq/media"
	"github.com/xraph/mediaq/stream"
)

// APIError is returned for responses the client has no sentinel for.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mediaq/client: http %d: %s", e.StatusCode, e.Message)
}

// Client talks to a mediaq server.
type Client struct {
	baseURL string
	http    *http.Client
	format  string
	logger  *slog.Logger

	// Watch reconnection.
	reconnect  bool
	maxRetries int
	baseDelay  time.Duration
}

// New returns a client for the server at baseURL, e.g. "http://host:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 30 * time.Second},
		format:     stream.CodecNameJSON,
		logger:     slog.Default(),
		maxRetries: 5,
		baseDelay:  time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends a request and decodes a 2xx JSON body into out. Non-2xx
// responses are mapped by decodeError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("mediaq/client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mediaq/client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("mediaq/client: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("mediaq/client: decode response: %w", err)
	}
	return nil
}

func decodeError(code int, data []byte) error {
	var body struct {
		Message string          `json:"message"`
		Status  job.Status      `json:"status"`
		Error   json.RawMessage `json:"error"`
	}
	_ = json.Unmarshal(data, &body)
	if body.Message == "" {
		body.Message = strings.TrimSpace(string(data))
	}

	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", mediaq.ErrJobNotFound, body.Message)
	case http.StatusConflict:
		return fmt.Errorf("%w (status %s)", mediaq.ErrJobNotCompleted, body.Status)
	}
	return &APIError{StatusCode: code, Message: body.Message}
}

// GetJob fetches the current state of a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*api.JobResponse, error) {
	var out api.JobResponse
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+jobID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Result returns the raw result of a succeeded job. An in-progress job
// yields an error matching mediaq.ErrJobNotCompleted. A failed job yields
// a *job.FailedError that matches mediaq.ErrJobFailed.
func (c *Client) Result(ctx context.Context, jobID string) (json.RawMessage, error) {
	var out api.ResultResponse
	err := c.do(ctx, http.MethodGet, "/v1/jobs/"+jobID+"/result", nil, &out)
	if err == nil {
		return out.Result, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusInternalServerError {
		if failed := c.failedError(ctx, jobID); failed != nil {
			return nil, failed
		}
	}
	return nil, err
}

// failedError re-reads a job after a 500 result and reports its failure
// when the job is in fact failed.
func (c *Client) failedError(ctx context.Context, jobID string) error {
	j, err := c.GetJob(ctx, jobID)
	if err != nil || j.Status != job.StatusFailed {
		return nil
	}
	parsed, _ := id.ParseJobID(jobID)
	return &job.FailedError{JobID: parsed, Failure: j.LastError}
}

// Submit uploads data as filename and queues a job of kind for it.
func (c *Client) Submit(ctx context.Context, kind job.Kind, filename string, data []byte) (*api.ProcessResponse, error) {
	var out api.ProcessResponse
	req := api.ProcessRequest{Filename: filename, Data: data}
	if err := c.do(ctx, http.MethodPost, "/v1/process/"+string(kind), req, &out); err != nil {
		return nil, err
	}
	c.logger.Debug("job submitted",
		slog.String("job_id", out.JobID),
		slog.String("kind", string(kind)),
	)
	return &out, nil
}

// ListOption narrows List.
type ListOption func(*api.ListJobsRequest)

// WithStatus filters by status.
func WithStatus(s job.Status) ListOption {
	return func(r *api.ListJobsRequest) { r.Status = string(s) }
}

// WithKind filters by kind.
func WithKind(k job.Kind) ListOption {
	return func(r *api.ListJobsRequest) { r.Kind = string(k) }
}

// WithPage sets limit and offset.
func WithPage(limit, offset int) ListOption {
	return func(r *api.ListJobsRequest) {
		r.Limit = limit
		r.Offset = offset
	}
}

// List returns jobs matching the options.
func (c *Client) List(ctx context.Context, opts ...ListOption) ([]api.JobResponse, error) {
	var req api.ListJobsRequest
	for _, opt := range opts {
		opt(&req)
	}

	q := make([]string, 0, 4)
	if req.Status != "" {
		q = append(q, "status="+req.Status)
	}
	if req.Kind != "" {
		q = append(q, "kind="+req.Kind)
	}
	if req.Limit > 0 {
		q = append(q, fmt.Sprintf("limit=%d", req.Limit))
	}
	if req.Offset > 0 {
		q = append(q, fmt.Sprintf("offset=%d", req.Offset))
	}
	path := "/v1/jobs"
	if len(q) > 0 {
		path += "?" + strings.Join(q, "&")
	}

	var out []api.JobResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Search ranks stored transcriptions and videos against query. A topK of
// zero uses the server default.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]media.SearchResult, error) {
	q := url.Values{"q": {query}}
	if topK > 0 {
		q.Set("top_k", strconv.Itoa(topK))
	}
	var out api.SearchResponse
	if err := c.do(ctx, http.MethodGet, "/v1/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Counts returns job counts per status.
func (c *Client) Counts(ctx context.Context) (map[job.Status]int64, error) {
	out := make(map[job.Status]int64)
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/counts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats retrieves queue statistics from the server.
func (c *Client) Stats(ctx context.Context) (*api.StatsResponse, error) {
	var out api.StatsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns nil when the server reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/health", nil, nil)
}
