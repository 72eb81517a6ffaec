// Package api exposes the mediaq engine over HTTP: job status and result
// access, upload submission, record listings and live watch streams.
package api

import (
	"log/slog"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/mediaq/engine"
	"github.com/xraph/mediaq/job"
	"github.com/xraph/mediaq/media"
	"github.com/xraph/mediaq/upload"
)

// API wires the Forge HTTP handlers for the mediaq engine.
type API struct {
	eng     *engine.Engine
	router  forge.Router
	uploads *upload.Spooler
	records media.Repository
	search  *media.Searcher
	logger  *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithUploads enables upload submission routes backed by s.
func WithUploads(s *upload.Spooler) Option {
	return func(a *API) { a.uploads = s }
}

// WithRecords enables the transcription and video listing routes.
func WithRecords(r media.Repository) Option {
	return func(a *API) { a.records = r }
}

// WithSearch enables GET /v1/search backed by s.
func WithSearch(s *media.Searcher) Option {
	return func(a *API) { a.search = s }
}

// New creates an API for eng. A nil router is replaced by a new Forge
// router when Handler is called.
func New(eng *engine.Engine, router forge.Router, opts ...Option) *API {
	a := &API{eng: eng, router: router, logger: eng.Logger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	a.RegisterRoutes(a.router)
	return a.router.Handler()
}

// RegisterRoutes registers all mediaq routes into router with OpenAPI
// metadata.
func (a *API) RegisterRoutes(router forge.Router) {
	a.registerJobRoutes(router)
	a.registerWatchRoutes(router)
	if a.uploads != nil {
		a.registerProcessRoutes(router)
	}
	if a.records != nil {
		a.registerRecordRoutes(router)
	}
	if a.search != nil {
		a.registerSearchRoutes(router)
	}
	a.registerStatsRoutes(router)
}

func (a *API) registerJobRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("jobs"))

	_ = g.GET("/jobs", a.listJobs,
		forge.WithSummary("List jobs"),
		forge.WithDescription("Returns jobs in creation order filtered by status and kind."),
		forge.WithOperationID("listJobs"),
		forge.WithRequestSchema(ListJobsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Job list", []JobResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/jobs/counts", a.jobCounts,
		forge.WithSummary("Job counts"),
		forge.WithDescription("Returns job counts grouped by status."),
		forge.WithOperationID("jobCounts"),
		forge.WithResponseSchema(http.StatusOK, "Job counts", map[job.Status]int64{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/jobs/:jobId", a.getJob,
		forge.WithSummary("Get job"),
		forge.WithDescription("Returns the current state of a job."),
		forge.WithOperationID("getJob"),
		forge.WithResponseSchema(http.StatusOK, "Job details", JobResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/jobs/:jobId/result", a.getJobResult,
		forge.WithSummary("Get job result"),
		forge.WithDescription("Returns the result of a succeeded job. Responds 409 while the job is in progress and 500 with the last error when it failed."),
		forge.WithOperationID("getJobResult"),
		forge.WithResponseSchema(http.StatusOK, "Job result", ResultResponse{}),
		forge.WithResponseSchema(http.StatusConflict, "Job not completed", NotCompletedResponse{}),
		forge.WithResponseSchema(http.StatusInternalServerError, "Job failed", FailedResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) registerWatchRoutes(router forge.Router) {
	if err := router.WebSocket("/v1/jobs/:jobId/watch", a.watchWebSocket); err != nil {
		a.logger.Error("failed to register job watch WebSocket", slog.String("error", err.Error()))
	}
	if err := router.EventStream("/v1/jobs/:jobId/events", a.watchSSE); err != nil {
		a.logger.Error("failed to register job watch SSE", slog.String("error", err.Error()))
	}
}

func (a *API) registerProcessRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("process"))

	_ = g.POST("/process/:kind", a.process,
		forge.WithSummary("Submit media"),
		forge.WithDescription("Spools the uploaded file and queues a processing job of the given kind."),
		forge.WithOperationID("processMedia"),
		forge.WithRequestSchema(ProcessRequest{}),
		forge.WithResponseSchema(http.StatusAccepted, "Job accepted", ProcessResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) registerRecordRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("records"))

	_ = g.GET("/transcriptions", a.listTranscriptions,
		forge.WithSummary("List transcriptions"),
		forge.WithDescription("Returns every stored transcription."),
		forge.WithOperationID("listTranscriptions"),
		forge.WithResponseSchema(http.StatusOK, "Transcriptions", []*media.Transcription{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/videos", a.listVideos,
		forge.WithSummary("List videos"),
		forge.WithDescription("Returns every stored video record."),
		forge.WithOperationID("listVideos"),
		forge.WithResponseSchema(http.StatusOK, "Videos", []*media.Video{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) registerSearchRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("records"))

	_ = g.GET("/search", a.searchMedia,
		forge.WithSummary("Search media"),
		forge.WithDescription("Ranks transcriptions and video summaries together by similarity to q, or to the record named by ref_type and ref_id."),
		forge.WithOperationID("searchMedia"),
		forge.WithRequestSchema(SearchRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Ranked records", SearchResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) registerStatsRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("stats"))

	_ = g.GET("/stats", a.stats,
		forge.WithSummary("Queue stats"),
		forge.WithDescription("Returns job counts, worker pool and stream statistics."),
		forge.WithOperationID("queueStats"),
		forge.WithResponseSchema(http.StatusOK, "Queue statistics", StatsResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/health", a.health,
		forge.WithSummary("Health"),
		forge.WithDescription("Responds 200 while the engine is running and 503 otherwise."),
		forge.WithOperationID("health"),
		forge.WithResponseSchema(http.StatusOK, "Healthy", HealthResponse{}),
		forge.WithErrorResponses(),
	)
}
