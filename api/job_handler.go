package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/xraph/forge"

	"github.com/xraph/mediaq"
	"github.com/xraph/mediaq/id"
	"github.com/xraph/mediaq/job"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (a *API) listJobs(ctx forge.Context) error {
	req, err := parseListJobs(ctx)
	if err != nil {
		return err
	}

	jobs, err := a.eng.List(ctx.Context(), job.ListOpts{
		Status: job.Status(req.Status),
		Kind:   job.Kind(req.Kind),
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		return forge.InternalError(fmt.Errorf("list jobs: %w", err))
	}

	resp := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, newJobResponse(j))
	}
	return ctx.JSON(http.StatusOK, resp)
}

func parseListJobs(ctx forge.Context) (*ListJobsRequest, error) {
	req := &ListJobsRequest{
		Status: ctx.Query("status"),
		Kind:   ctx.Query("kind"),
		Limit:  defaultListLimit,
	}
	if req.Status != "" && !job.Status(req.Status).Valid() {
		return nil, forge.BadRequest(fmt.Sprintf("unknown status %q", req.Status))
	}
	if v := ctx.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, forge.BadRequest(fmt.Sprintf("invalid limit %q", v))
		}
		req.Limit = min(n, maxListLimit)
	}
	if v := ctx.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, forge.BadRequest(fmt.Sprintf("invalid offset %q", v))
		}
		req.Offset = n
	}
	return req, nil
}

func (a *API) getJob(ctx forge.Context) error {
	jobID, err := parseJobID(ctx)
	if err != nil {
		return err
	}

	j, err := a.eng.Get(ctx.Context(), jobID)
	if err != nil {
		return mapStoreError(err)
	}
	return ctx.JSON(http.StatusOK, newJobResponse(j))
}

func (a *API) getJobResult(ctx forge.Context) error {
	jobID, err := parseJobID(ctx)
	if err != nil {
		return err
	}

	result, err := a.eng.Result(ctx.Context(), jobID)
	var failed *job.FailedError
	switch {
	case err == nil:
		return ctx.JSON(http.StatusOK, ResultResponse{ID: jobID.String(), Result: result})
	case errors.As(err, &failed):
		return ctx.Status(http.StatusInternalServerError).JSON(FailedResponse{
			Message: "job failed",
			Error:   failed.Failure,
		})
	case errors.Is(err, mediaq.ErrJobNotCompleted):
		j, getErr := a.eng.Get(ctx.Context(), jobID)
		if getErr != nil {
			return mapStoreError(getErr)
		}
		return ctx.Status(http.StatusConflict).JSON(NotCompletedResponse{
			Message: "job not completed yet",
			Status:  j.Status,
		})
	default:
		return mapStoreError(err)
	}
}

func (a *API) jobCounts(ctx forge.Context) error {
	counts, err := a.eng.Counts(ctx.Context(), job.Kind(ctx.Query("kind")))
	if err != nil {
		return forge.InternalError(fmt.Errorf("count jobs: %w", err))
	}
	return ctx.JSON(http.StatusOK, counts)
}

// parseJobID reads the :jobId path parameter. An ID that does not parse
// cannot name a job, so it is reported as not found.
func parseJobID(ctx forge.Context) (id.JobID, error) {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		return id.Nil, forge.NotFound("job not found")
	}
	return jobID, nil
}

// mapStoreError converts mediaq sentinel errors to forge HTTP errors.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mediaq.ErrJobNotFound):
		return forge.NotFound("job not found")
	default:
		return forge.InternalError(err)
	}
}
