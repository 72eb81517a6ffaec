package api

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/xraph/forge"

	"github.com/xraph/mediaq/engine"
	"github.com/xraph/mediaq/job"
	"github.com/xraph/mediaq/media"
	"github.com/xraph/mediaq/upload"
)

func (a *API) process(ctx forge.Context) error {
	kind := job.Kind(ctx.Param("kind"))
	if _, ok := a.eng.Registry().Get(kind); !ok {
		return forge.BadRequest(fmt.Sprintf("unsupported kind %q", kind))
	}

	var req ProcessRequest
	if err := ctx.Bind(&req); err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid request body: %v", err))
	}

	path, err := a.uploads.Save(ctx.Context(), req.Filename, bytes.NewReader(req.Data))
	if errors.Is(err, upload.ErrInvalidName) {
		return forge.BadRequest(err.Error())
	}
	if err != nil {
		return forge.InternalError(fmt.Errorf("spool upload: %w", err))
	}

	name, _ := upload.SafeName(req.Filename)
	j, err := engine.Enqueue(ctx.Context(), a.eng, kind, media.Input{FilePath: path, Filename: name})
	if err != nil {
		_ = os.Remove(path)
		return forge.InternalError(fmt.Errorf("enqueue %s job: %w", kind, err))
	}

	a.logger.Info("media submitted",
		slog.String("job_id", j.ID.String()),
		slog.String("kind", string(kind)),
		slog.String("filename", name),
		slog.Int("bytes", len(req.Data)),
	)
	return ctx.JSON(http.StatusAccepted, ProcessResponse{JobID: j.ID.String(), Status: j.Status})
}

func (a *API) listTranscriptions(ctx forge.Context) error {
	records, err := a.records.ListTranscriptions(ctx.Context())
	if err != nil {
		return forge.InternalError(fmt.Errorf("list transcriptions: %w", err))
	}
	if records == nil {
		records = []*media.Transcription{}
	}
	return ctx.JSON(http.StatusOK, records)
}

func (a *API) listVideos(ctx forge.Context) error {
	records, err := a.records.ListVideos(ctx.Context())
	if err != nil {
		return forge.InternalError(fmt.Errorf("list videos: %w", err))
	}
	if records == nil {
		records = []*media.Video{}
	}
	return ctx.JSON(http.StatusOK, records)
}

func (a *API) searchMedia(ctx forge.Context) error {
	req := SearchRequest{Query: ctx.Query("q"), RefType: ctx.Query("ref_type")}
	if v := ctx.Query("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return forge.BadRequest(fmt.Sprintf("invalid top_k %q", v))
		}
		req.TopK = n
	}
	if req.RefType != "" {
		if req.RefType != media.RecordTranscription && req.RefType != media.RecordVideo {
			return forge.BadRequest(fmt.Sprintf("unknown ref_type %q", req.RefType))
		}
		n, err := strconv.ParseInt(ctx.Query("ref_id"), 10, 64)
		if err != nil {
			return forge.BadRequest(fmt.Sprintf("invalid ref_id %q", ctx.Query("ref_id")))
		}
		req.RefID = n
	}
	if req.Query == "" && req.RefType == "" {
		return forge.BadRequest("q or ref_type is required")
	}

	results, err := a.search.Search(ctx.Context(), media.SearchQuery{
		Text:    req.Query,
		TopK:    req.TopK,
		RefType: req.RefType,
		RefID:   req.RefID,
	})
	if err != nil {
		return forge.InternalError(fmt.Errorf("search: %w", err))
	}
	if results == nil {
		results = []media.SearchResult{}
	}
	return ctx.JSON(http.StatusOK, SearchResponse{Query: req.Query, Results: results})
}
