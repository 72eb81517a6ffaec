package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"
)

func (a *API) stats(ctx forge.Context) error {
	counts, err := a.eng.Counts(ctx.Context(), "")
	if err != nil {
		return forge.InternalError(fmt.Errorf("count jobs: %w", err))
	}
	return ctx.JSON(http.StatusOK, StatsResponse{Jobs: counts, Stats: a.eng.Stats()})
}

func (a *API) health(ctx forge.Context) error {
	if err := a.eng.Ping(ctx.Context()); err != nil {
		return ctx.Status(http.StatusServiceUnavailable).JSON(HealthResponse{
			Status: "unavailable",
			Error:  err.Error(),
		})
	}
	return ctx.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
