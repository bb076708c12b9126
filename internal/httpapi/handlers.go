// Package httpapi exposes the read/command surface an external
// dashboard would call: filtered job listings, single-job lookups,
// and the mutating cancel/retry/delete operations, each backed
// directly by the store, scheduler adapter, and retry planner rather
// than any new business logic of its own.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/slurmplan/internal/errs"
	"github.com/lyzr/slurmplan/internal/logger"
	"github.com/lyzr/slurmplan/internal/retry"
	"github.com/lyzr/slurmplan/internal/store"
)

// Scheduler is the subset of the scheduler adapter the HTTP surface
// calls directly (State hydration flows through store.StateHydrator
// instead, so a cache can sit in between).
type Scheduler interface {
	Cancel(jobID string) error
}

// JobHandler serves the job query/command routes.
type JobHandler struct {
	store     *store.Store
	hydrator  store.StateHydrator
	scheduler Scheduler
	retry     *retry.Planner
	log       *logger.Logger
}

func NewJobHandler(st *store.Store, hydrator store.StateHydrator, sched Scheduler, planner *retry.Planner, log *logger.Logger) *JobHandler {
	return &JobHandler{store: st, hydrator: hydrator, scheduler: sched, retry: planner, log: log}
}

// ListJobs handles GET /api/v1/jobs?filter=...&filter=...
func (h *JobHandler) ListJobs(c echo.Context) error {
	tokens := c.QueryParams()["filter"]
	filters, err := store.ParseFilters(tokens)
	if err != nil {
		return writeErr(c, err)
	}

	includeLiveState := true
	if v := c.QueryParam("live_state"); v != "" {
		includeLiveState, _ = strconv.ParseBool(v)
	}

	jobs, err := h.store.GetJobs(c.Request().Context(), filters, includeLiveState, h.hydrator)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, jobs)
}

// GetJob handles GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c echo.Context) error {
	id := c.Param("id")
	filters := []store.Filter{{Field: "id", Op: "=", Value: id}}

	jobs, err := h.store.GetJobs(c.Request().Context(), filters, true, h.hydrator)
	if err != nil {
		return writeErr(c, err)
	}
	if len(jobs) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return c.JSON(http.StatusOK, jobs[0])
}

// CancelJob handles POST /api/v1/jobs/:id/cancel
func (h *JobHandler) CancelJob(c echo.Context) error {
	id := c.Param("id")
	if err := h.scheduler.Cancel(id); err != nil {
		return writeErr(c, err)
	}
	h.log.Info("job cancelled", "job_id", id)
	return c.JSON(http.StatusOK, map[string]string{"job_id": id, "status": "cancel_requested"})
}

// retryRequest is the optional body POST .../retry accepts.
type retryRequest struct {
	Force   bool   `json:"force"`
	DepKind string `json:"dep_kind"`
}

// RetryJob handles POST /api/v1/jobs/:id/retry
func (h *JobHandler) RetryJob(c echo.Context) error {
	id := c.Param("id")
	req := retryRequest{DepKind: "afterok"}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	newID, err := h.retry.Retry(c.Request().Context(), id, req.Force, req.DepKind)
	if err != nil {
		return writeErr(c, err)
	}
	h.log.Info("job retried", "old_job_id", id, "new_job_id", newID)
	return c.JSON(http.StatusOK, map[string]string{"old_job_id": id, "new_job_id": newID})
}

// RetryNode handles POST /api/v1/nodes/:node_id/retry
func (h *JobHandler) RetryNode(c echo.Context) error {
	nodeID := c.Param("node_id")
	req := retryRequest{DepKind: "afterok"}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	newIDs, err := h.retry.RetryByNode(c.Request().Context(), []string{nodeID}, req.Force, req.DepKind)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"node_id": nodeID, "new_job_ids": newIDs})
}

// DeleteJob handles DELETE /api/v1/jobs/:id?cascade=true
func (h *JobHandler) DeleteJob(c echo.Context) error {
	id := c.Param("id")
	cascade, _ := strconv.ParseBool(c.QueryParam("cascade"))

	if err := h.store.DeleteJob(c.Request().Context(), id, cascade); err != nil {
		return writeErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// writeErr maps the named error kinds to HTTP status codes; anything
// else is an unexpected internal error.
func writeErr(c echo.Context, err error) error {
	kind, ok := errs.As(err)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	switch kind {
	case errs.InvalidPlan, errs.InvalidFilter:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errs.NotRetryable:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errs.SchedulerUnavailable, errs.SubmitFailed:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errs.StoreIntegrity:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
