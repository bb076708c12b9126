package httpapi

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/slurmplan/internal/ratelimit"
)

// operatorMutationLimit bounds how many cancel/retry/delete calls one
// operator may issue per minute.
const operatorMutationLimit = 30

// RegisterRoutes wires the job query/command surface onto e.
func RegisterRoutes(e *echo.Echo, h *JobHandler, limiter *ratelimit.Limiter) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	jobs := e.Group("/api/v1/jobs")
	jobs.GET("", h.ListJobs)
	jobs.GET("/:id", h.GetJob)

	mutating := jobs.Group("")
	mutating.Use(operatorRateLimit(limiter, operatorMutationLimit))
	mutating.POST("/:id/cancel", h.CancelJob)
	mutating.POST("/:id/retry", h.RetryJob)
	mutating.DELETE("/:id", h.DeleteJob)

	nodes := e.Group("/api/v1/nodes")
	nodes.Use(operatorRateLimit(limiter, operatorMutationLimit))
	nodes.POST("/:node_id/retry", h.RetryNode)
}
