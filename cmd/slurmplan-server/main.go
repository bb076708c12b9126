package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/slurmplan/internal/bootstrap"
	"github.com/lyzr/slurmplan/internal/httpapi"
	"github.com/lyzr/slurmplan/internal/retry"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "slurmplan-server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap slurmplan-server: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	planner := retry.NewPlanner(components.Store, components.Scheduler, components.Hydrator)
	if components.Ledger != nil {
		// Retries triggered over HTTP happen outside any tracked walk
		// run, so they're recorded against uuid.Nil.
		planner.OnRetry(func(oldID, newID string, children []string) {
			if err := components.Ledger.RecordRetry(ctx, uuid.Nil, oldID, newID, children); err != nil {
				components.Logger.Warn("failed to record retry audit entry", "old_job_id", oldID, "error", err)
			}
		})
	}

	handler := httpapi.NewJobHandler(components.Store, components.Hydrator, components.Scheduler, planner, components.Logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok", "service": "slurmplan-server"})
	})

	httpapi.RegisterRoutes(e, handler, components.RateLimit)

	components.Logger.Info("starting slurmplan-server", "port", components.Config.Service.Port)
	if err := e.Start(fmt.Sprintf(":%d", components.Config.Service.Port)); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
