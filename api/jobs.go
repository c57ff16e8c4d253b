package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/recall/pipeline"
)

// ListJobs lists recent embedding jobs, newest first.
// GET /v1/jobs
func (h *Handler) ListJobs(c echo.Context) error {
	limit := 20
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}

	jobs, err := h.service.Store().ListJobs(c.Request().Context(), limit)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"jobs": jobs,
	})
}

// GetJob gets a specific embedding job by ID.
// GET /v1/jobs/:job_id
func (h *Handler) GetJob(c echo.Context) error {
	jobID := c.Param("job_id")

	job, err := h.service.Store().GetJob(c.Request().Context(), jobID)
	if err != nil {
		return jsonError(c, err)
	}
	if job == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}
	return c.JSON(http.StatusOK, job)
}

// RunJob triggers an embedding run outside the regular schedule. The run
// happens in the background; its outcome lands in the job records.
// POST /v1/jobs/run
func (h *Handler) RunJob(c echo.Context) error {
	go func() {
		if _, err := h.runner.Run(context.Background()); err != nil {
			if errors.Is(err, pipeline.ErrAlreadyRunning) {
				log.Printf("WARN: manual embedding run skipped, another run in flight")
				return
			}
			log.Printf("ERROR: manual embedding run failed: %v", err)
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]string{"status": "started"})
}
