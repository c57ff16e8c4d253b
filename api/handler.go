// Package api provides HTTP handlers for the memory service.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/recall/domain"
	"github.com/xiaot623/recall/pipeline"
	"github.com/xiaot623/recall/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	runner  *pipeline.Runner
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, runner *pipeline.Runner) *Handler {
	return &Handler{
		service: svc,
		runner:  runner,
	}
}

// RegisterRoutes registers external routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Query API
	e.POST("/v1/query", h.PostQuery)
	e.POST("/v1/summarize", h.PostSummarize)

	// Ledger API (for retrieving data)
	e.GET("/v1/sessions/:session_id/messages", h.GetSessionMessages)

	// Personality API
	e.GET("/v1/personalities", h.ListPersonalities)
	e.POST("/v1/personalities", h.AddPersonality)

	// Embedding-job API
	e.GET("/v1/jobs", h.ListJobs)
	e.GET("/v1/jobs/:job_id", h.GetJob)
	e.POST("/v1/jobs/run", h.RunJob)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// jsonError maps domain sentinel errors onto HTTP status codes.
func jsonError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidIdentifier), errors.Is(err, domain.ErrInvalidDefinition):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrGenerationFailed):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrNotInitialized):
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
