package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/recall/domain"
)

// ListPersonalities lists the loaded personality definitions.
// GET /v1/personalities
func (h *Handler) ListPersonalities(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"personalities": h.service.Personalities().List(),
	})
}

// AddPersonality registers a new personality definition and persists it.
// POST /v1/personalities
func (h *Handler) AddPersonality(c echo.Context) error {
	var req domain.AddPersonalityRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.ID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "id is required"})
	}
	if req.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required"})
	}

	id, err := h.service.Personalities().Add(req.ID, req.Extension, req.Content)
	if err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"ok": true,
		"id": id,
	})
}
