package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/recall/domain"
	"github.com/xiaot623/recall/format"
)

// PostQuery answers one query with hybrid memory.
// POST /v1/query
func (h *Handler) PostQuery(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
	}

	result, err := h.service.Query(ctx, req)
	if err != nil {
		return jsonError(c, err)
	}
	return renderResult(c, req.Format, result)
}

// PostSummarize answers a summary query over a wider history window.
// POST /v1/summarize
func (h *Handler) PostSummarize(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	result, err := h.service.Summarize(ctx, req)
	if err != nil {
		return jsonError(c, err)
	}
	return renderResult(c, req.Format, result)
}

// renderResult applies the requested presentation format. The default is
// the plain JSON result.
func renderResult(c echo.Context, formatName string, result *domain.QueryResponse) error {
	switch formatName {
	case "", "json":
		return c.JSON(http.StatusOK, result)
	case "markdown":
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(format.Markdown(result)))
	case "html":
		return c.HTML(http.StatusOK, format.HTML(result))
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown format: " + formatName})
	}
}
