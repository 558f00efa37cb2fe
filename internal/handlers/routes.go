package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Register mounts the system and admin routes on e.
func Register(e *echo.Echo, h *Handler, ingest *IngestHandler, metrics http.Handler) {
	e.GET("/health", h.Health)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	admin := e.Group("/admin")
	admin.GET("/ingest/status", h.Status)
	admin.POST("/ingest/spreadsheets", ingest.IngestSpreadsheets)
	admin.POST("/ingest/products", ingest.IngestProducts)
	admin.POST("/ingest/all", ingest.IngestAll)
	admin.GET("/ingest/runs", ingest.ListRuns)
	admin.GET("/ingest/runs/:id", ingest.GetRun)
}
