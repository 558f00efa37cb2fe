package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mauv0809/energy-feeds/internal/db"
)

// Store is the slice of the destination store the system endpoints need.
type Store interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) ([]db.TableStats, error)
}

type Handler struct {
	store Store
}

func New(store Store) *Handler {
	return &Handler{store: store}
}

// Health returns application health status
// @Summary Health check
// @Description Returns ok when the destination store answers a ping
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":   "unavailable",
			"database": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":   "ok",
		"database": "ok",
	})
}

// Status handles GET /admin/ingest/status
// Returns row counts and latest timestamps per destination relation.
func (h *Handler) Status(c echo.Context) error {
	stats, err := h.store.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"tables": stats})
}
