package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mauv0809/energy-feeds/internal/ckan"
	"github.com/mauv0809/energy-feeds/internal/models"
	"github.com/mauv0809/energy-feeds/internal/pipeline"
)

// Runner accepts plans and exposes submitted runs.
type Runner interface {
	Submit(plan pipeline.Plan) (string, error)
	Get(id string) (pipeline.Run, bool)
	Recent(n int) []pipeline.Run
}

// IngestHandler handles data ingestion endpoints.
type IngestHandler struct {
	runner    Runner
	firstYear int
	now       func() time.Time
	logger    *slog.Logger
}

// NewIngestHandler creates a new ingest handler. firstYear bounds full
// workbook backfills.
func NewIngestHandler(runner Runner, firstYear int, logger *slog.Logger) *IngestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestHandler{
		runner:    runner,
		firstYear: firstYear,
		now:       time.Now,
		logger:    logger.With("component", "ingest_handler"),
	}
}

// IngestResponse is the JSON response for ingestion endpoints.
type IngestResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	RunID   string         `json:"run_id,omitempty"`
	Plan    *pipeline.Plan `json:"plan,omitempty"`
}

// IngestSpreadsheets handles POST /admin/ingest/spreadsheets
// Queues workbook units. Query params:
// - kinds: comma-separated kinds (ear,ena,cmo,balance; default: all)
// - from, to: year range (default: current year)
// - full: if "true", from defaults to the first published year
func (h *IngestHandler) IngestSpreadsheets(c echo.Context) error {
	current := h.now().Year()

	kinds := models.SpreadsheetKinds
	if p := c.QueryParam("kinds"); p != "" {
		kinds = nil
		for _, s := range splitList(p) {
			k, err := models.ParseKind(s)
			if err != nil {
				return badRequest(c, err.Error())
			}
			kinds = append(kinds, k)
		}
	}

	defaultFrom := current
	if c.QueryParam("full") == "true" {
		defaultFrom = h.firstYear
	}
	from, err := yearParam(c, "from", defaultFrom)
	if err != nil {
		return badRequest(c, err.Error())
	}
	to, err := yearParam(c, "to", current)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if from < h.firstYear || to > current || from > to {
		return badRequest(c, fmt.Sprintf("year range must lie within %d..%d", h.firstYear, current))
	}

	return h.submit(c, pipeline.Plan{Kinds: kinds, Years: pipeline.YearRange(from, to)})
}

// IngestProducts handles POST /admin/ingest/products
// Queues CKAN product downloads. Query params:
// - product: comma-separated product names (default: hourly spot price)
func (h *IngestHandler) IngestProducts(c echo.Context) error {
	products := []string{ckan.DefaultProduct}
	if p := c.QueryParam("product"); p != "" {
		products = splitList(p)
	}
	return h.submit(c, pipeline.Plan{Products: products})
}

// IngestAll handles POST /admin/ingest/all
// Queues the current year's workbooks plus the spot-price product, or the
// whole history with full=true.
func (h *IngestHandler) IngestAll(c echo.Context) error {
	plan := pipeline.CurrentYearPlan(h.now())
	if c.QueryParam("full") == "true" {
		plan = pipeline.FullPlan(h.firstYear, h.now())
	}
	return h.submit(c, plan)
}

// ListRuns handles GET /admin/ingest/runs
// Query params:
// - limit: number of runs, newest first (default 20)
func (h *IngestHandler) ListRuns(c echo.Context) error {
	limit := 20
	if p := c.QueryParam("limit"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return badRequest(c, "limit must be a positive integer")
		}
		limit = n
	}
	return c.JSON(http.StatusOK, map[string]any{"runs": h.runner.Recent(limit)})
}

// GetRun handles GET /admin/ingest/runs/:id
func (h *IngestHandler) GetRun(c echo.Context) error {
	run, ok := h.runner.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, IngestResponse{
			Success: false,
			Message: fmt.Sprintf("run %s not found", c.Param("id")),
		})
	}
	return c.JSON(http.StatusOK, run)
}

func (h *IngestHandler) submit(c echo.Context, plan pipeline.Plan) error {
	id, err := h.runner.Submit(plan)
	switch {
	case errors.Is(err, pipeline.ErrQueueFull), errors.Is(err, pipeline.ErrStopped):
		h.logger.Warn("ingestion not queued", slog.Any("error", err))
		return c.JSON(http.StatusServiceUnavailable, IngestResponse{Success: false, Message: err.Error()})
	case err != nil:
		return badRequest(c, err.Error())
	}

	h.logger.Info("ingestion queued",
		slog.String("run_id", id),
		slog.Any("kinds", plan.Kinds),
		slog.Any("years", plan.Years),
		slog.Any("products", plan.Products))

	return c.JSON(http.StatusAccepted, IngestResponse{
		Success: true,
		Message: "Ingestion started",
		RunID:   id,
		Plan:    &plan,
	})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, IngestResponse{Success: false, Message: msg})
}

func yearParam(c echo.Context, name string, def int) (int, error) {
	p := c.QueryParam(name)
	if p == "" {
		return def, nil
	}
	y, err := strconv.Atoi(p)
	if err != nil {
		return 0, fmt.Errorf("%s must be a year, got %q", name, p)
	}
	return y, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
