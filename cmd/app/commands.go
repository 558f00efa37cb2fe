package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/mauv0809/energy-feeds/internal/ckan"
	"github.com/mauv0809/energy-feeds/internal/handlers"
	"github.com/mauv0809/energy-feeds/internal/models"
	"github.com/mauv0809/energy-feeds/internal/pipeline"
)

const shutdownTimeout = 30 * time.Second

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// =============================================================================
// SERVE
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Start the HTTP server with ingestion trigger endpoints",
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	logger := env.logger

	ctx, stop := signalContext()
	defer stop()

	store, closeStore, err := env.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	runner := pipeline.NewRunner(env.orchestrator(store, reg), 16, 100, logger)
	runner.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Error("request failed", append(attrs, slog.Any("error", v.Error))...)
			} else {
				logger.Info("request", attrs...)
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	handlers.Register(e,
		handlers.New(store),
		handlers.NewIngestHandler(runner, env.cfg.FirstYear, logger),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", env.cfg.ListenAddr()))
		if err := e.Start(env.cfg.ListenAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
	return runner.Stop(shutdownTimeout)
}

// =============================================================================
// INGEST
// =============================================================================

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Run an ingestion synchronously and print its report",
		Subcommands: []*cli.Command{
			{
				Name:  "spreadsheets",
				Usage: "Ingest ONS yearly workbooks",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "kind", Aliases: []string{"k"}, Usage: "ear, ena, cmo or balance (repeatable; default all)"},
					&cli.IntFlag{Name: "from", Usage: "first year (default FIRST_YEAR)"},
					&cli.IntFlag{Name: "to", Usage: "last year (default current year)"},
				},
				Action: runIngestSpreadsheets,
			},
			{
				Name:      "product",
				Usage:     "Ingest a CCEE product",
				ArgsUsage: "[product]",
				Action:    runIngestProduct,
			},
			{
				Name:  "all",
				Usage: "Ingest current-year workbooks and the spot-price product",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "full", Usage: "ingest every year since FIRST_YEAR"},
				},
				Action: runIngestAll,
			},
		},
	}
}

func runIngestSpreadsheets(c *cli.Context) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}

	kinds := models.SpreadsheetKinds
	if names := c.StringSlice("kind"); len(names) > 0 {
		kinds = nil
		for _, n := range names {
			k, err := models.ParseKind(n)
			if err != nil {
				return err
			}
			kinds = append(kinds, k)
		}
	}
	from := env.cfg.FirstYear
	if c.IsSet("from") {
		from = c.Int("from")
	}
	to := time.Now().Year()
	if c.IsSet("to") {
		to = c.Int("to")
	}

	return env.runPlan(pipeline.Plan{Kinds: kinds, Years: pipeline.YearRange(from, to)})
}

func runIngestProduct(c *cli.Context) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	product := ckan.DefaultProduct
	if c.Args().Present() {
		product = c.Args().First()
	}
	return env.runPlan(pipeline.Plan{Products: []string{product}})
}

func runIngestAll(c *cli.Context) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	plan := pipeline.CurrentYearPlan(time.Now())
	if c.Bool("full") {
		plan = pipeline.FullPlan(env.cfg.FirstYear, time.Now())
	}
	return env.runPlan(plan)
}

// runPlan executes plan in the foreground. It fails only when no unit
// succeeded.
func (e *env) runPlan(plan pipeline.Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	store, closeStore, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	report := e.orchestrator(store, nil).Run(ctx, uuid.NewString(), plan)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if report.Count(pipeline.OutcomeSuccess) == 0 {
		return cli.Exit("no ingestion unit succeeded", 1)
	}
	return nil
}

// =============================================================================
// PORTAL INSPECTION
// =============================================================================

func institutionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "institution",
		Aliases: []string{"i"},
		Usage:   "ccee, ons or aneel (default CCEE_HOST)",
	}
}

func productsCommand() *cli.Command {
	return &cli.Command{
		Name:  "products",
		Usage: "List the products published by an open-data portal",
		Flags: []cli.Flag{institutionFlag()},
		Action: func(c *cli.Context) error {
			env, err := loadEnv()
			if err != nil {
				return err
			}
			portal, err := env.portal(c.String("institution"))
			if err != nil {
				return err
			}
			names, err := portal.ListProducts(c.Context)
			if err != nil {
				return err
			}
			fmt.Println(strings.Join(names, "\n"))
			return nil
		},
	}
}

func resourcesCommand() *cli.Command {
	return &cli.Command{
		Name:      "resources",
		Usage:     "Show the resources of a product and when each was last modified",
		ArgsUsage: "[product]",
		Flags:     []cli.Flag{institutionFlag()},
		Action: func(c *cli.Context) error {
			env, err := loadEnv()
			if err != nil {
				return err
			}
			portal, err := env.portal(c.String("institution"))
			if err != nil {
				return err
			}
			product := ckan.DefaultProduct
			if c.Args().Present() {
				product = c.Args().First()
			}
			resources, err := portal.Resources(c.Context, product)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tFORMAT\tLAST MODIFIED")
			for _, r := range resources {
				lm := r.LastModified
				if lm == "" {
					lm = "N/A"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Format, lm)
			}
			return w.Flush()
		},
	}
}

// =============================================================================
// MIGRATE
// =============================================================================

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the destination relations",
		Action: func(c *cli.Context) error {
			env, err := loadEnv()
			if err != nil {
				return err
			}
			if err := env.migrate(c.Context); err != nil {
				return err
			}
			env.logger.Info("migrations completed")
			return nil
		},
	}
}
