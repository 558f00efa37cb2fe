package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mauv0809/energy-feeds/internal/fetch"
	"github.com/mauv0809/energy-feeds/internal/ingest"
	"github.com/mauv0809/energy-feeds/internal/metrics"
	"github.com/mauv0809/energy-feeds/internal/models"
)

// SpreadsheetSource yields one raw table per (kind, year).
type SpreadsheetSource interface {
	FetchYear(ctx context.Context, kind models.Kind, year int) (*ingest.Table, error)
}

// ProductSource yields the full raw table of a product.
type ProductSource interface {
	DownloadProduct(ctx context.Context, product string) (*ingest.Table, error)
}

// Writer persists normalized records and reports rows inserted.
type Writer interface {
	Write(ctx context.Context, kind models.Kind, records []models.Record) (int64, error)
}

// Options tunes an Orchestrator.
type Options struct {
	Workers int // concurrent units per provider; values below 1 mean 1
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Orchestrator runs plans. Each provider gets its own pipeline and the two
// run side by side.
type Orchestrator struct {
	sheets   SpreadsheetSource
	products ProductSource
	writer   Writer
	workers  int
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewOrchestrator wires the sources and the writer.
func NewOrchestrator(sheets SpreadsheetSource, products ProductSource, writer Writer, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		sheets:   sheets,
		products: products,
		writer:   writer,
		workers:  opts.Workers,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("component", "orchestrator"),
	}
}

// Run executes every unit of plan and always returns a complete report.
// Unit failures never stop siblings. Once ctx is done no further unit is
// started; those left are reported cancelled.
func (o *Orchestrator) Run(ctx context.Context, runID string, plan Plan) Report {
	report := Report{RunID: runID, StartedAt: time.Now().UTC()}
	units := plan.units()
	results := make([]UnitResult, len(units))

	byProvider := map[models.Provider][]int{}
	for i, u := range units {
		byProvider[u.provider] = append(byProvider[u.provider], i)
	}

	logger := o.logger.With(slog.String("run_id", runID))
	logger.Info("run started", slog.Int("units", len(units)))
	o.metrics.RunStarted()
	defer o.metrics.RunFinished()

	var pipelines errgroup.Group
	for _, idxs := range byProvider {
		pipelines.Go(func() error {
			o.runPipeline(ctx, logger, units, idxs, results)
			return nil
		})
	}
	_ = pipelines.Wait()

	report.Units = results
	report.FinishedAt = time.Now().UTC()

	s := report.Summary()
	logger.Info("run finished",
		slog.Int("succeeded", s.Succeeded),
		slog.Int("failed", s.Failed),
		slog.Int("cancelled", s.Cancelled),
		slog.Int64("inserted", s.Inserted),
		slog.Any("unmapped_regions", report.Unmapped()),
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report
}

// runPipeline runs the given units on a bounded pool. Each unit writes only
// its own results slot.
func (o *Orchestrator) runPipeline(ctx context.Context, logger *slog.Logger, units []unit, idxs []int, results []UnitResult) {
	var g errgroup.Group
	g.SetLimit(o.workers)

	for _, i := range idxs {
		if ctx.Err() != nil {
			results[i] = cancelledResult(units[i], ctx.Err())
			continue
		}
		g.Go(func() error {
			results[i] = o.runUnit(ctx, logger, units[i])
			return nil
		})
	}
	_ = g.Wait()
}

func cancelledResult(u unit, err error) UnitResult {
	r := newResult(u)
	r.fail(ErrCancelled, err)
	return r
}

func newResult(u unit) UnitResult {
	return UnitResult{Provider: u.provider, Kind: u.kind, Year: u.year, Product: u.product}
}

func (o *Orchestrator) runUnit(ctx context.Context, logger *slog.Logger, u unit) (res UnitResult) {
	start := time.Now()
	res = newResult(u)

	logger = logger.With(slog.String("provider", string(u.provider)), slog.String("kind", string(u.kind)))
	if u.product != "" {
		logger = logger.With(slog.String("product", u.product))
	} else {
		logger = logger.With(slog.Int("year", u.year))
	}

	defer func() {
		res.Duration = time.Since(start)
		o.metrics.ObserveUnit(string(u.provider), string(u.kind), string(res.Outcome), res.Duration)
		o.metrics.AddDropped(string(u.kind), res.Dropped)
		o.metrics.AddInserted(string(u.kind), res.Inserted)

		if res.Outcome == OutcomeSuccess {
			logger.Info("unit finished",
				slog.Int("raw", res.RawRows),
				slog.Int("normalized", res.Normalized),
				slog.Int64("inserted", res.Inserted),
				slog.Duration("elapsed", res.Duration))
		} else {
			logger.Warn("unit did not complete",
				slog.String("outcome", string(res.Outcome)),
				slog.String("error_kind", string(res.ErrorKind)),
				slog.Int("http_status", res.Status),
				slog.String("error", res.Error))
		}
	}()

	// A panic in a source or decoder fails this unit only.
	defer func() {
		if p := recover(); p != nil {
			res.fail(ErrInternal, fmt.Errorf("panic: %v", p))
		}
	}()

	if err := ctx.Err(); err != nil {
		res.fail(ErrCancelled, err)
		return res
	}

	table, err := o.fetch(ctx, u)
	if err != nil {
		if ctx.Err() != nil {
			res.fail(ErrCancelled, err)
		} else {
			res.fail(ErrFetch, err)
			res.Status = fetch.StatusOf(err)
		}
		return res
	}
	res.RawRows = table.Len()
	if table.Len() == 0 {
		res.fail(ErrEmpty, nil)
		return res
	}

	batch, err := ingest.Normalize(table, u.kind)
	if err != nil {
		res.fail(ErrNormalize, err)
		return res
	}
	res.Normalized = len(batch.Records)
	res.Dropped = batch.Dropped
	res.Unmapped = batch.Unmapped
	if len(batch.Unmapped) > 0 {
		logger.Warn("unmapped region labels excluded", slog.Any("labels", batch.Unmapped))
	}
	if len(batch.Records) == 0 {
		res.fail(ErrEmpty, nil)
		return res
	}

	n, err := o.writer.Write(ctx, u.kind, batch.Records)
	if err != nil {
		res.fail(ErrPersist, err)
		return res
	}
	res.Inserted = n
	res.Outcome = OutcomeSuccess
	return res
}

func (o *Orchestrator) fetch(ctx context.Context, u unit) (*ingest.Table, error) {
	if u.provider == models.ProviderCCEE {
		return o.products.DownloadProduct(ctx, u.product)
	}
	return o.sheets.FetchYear(ctx, u.kind, u.year)
}
