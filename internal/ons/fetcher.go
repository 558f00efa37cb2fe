// Package ons downloads the yearly subsystem workbooks published on the ONS
// open-data bucket.
package ons

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mauv0809/energy-feeds/internal/fetch"
	"github.com/mauv0809/energy-feeds/internal/ingest"
	"github.com/mauv0809/energy-feeds/internal/models"
)

// DefaultBaseURL is the dataset root of the public bucket.
const DefaultBaseURL = "https://ons-aws-prod-opendata.s3.amazonaws.com/dataset"

// FirstYear is the earliest year published for every workbook kind.
const FirstYear = 2010

// Path templates relative to the base URL; %d is the year.
var templates = map[models.Kind]string{
	models.StoredEnergy:      "/ear_subsistema_di/EAR_DIARIO_SUBSISTEMA_%d.xlsx",
	models.InflowEnergy:      "/ena_subsistema_di/ENA_DIARIO_SUBSISTEMA_%d.xlsx",
	models.MarginalCost:      "/cmo_tm/CMO_SEMIHORARIO_%d.xlsx",
	models.GenerationBalance: "/balanco_energia_subsistema_ho/BALANCO_ENERGIA_SUBSISTEMA_%d.xlsx",
}

// Fetcher loads one workbook per (kind, year).
type Fetcher struct {
	getter  fetch.Getter
	baseURL string
	logger  *slog.Logger
}

// New creates a fetcher. An empty baseURL selects DefaultBaseURL.
func New(getter fetch.Getter, baseURL string, logger *slog.Logger) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		getter:  getter,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "ons"),
	}
}

// URL returns the workbook address of a kind and year.
func (f *Fetcher) URL(kind models.Kind, year int) (string, error) {
	tmpl, ok := templates[kind]
	if !ok {
		return "", fmt.Errorf("no workbook published for kind %q", kind)
	}
	return f.baseURL + fmt.Sprintf(tmpl, year), nil
}

// FetchYear downloads and decodes a workbook. The first worksheet is read,
// its first row taken as the header. Cells keep their raw stored values so
// dates arrive as Excel serials.
func (f *Fetcher) FetchYear(ctx context.Context, kind models.Kind, year int) (*ingest.Table, error) {
	u, err := f.URL(kind, year)
	if err != nil {
		return nil, err
	}

	body, err := f.getter.Get(ctx, u)
	if err != nil {
		return nil, err
	}

	t, err := decodeWorkbook(body)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", u, err)
	}

	f.logger.Info("workbook loaded",
		slog.String("kind", string(kind)),
		slog.Int("year", year),
		slog.Int("rows", t.Len()))
	return t, nil
}

func decodeWorkbook(body []byte) (*ingest.Table, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := wb.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return ingest.NewTable(), nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	t := ingest.NewTable(header...)
	for _, r := range rows[1:] {
		if len(r) == 0 {
			continue
		}
		row := make([]any, len(r))
		for i, v := range r {
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
