package db

import (
	"fmt"
	"strings"

	"github.com/mauv0809/energy-feeds/internal/models"
)

// writeBatchSize bounds the statements queued per round trip.
const writeBatchSize = 1000

// insertStatement builds the conflict-ignoring insert of a destination.
// placeholder renders the n-th (1-based) bind parameter.
func insertStatement(dest models.Destination, placeholder func(n int) string) string {
	cols := append([]string{"region_code", "region_name", "ts"}, dest.Columns...)
	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		params[i] = placeholder(i + 1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (region_code, ts) DO NOTHING",
		quoteIdent(dest.Table), strings.Join(quoted, ", "), strings.Join(params, ", "),
	)
}

func postgresPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

func sqlitePlaceholder(int) string { return "?" }

// quoteIdent double-quotes an identifier; "load" is reserved in some dialects.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// destinationFor resolves a kind and checks the batch shape against it.
func destinationFor(kind models.Kind, records []models.Record) (models.Destination, error) {
	dest, ok := models.DestinationFor(kind)
	if !ok {
		return dest, fmt.Errorf("no destination for kind %q", kind)
	}
	for i, rec := range records {
		if len(rec.Values) != len(dest.Columns) {
			return dest, fmt.Errorf("record %d of %s has %d values, want %d", i, kind, len(rec.Values), len(dest.Columns))
		}
	}
	return dest, nil
}

// TableStats summarizes one destination relation.
type TableStats struct {
	Kind   models.Kind `json:"kind"`
	Table  string      `json:"table"`
	Rows   int64       `json:"rows"`
	Latest string      `json:"latest,omitempty"`
}
