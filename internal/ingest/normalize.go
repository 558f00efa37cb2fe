package ingest

import (
	"fmt"
	"sort"

	"github.com/mauv0809/energy-feeds/internal/models"
)

// Drop reasons reported in models.Batch.Dropped.
const (
	DropRegion    = "region"
	DropTimestamp = "timestamp"
	DropValue     = "value"
	DropNotHourly = "not_hourly"
)

// Normalize applies the kind's mapping to a raw table. Rows with an unknown
// region, an unresolvable timestamp or any missing value are dropped whole.
// An error is returned only when the table lacks a required column.
func Normalize(t *Table, kind models.Kind) (models.Batch, error) {
	m, err := MappingFor(kind)
	if err != nil {
		return models.Batch{}, err
	}

	batch := models.Batch{Kind: kind, Dropped: map[string]int{}}
	if t.Len() == 0 {
		return batch, nil
	}

	idx := buildColumnIndex(t.Columns)
	regionCol, ok := idx.lookup(m.Region)
	if !ok {
		return batch, fmt.Errorf("normalize %s: missing region column %v", kind, m.Region)
	}
	for _, c := range m.TimeColumns {
		if _, ok := idx[c]; !ok {
			return batch, fmt.Errorf("normalize %s: missing timestamp column %q", kind, c)
		}
	}
	valueCols := make([]int, len(m.Values))
	for i, names := range m.Values {
		c, ok := idx.lookup(names)
		if !ok {
			return batch, fmt.Errorf("normalize %s: missing value column %v", kind, names)
		}
		valueCols[i] = c
	}

	unmapped := map[string]struct{}{}
	batch.Raw = len(t.Rows)
	batch.Records = make([]models.Record, 0, len(t.Rows))

	for _, row := range t.Rows {
		label := getString(cell(row, regionCol))
		region, ok := Canonicalize(label, m.Provider)
		if !ok {
			if label != "" {
				unmapped[label] = struct{}{}
			}
			batch.Dropped[DropRegion]++
			continue
		}

		ts, ok := m.Timestamp(row, idx)
		if !ok {
			batch.Dropped[DropTimestamp]++
			continue
		}
		if m.HourlyOnly && ts.Minute() != 0 {
			batch.Dropped[DropNotHourly]++
			continue
		}

		values, ok := readValues(row, valueCols)
		if !ok {
			batch.Dropped[DropValue]++
			continue
		}

		batch.Records = append(batch.Records, models.Record{
			Region:    region,
			Timestamp: ts,
			Values:    values,
		})
	}

	for label := range unmapped {
		batch.Unmapped = append(batch.Unmapped, label)
	}
	sort.Strings(batch.Unmapped)

	return batch, nil
}

func readValues(row []any, cols []int) ([]float64, bool) {
	values := make([]float64, len(cols))
	for i, c := range cols {
		v, ok := ParseNumber(cell(row, c))
		if !ok {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}
