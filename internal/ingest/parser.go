package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// columnIndex maps a column name to its position in a row.
type columnIndex map[string]int

// buildColumnIndex creates a map from column name to array index.
func buildColumnIndex(columns []string) columnIndex {
	idx := make(columnIndex, len(columns))
	for i, col := range columns {
		idx[col] = i
	}
	return idx
}

// lookup returns the position of the first candidate present in the header.
func (idx columnIndex) lookup(candidates []string) (int, bool) {
	for _, c := range candidates {
		if i, ok := idx[c]; ok {
			return i, true
		}
	}
	return 0, false
}

// cell safely extracts a value from row data.
func cell(row []any, i int) any {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

// getString renders a cell as trimmed text.
func getString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// ParseNumber converts a cell to float64. Strings may use a comma as the
// decimal separator ("123,45"). Anything unparseable is reported as missing.
func ParseNumber(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	default:
		s := strings.ReplaceAll(getString(x), ",", ".")
		if s == "" {
			return 0, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0, false
		}
		f = d.InexactFloat64()
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseInt converts an integral cell to int.
func ParseInt(v any) (int, bool) {
	f, ok := ParseNumber(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

// Excel serials between 1900-01-01 and 9999-12-31.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

// ParseTimestamp reads a date or date-time cell. Text in the usual ISO and
// dd/mm/yyyy layouts is accepted, as are raw Excel date serials. Both feeds
// publish local wall-clock hours, so an explicit offset is dropped and the
// wall clock is kept, labelled UTC like every other row.
func ParseTimestamp(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return wallClock(t), !t.IsZero()
	}

	s := getString(v)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return wallClock(t), true
		}
	}

	serial, err := strconv.ParseFloat(s, 64)
	if err != nil || serial < minExcelSerial || serial > maxExcelSerial {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, false
	}
	return t.Round(time.Second).UTC(), true
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// SettlementDayHour splits a 1-based hour-of-month settlement period.
func SettlementDayHour(period int) (day, hour int) {
	return (period-1)/24 + 1, (period-1)%24
}

// SettlementTime rebuilds the timestamp of a settlement period within the
// month given as "YYYYMM".
func SettlementTime(yearMonth string, period int) (time.Time, error) {
	if period < 1 {
		return time.Time{}, fmt.Errorf("settlement period %d out of range", period)
	}
	day, hour := SettlementDayHour(period)
	date, err := time.Parse("20060102", fmt.Sprintf("%s%02d", strings.TrimSpace(yearMonth), day))
	if err != nil {
		return time.Time{}, fmt.Errorf("settlement date for %q period %d: %w", yearMonth, period, err)
	}
	return date.Add(time.Duration(hour) * time.Hour), nil
}
