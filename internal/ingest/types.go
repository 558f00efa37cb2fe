package ingest

import "sort"

// Table is a raw, column-oriented result set as delivered by a provider.
// Rows may be shorter than Columns when later records introduced new columns;
// missing cells read as nil.
type Table struct {
	Columns []string
	Rows    [][]any
}

// NewTable creates an empty table with the given header.
func NewTable(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// AppendRecords adds JSON-style records, extending the header with any
// unseen keys. Arrival order is preserved.
func (t *Table) AppendRecords(records []map[string]any) {
	idx := buildColumnIndex(t.Columns)
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			if _, ok := idx[k]; !ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			idx[k] = len(t.Columns)
			t.Columns = append(t.Columns, k)
		}

		row := make([]any, len(t.Columns))
		for k, v := range rec {
			row[idx[k]] = v
		}
		t.Rows = append(t.Rows, row)
	}
}

// Concat appends the rows of o, remapping its columns onto t's header.
func (t *Table) Concat(o *Table) {
	if o.Len() == 0 {
		return
	}
	idx := buildColumnIndex(t.Columns)
	for _, c := range o.Columns {
		if _, ok := idx[c]; !ok {
			idx[c] = len(t.Columns)
			t.Columns = append(t.Columns, c)
		}
	}
	for _, src := range o.Rows {
		row := make([]any, len(t.Columns))
		for i, v := range src {
			if i < len(o.Columns) {
				row[idx[o.Columns[i]]] = v
			}
		}
		t.Rows = append(t.Rows, row)
	}
}
