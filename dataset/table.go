package dataset

import (
	"strings"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// Record is one raw row keyed by column name.
type Record map[string]string

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered set of columns plus rows in input order.
type Table struct {
	Columns []string
	Rows    []Record
}

// NewTable creates a table. rows are stored as given.
func NewTable(columns []string, rows []Record) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols, Rows: rows}
}

// FromRecords builds a table from records, taking the column order from
// columns. It is the usual way to wrap a single record for prediction.
func FromRecords(columns []string, records ...Record) *Table {
	return NewTable(columns, records)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Has reports whether the table declares column name.
func (t *Table) Has(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Missing returns the entries of names that the table does not declare,
// preserving their order.
func (t *Table) Missing(names []string) []string {
	have := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		have[c] = struct{}{}
	}
	var missing []string
	for _, n := range names {
		if _, ok := have[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// Column returns the values of one column in row order.
func (t *Table) Column(name string) ([]string, error) {
	if !t.Has(name) {
		return nil, errors.NewSchemaError("Table.Column", name)
	}
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[name]
	}
	return out, nil
}

// Select returns a table restricted to columns, in the given order.
func (t *Table) Select(columns ...string) (*Table, error) {
	if missing := t.Missing(columns); len(missing) > 0 {
		return nil, errors.NewSchemaError("Table.Select", missing...)
	}
	rows := make([]Record, len(t.Rows))
	for i, r := range t.Rows {
		nr := make(Record, len(columns))
		for _, c := range columns {
			nr[c] = r[c]
		}
		rows[i] = nr
	}
	return NewTable(columns, rows), nil
}

// Drop returns a table without the named columns. Unknown names are ignored.
func (t *Table) Drop(columns ...string) *Table {
	drop := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		drop[c] = struct{}{}
	}
	var keep []string
	for _, c := range t.Columns {
		if _, ok := drop[c]; !ok {
			keep = append(keep, c)
		}
	}
	out, _ := t.Select(keep...)
	return out
}

// Subset returns the rows at the given indices, in that order.
func (t *Table) Subset(indices []int) *Table {
	rows := make([]Record, len(indices))
	for i, idx := range indices {
		rows[i] = t.Rows[idx]
	}
	return NewTable(t.Columns, rows)
}

// Append adds a row. Columns of r that the table does not declare are kept
// in the record but not added to Columns.
func (t *Table) Append(r Record) {
	t.Rows = append(t.Rows, r)
}

// ParseAssignments turns ["col=value", ...] into a Record. Values may
// contain '='; only the first one separates key from value.
func ParseAssignments(pairs []string) (Record, error) {
	r := make(Record, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.NewValidationError("set", "expected column=value", p)
		}
		r[k] = v
	}
	return r, nil
}
