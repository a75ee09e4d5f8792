package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// openCSV reads and trims the header row.
func openCSV(r io.Reader) (*csv.Reader, []string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, errors.Wrap(errors.ErrEmptyData, "csv has no header")
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read CSV header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return reader, header, nil
}

// ReadCSV reads a header row followed by records. Header names are trimmed.
// Rows with a different field count are rejected by encoding/csv.
func ReadCSV(r io.Reader) (*Table, error) {
	reader, header, err := openCSV(r)
	if err != nil {
		return nil, err
	}

	var rows []Record
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read CSV row %d", len(rows)+1)
		}
		rec := make(Record, len(header))
		for i, h := range header {
			rec[h] = fields[i]
		}
		rows = append(rows, rec)
	}
	return NewTable(header, rows), nil
}

// LoadCSV opens path and reads it with ReadCSV.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteCSV writes t with a header row in column order.
func WriteCSV(w io.Writer, t *Table) error {
	cw, err := NewCSVWriter(w, t.Columns)
	if err != nil {
		return err
	}
	if err := cw.Write(t); err != nil {
		return err
	}
	return cw.Flush()
}

// CSVWriter appends tables to one CSV stream under a fixed header. Each
// Write is flushed, so rows reach w as soon as they are written.
type CSVWriter struct {
	w       *csv.Writer
	columns []string
	fields  []string
	rows    int
}

// NewCSVWriter writes the header row and returns a writer for columns.
func NewCSVWriter(w io.Writer, columns []string) (*CSVWriter, error) {
	cw := &CSVWriter{
		w:       csv.NewWriter(w),
		columns: append([]string(nil), columns...),
		fields:  make([]string, len(columns)),
	}
	if err := cw.w.Write(cw.columns); err != nil {
		return nil, errors.Wrap(err, "failed to write CSV header")
	}
	return cw, nil
}

// Write appends the rows of t; columns missing from a row are left empty.
func (cw *CSVWriter) Write(t *Table) error {
	for _, r := range t.Rows {
		for i, c := range cw.columns {
			cw.fields[i] = r[c]
		}
		if err := cw.w.Write(cw.fields); err != nil {
			return errors.Wrap(err, "failed to write CSV row")
		}
		cw.rows++
	}
	return cw.Flush()
}

// Flush pushes buffered rows to the underlying writer.
func (cw *CSVWriter) Flush() error {
	cw.w.Flush()
	return errors.Wrap(cw.w.Error(), "failed to flush CSV")
}

// Rows returns the number of data rows written so far.
func (cw *CSVWriter) Rows() int { return cw.rows }
