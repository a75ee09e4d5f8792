package dataset

import (
	"io"
	"os"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// DefaultChunkSize is the row count handed to ScanCSV callbacks when the
// caller passes a non-positive chunk size.
const DefaultChunkSize = 4096

// ScanCSV reads a header row and hands the records to fn in tables of at
// most chunkSize rows. offset is the index of the chunk's first row in the
// whole file. The chunk table is not reused after fn returns. The first
// error from fn stops the scan.
func ScanCSV(r io.Reader, chunkSize int, fn func(chunk *Table, offset int) error) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	reader, header, err := openCSV(r)
	if err != nil {
		return err
	}

	offset := 0
	buffer := make([]Record, 0, chunkSize)
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "failed to read CSV row %d", offset+len(buffer)+1)
		}
		rec := make(Record, len(header))
		for i, h := range header {
			rec[h] = fields[i]
		}
		buffer = append(buffer, rec)

		if len(buffer) >= chunkSize {
			if err := fn(NewTable(header, buffer), offset); err != nil {
				return err
			}
			offset += len(buffer)
			buffer = make([]Record, 0, chunkSize)
		}
	}
	if len(buffer) > 0 {
		return fn(NewTable(header, buffer), offset)
	}
	return nil
}

// ScanCSVFile opens path and scans it with ScanCSV.
func ScanCSVFile(path string, chunkSize int, fn func(chunk *Table, offset int) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	return ScanCSV(f, chunkSize, fn)
}
