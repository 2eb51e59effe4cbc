// Package csv reads sample matrices from CSV files.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Reader reads numeric sample matrices from CSV files.
type Reader struct {
	file      *os.File
	reader    *csv.Reader
	hasHeader bool
	strict    bool
	columns   []int // selected column indices; nil means all
	headers   []string
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates whether the CSV has a header row.
func WithHeader(has bool) Option {
	return func(r *Reader) { r.hasHeader = has }
}

// WithStrict makes malformed rows an error instead of being skipped.
func WithStrict(strict bool) Option {
	return func(r *Reader) { r.strict = strict }
}

// WithColumns restricts reading to the given column indices, in order.
func WithColumns(columns []int) Option {
	return func(r *Reader) { r.columns = columns }
}

// NewReader opens filename for reading.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		file:      file,
		reader:    csv.NewReader(file),
		hasHeader: true,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.hasHeader {
		headers, err := r.reader.Read()
		if err != nil {
			file.Close()
			return nil, err
		}
		r.headers = headers
	}
	return r, nil
}

// Headers returns the column headers, if any.
func (r *Reader) Headers() []string { return r.headers }

// Read returns all remaining rows as a sample matrix.
func (r *Reader) Read() ([][]float64, error) {
	var data [][]float64
	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		row, err := r.parseRow(record)
		if err != nil {
			if r.strict {
				return nil, err
			}
			continue
		}
		data = append(data, row)
	}
	return data, nil
}

// Stream returns a channel of rows for incremental scoring. Malformed rows
// terminate the stream in strict mode and are skipped otherwise.
func (r *Reader) Stream(ctx context.Context) (<-chan []float64, error) {
	out := make(chan []float64, 100)

	go func() {
		defer close(out)
		for {
			record, err := r.reader.Read()
			if err != nil {
				return
			}
			row, err := r.parseRow(record)
			if err != nil {
				if r.strict {
					return
				}
				continue
			}
			select {
			case out <- row:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// parseRow converts a CSV record to a feature vector, honoring the column
// selection.
func (r *Reader) parseRow(record []string) ([]float64, error) {
	if len(record) == 0 {
		return nil, fmt.Errorf("empty row")
	}

	fields := record
	if r.columns != nil {
		fields = make([]string, len(r.columns))
		for i, c := range r.columns {
			if c < 0 || c >= len(record) {
				return nil, fmt.Errorf("column %d out of range for row of width %d", c, len(record))
			}
			fields[i] = record[c]
		}
	}

	row := make([]float64, len(fields))
	for i, val := range fields {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("parse field %d: %w", i, err)
		}
		row[i] = f
	}
	return row, nil
}
