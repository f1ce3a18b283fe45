// Package transform maps the tab-delimited intermediate file onto structured
// job records.
package transform

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"sort"
	"strings"

	"jobs-etl/internal/domain/job"
	"jobs-etl/internal/errs"
	"jobs-etl/internal/pkg/logging"
)

// Records is a finite sequence of records in source order. Ranging over it
// again re-reads the underlying file from the start.
type Records = iter.Seq2[job.Record, error]

type Transformer struct {
	logger *logging.Logger
}

func NewTransformer(logger *logging.Logger) *Transformer {
	return &Transformer{logger: logger}
}

// Transform validates the header of the intermediate file against the column
// mapping and returns a lazy sequence over its rows. Header problems are
// reported here, before any record is produced.
func (t *Transformer) Transform(_ context.Context, intermediatePath string) (Records, error) {
	header, err := readHeader(intermediatePath)
	if err != nil {
		return nil, err
	}
	cols, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	t.logger.Debug("transform header resolved",
		"intermediate", intermediatePath,
		"columns", len(cols),
	)

	return func(yield func(job.Record, error) bool) {
		f, err := os.Open(intermediatePath)
		if err != nil {
			yield(job.Record{}, fmt.Errorf("open intermediate file: %w", err))
			return
		}
		defer f.Close()

		r := newTSVReader(f)
		r.FieldsPerRecord = len(cols)
		if _, err := r.Read(); err != nil {
			yield(job.Record{}, errs.MalformedSource("re-read intermediate header", err))
			return
		}

		index := 0
		for {
			row, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(job.Record{}, errs.MalformedSource(fmt.Sprintf("intermediate row %d", index+1), err))
				return
			}
			index++
			if !yield(buildRecord(index, cols, row), nil) {
				return
			}
		}
	}, nil
}

// Count drains records and returns how many there were.
func Count(records Records) (int, error) {
	n := 0
	for _, err := range records {
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func newTSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	return cr
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.SourceNotFound("intermediate file "+path, err)
		}
		return nil, fmt.Errorf("open intermediate file: %w", err)
	}
	defer f.Close()

	header, err := newTSVReader(f).Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errs.MalformedSource("intermediate file has no header row", nil)
		}
		return nil, errs.MalformedSource("read intermediate header", err)
	}
	return header, nil
}

func resolveColumns(header []string) ([]job.Column, error) {
	cols := make([]job.Column, 0, len(header))
	seen := make(map[string]struct{}, len(header))
	var unknown []string

	for _, h := range header {
		name := strings.TrimSpace(h)
		if _, dup := seen[name]; dup {
			return nil, errs.MalformedSource("duplicate column "+name, nil)
		}
		seen[name] = struct{}{}

		c, ok := job.LookupColumn(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		cols = append(cols, c)
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, errs.UnknownColumn("unmapped columns: "+strings.Join(unknown, ", "), nil)
	}
	return cols, nil
}

func buildRecord(index int, cols []job.Column, row []string) job.Record {
	rec := job.Record{Index: index}
	for i, c := range cols {
		v := row[i]
		if v == "" {
			c.Assign(&rec, nil)
			continue
		}
		c.Assign(&rec, &v)
	}
	rec.Normalize()
	return rec
}
