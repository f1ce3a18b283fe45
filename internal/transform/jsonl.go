package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"jobs-etl/internal/domain/job"
	"jobs-etl/internal/errs"
)

// RecordsFile is the name of the structured-record artifact in the staging dir.
const RecordsFile = "transformed.jsonl"

// WriteJSONL drains records into path, one JSON object per line. Null buckets
// and null fields are written as explicit nulls. The file appears only once
// every record has been written.
func WriteJSONL(records Records, path string) (int, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create staging dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create records file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)

	n := 0
	for rec, err := range records {
		if err != nil {
			return n, err
		}
		if err := enc.Encode(rec); err != nil {
			return n, fmt.Errorf("encode record %d: %w", rec.Index, err)
		}
		n++
	}

	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close records file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, fmt.Errorf("publish records file: %w", err)
	}
	return n, nil
}

// ReadJSONL returns a restartable sequence over a file written by WriteJSONL.
// Fields outside the record shape are reported as UnknownColumn.
func ReadJSONL(path string) (Records, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.SourceNotFound("records file "+path, err)
		}
		return nil, fmt.Errorf("stat records file: %w", err)
	}

	return func(yield func(job.Record, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(job.Record{}, fmt.Errorf("open records file: %w", err))
			return
		}
		defer f.Close()

		dec := json.NewDecoder(f)
		dec.DisallowUnknownFields()

		for line := 1; ; line++ {
			var rec job.Record
			err := dec.Decode(&rec)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if strings.Contains(err.Error(), "unknown field") {
					yield(job.Record{}, errs.UnknownColumn(fmt.Sprintf("records file object %d", line), err))
					return
				}
				yield(job.Record{}, errs.MalformedSource(fmt.Sprintf("records file object %d", line), err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}, nil
}
