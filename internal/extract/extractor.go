// Package extract turns the delimited source file into the tab-delimited
// intermediate file the transformer reads.
package extract

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"jobs-etl/internal/errs"
	"jobs-etl/internal/pkg/logging"
)

// IntermediateFile is the name of the artifact written into the staging dir.
const IntermediateFile = "extracted.tsv"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type Options struct {
	StagingDir string
	// Delimiter of the source file. Zero means ','.
	Delimiter rune
}

type Result struct {
	Path    string
	Columns []string
	Rows    int
}

type Extractor struct {
	opts   Options
	logger *logging.Logger
}

func NewExtractor(opts Options, logger *logging.Logger) *Extractor {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if strings.TrimSpace(opts.StagingDir) == "" {
		opts.StagingDir = "staging"
	}
	return &Extractor{opts: opts, logger: logger}
}

// Extract reads sourcePath and writes its rows, unchanged and in order, to a
// tab-delimited file in the staging dir. It returns the intermediate path.
func (e *Extractor) Extract(ctx context.Context, sourcePath string) (string, error) {
	res, err := e.Run(ctx, sourcePath)
	if err != nil {
		return "", err
	}
	return res.Path, nil
}

// Run is Extract with the row count and header reported back.
func (e *Extractor) Run(_ context.Context, sourcePath string) (Result, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, errs.SourceNotFound("source file "+sourcePath, err)
		}
		return Result{}, fmt.Errorf("open source %s: %w", sourcePath, err)
	}
	defer f.Close()

	src := bufio.NewReader(f)
	if lead, err := src.Peek(len(utf8BOM)); err == nil && bytes.Equal(lead, utf8BOM) {
		_, _ = src.Discard(len(utf8BOM))
	}

	r := csv.NewReader(src)
	r.Comma = e.opts.Delimiter
	// Width is fixed by the header; any deviating row fails the batch.
	r.FieldsPerRecord = 0
	// Free text carries bare quotes (27" monitor); they are kept as-is.
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Result{}, errs.MalformedSource("missing header row", nil)
		}
		return Result{}, errs.MalformedSource("read header row", err)
	}
	if err := validUTF8(header, 1); err != nil {
		return Result{}, err
	}
	if err := validateHeader(header); err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(e.opts.StagingDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create staging dir: %w", err)
	}
	tmp, err := os.CreateTemp(e.opts.StagingDir, IntermediateFile+".*.tmp")
	if err != nil {
		return Result{}, fmt.Errorf("create intermediate file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	w := csv.NewWriter(tmp)
	w.Comma = '\t'
	if err := w.Write(header); err != nil {
		return Result{}, fmt.Errorf("write intermediate header: %w", err)
	}

	rows := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return Result{}, errs.MalformedSource(fmt.Sprintf("line %d", pe.Line), err)
			}
			return Result{}, errs.MalformedSource("read source row", err)
		}
		line, _ := r.FieldPos(0)
		if err := validUTF8(rec, line); err != nil {
			return Result{}, err
		}
		if err := w.Write(rec); err != nil {
			return Result{}, fmt.Errorf("write intermediate row: %w", err)
		}
		rows++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return Result{}, fmt.Errorf("flush intermediate file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("close intermediate file: %w", err)
	}

	out := filepath.Join(e.opts.StagingDir, IntermediateFile)
	if err := os.Rename(tmp.Name(), out); err != nil {
		return Result{}, fmt.Errorf("publish intermediate file: %w", err)
	}

	e.logger.Info("extract finished",
		"source", sourcePath,
		"intermediate", out,
		"columns", len(header),
		"rows", rows,
	)

	return Result{Path: out, Columns: header, Rows: rows}, nil
}

// validUTF8 checks one source record; line is its 1-based line in the file.
func validUTF8(rec []string, line int) error {
	for _, cell := range rec {
		if !utf8.ValidString(cell) {
			return errs.MalformedSource(fmt.Sprintf("line %d: source is not valid UTF-8", line), nil)
		}
	}
	return nil
}

func validateHeader(header []string) error {
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			return errs.MalformedSource(fmt.Sprintf("empty header name at column %d", i+1), nil)
		}
		if _, dup := seen[name]; dup {
			return errs.MalformedSource("duplicate header name "+name, nil)
		}
		seen[name] = struct{}{}
	}
	return nil
}
