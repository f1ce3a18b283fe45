// Package load writes structured job records into the six-table schema, one
// transaction per record.
package load

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"jobs-etl/internal/database"
	"jobs-etl/internal/domain/job"
	"jobs-etl/internal/errs"
	"jobs-etl/internal/pkg/logging"
	"jobs-etl/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "jobs-etl/load"

// Records is the sequence the loader consumes; transform.Records satisfies it.
type Records = iter.Seq2[job.Record, error]

// LoadFailure is one record that could not be written. Index is the record's
// 1-based source row.
type LoadFailure struct {
	Index int   `json:"index"`
	Err   error `json:"-"`
}

func (f LoadFailure) Error() string {
	return fmt.Sprintf("record %d: %v", f.Index, f.Err)
}

func (f LoadFailure) Unwrap() error {
	return f.Err
}

type Report struct {
	Loaded   int           `json:"loaded"`
	Failures []LoadFailure `json:"failures"`
	// JobIDs holds the generated job id of every loaded record, in source order.
	JobIDs []int64 `json:"job_ids"`
}

// FailedIndices returns the source row index of every failed record.
func (r Report) FailedIndices() []int {
	out := make([]int, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Index)
	}
	return out
}

type Loader struct {
	logger *logging.Logger
	tracer trace.Tracer
}

func NewLoader(logger *logging.Logger) *Loader {
	return &Loader{logger: logger, tracer: telemetry.GetTracer(tracerName)}
}

// Load writes every record in source order. A record that fails is rolled
// back and reported in Report.Failures; the remaining records are still
// loaded. An error from the sequence itself aborts the load and is returned
// together with what was loaded so far.
func (l *Loader) Load(ctx context.Context, records Records, db database.DB) (Report, error) {
	var rep Report
	if db == nil {
		return rep, fmt.Errorf("load: nil store handle")
	}

	for rec, err := range records {
		if err != nil {
			return rep, err
		}

		id, err := l.loadRecord(ctx, db, rec)
		if err != nil {
			f := LoadFailure{Index: rec.Index, Err: errs.LoadFailure(fmt.Sprintf("record %d", rec.Index), err)}
			rep.Failures = append(rep.Failures, f)
			l.logger.Warn("record not loaded",
				"pipeline", "etl",
				"step", "load",
				"index", rec.Index,
				"error", err,
			)
			continue
		}
		rep.Loaded++
		rep.JobIDs = append(rep.JobIDs, id)
	}

	l.logger.Info("load finished",
		"pipeline", "etl",
		"step", "load",
		"loaded", rep.Loaded,
		"failed", len(rep.Failures),
	)
	return rep, nil
}

func (l *Loader) loadRecord(ctx context.Context, db database.DB, rec job.Record) (_ int64, err error) {
	ctx, span := l.tracer.Start(ctx, "load.record",
		trace.WithAttributes(attribute.Int("etl.record.index", rec.Index)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Values are converted before the transaction opens.
	rows, err := buildRows(rec)
	if err != nil {
		return 0, err
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var jobID int64
	if err := tx.QueryRow(ctx, rows.job.query(true), rows.job.args...).Scan(&jobID); err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}

	for _, child := range rows.children {
		args := append([]any{jobID}, child.args...)
		if _, err := tx.Exec(ctx, child.query(false), args...); err != nil {
			return 0, fmt.Errorf("insert %s: %w", child.table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	span.SetAttributes(attribute.Int64("etl.job.id", jobID))
	return jobID, nil
}

func (f LoadFailure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Index int    `json:"index"`
		Error string `json:"error"`
	}{f.Index, msg})
}

func (f *LoadFailure) UnmarshalJSON(b []byte) error {
	var raw struct {
		Index int    `json:"index"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	f.Index = raw.Index
	f.Err = nil
	if raw.Error != "" {
		f.Err = errors.New(raw.Error)
	}
	return nil
}
