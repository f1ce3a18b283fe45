//go:build integration

package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"jobs-etl/internal/database"
	"jobs-etl/internal/database/postgres"
	"jobs-etl/internal/database/schema"
	"jobs-etl/internal/domain/job"
	"jobs-etl/internal/errs"
	"jobs-etl/internal/load"
	"jobs-etl/internal/pipeline"
	"jobs-etl/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
)

func fullRecord(index int) job.Record {
	return job.Record{
		Index: index,
		Job: job.Job{
			Title:          sp("Backend Engineer"),
			Industry:       sp("IT"),
			Description:    sp(`Go, Postgres and a 27" monitor`),
			EmploymentType: sp("FULL_TIME"),
			DatePosted:     sp("2024-01-02"),
		},
		Company:    &job.Company{Name: sp("Acme"), Link: sp("https://acme.test")},
		Education:  &job.Education{RequiredCredential: sp("Bachelor")},
		Experience: &job.Experience{MonthsOfExperience: sp("24"), SeniorityLevel: sp("Mid")},
		Salary:     &job.Salary{Currency: sp("USD"), MinValue: sp("1000.50"), MaxValue: sp("2000"), Unit: sp("YEAR")},
		Location: &job.Location{
			Country:       sp("US"),
			Locality:      sp("New York"),
			Region:        sp("NY"),
			PostalCode:    sp("10001"),
			StreetAddress: sp("1 Main St"),
			Latitude:      sp("40.712800"),
			Longitude:     sp("-74.006000"),
		},
	}
}

func seq(recs ...job.Record) load.Records {
	return func(yield func(job.Record, error) bool) {
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

type columnInfo struct {
	Table, Column, DataType string
	MaxLength               *int32
	Nullable                string
}

func schemaColumns(t *testing.T, ctx context.Context, db database.DB) []columnInfo {
	t.Helper()
	rows, err := db.Query(ctx, `
		SELECT table_name::text, column_name::text, data_type::text,
		       character_maximum_length::int4, is_nullable::text
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		t.Fatalf("query columns: %v", err)
	}
	defer rows.Close()

	var out []columnInfo
	for rows.Next() {
		var c columnInfo
		if err := rows.Scan(&c.Table, &c.Column, &c.DataType, &c.MaxLength, &c.Nullable); err != nil {
			t.Fatalf("scan column: %v", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate columns: %v", err)
	}
	return out
}

func countRows(t *testing.T, ctx context.Context, db database.DB) map[string]int64 {
	t.Helper()
	counts, err := repository.NewPostgresJobRepository(db).CountRows(ctx)
	if err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return counts
}

func TestEnsureSchema_TwiceLeavesSchemaUnchanged(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, db := freshDatabase(t, ctx)
	mgr := schema.NewManager(db, nil)

	if err := mgr.EnsureSchema(ctx); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	first := schemaColumns(t, ctx, db)
	if len(first) == 0 {
		t.Fatalf("expected columns after ensure")
	}

	if err := mgr.EnsureSchema(ctx); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if second := schemaColumns(t, ctx, db); !reflect.DeepEqual(first, second) {
		t.Fatalf("schema changed on second ensure:\nfirst:  %+v\nsecond: %+v", first, second)
	}

	for _, table := range []string{"job", "company", "education", "experience", "salary", "location"} {
		if n := countRows(t, ctx, db)[table]; n != 0 {
			t.Fatalf("expected empty %s, got %d rows", table, n)
		}
	}

	var fks int
	if err := db.QueryRow(ctx, `
		SELECT count(*)::int4 FROM information_schema.table_constraints
		WHERE table_schema = current_schema() AND constraint_type = 'FOREIGN KEY'`).Scan(&fks); err != nil {
		t.Fatalf("count foreign keys: %v", err)
	}
	if fks != len(schema.ChildTables()) {
		t.Fatalf("expected %d foreign keys, got %d", len(schema.ChildTables()), fks)
	}
}

func TestEnsureSchema_ConcurrentCallers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, db := freshDatabase(t, ctx)

	var wg sync.WaitGroup
	errCh := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- schema.NewManager(db, nil).EnsureSchema(ctx)
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent ensure: %v", err)
		}
	}
}

func TestLoad_RoundTripThroughRepository(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, db := freshDatabase(t, ctx)
	if err := schema.NewManager(db, nil).EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	sparse := job.Record{Index: 2, Job: job.Job{Title: sp("Only a title")}}
	rep, err := load.NewLoader(nil).Load(ctx, seq(fullRecord(1), sparse), db)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rep.Loaded != 2 || len(rep.Failures) != 0 || len(rep.JobIDs) != 2 {
		t.Fatalf("unexpected report %+v", rep)
	}

	repo := repository.NewPostgresJobRepository(db)
	for i, want := range []job.Record{fullRecord(1), sparse} {
		got, err := repo.GetRecord(ctx, rep.JobIDs[i])
		if err != nil {
			t.Fatalf("get record %d: %v", rep.JobIDs[i], err)
		}
		want.Index = got.Index
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("round trip mismatch for job %d:\n got: %+v\nwant: %+v", rep.JobIDs[i], got, want)
		}
	}

	counts := countRows(t, ctx, db)
	if counts["job"] != 2 || counts["company"] != 1 || counts["salary"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestLoad_OneBadRecordAmongMany(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, db := freshDatabase(t, ctx)
	if err := schema.NewManager(db, nil).EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	recs := make([]job.Record, 0, 5)
	for i := 1; i <= 5; i++ {
		r := fullRecord(i)
		if i == 3 {
			r.Experience.MonthsOfExperience = sp("three")
		}
		recs = append(recs, r)
	}

	rep, err := load.NewLoader(nil).Load(ctx, seq(recs...), db)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rep.Loaded != 4 {
		t.Fatalf("expected 4 loaded, got %d", rep.Loaded)
	}
	if !reflect.DeepEqual(rep.FailedIndices(), []int{3}) {
		t.Fatalf("expected failure at 3, got %v", rep.FailedIndices())
	}
	if !errs.Is(rep.Failures[0].Err, errs.TypeLoadFailure) {
		t.Fatalf("expected load failure, got %v", rep.Failures[0].Err)
	}
	for table, n := range countRows(t, ctx, db) {
		if n != 4 {
			t.Fatalf("expected 4 rows in %s, got %d", table, n)
		}
	}
}

func TestLoad_StoreRejectionRollsBackRecord(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, db := freshDatabase(t, ctx)
	if err := schema.NewManager(db, nil).EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	bad := fullRecord(2)
	bad.Salary.Currency = sp("USDX")
	rep, err := load.NewLoader(nil).Load(ctx, seq(fullRecord(1), bad, fullRecord(3)), db)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rep.Loaded != 2 || !reflect.DeepEqual(rep.FailedIndices(), []int{2}) {
		t.Fatalf("unexpected report %+v", rep)
	}

	var pgErr *pgconn.PgError
	if !errors.As(rep.Failures[0].Err, &pgErr) || pgErr.Code != "22001" {
		t.Fatalf("expected string_data_right_truncation, got %v", rep.Failures[0].Err)
	}

	counts := countRows(t, ctx, db)
	if counts["job"] != 2 || counts["company"] != 2 || counts["salary"] != 2 {
		t.Fatalf("rejected record left rows behind: %v", counts)
	}
}

func TestSchema_ForeignKeysEnforced(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, db := freshDatabase(t, ctx)
	if err := schema.NewManager(db, nil).EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	for _, table := range schema.ChildTables() {
		_, err := db.Exec(ctx, `INSERT INTO `+table+` (job_id) VALUES ($1)`, int64(987654))
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != "23503" {
			t.Fatalf("%s: expected foreign_key_violation, got %v", table, err)
		}
	}
}

func TestPipeline_RunAgainstPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	cfg, db := freshDatabase(t, ctx)

	dir := t.TempDir()
	src := filepath.Join(dir, "jobs.csv")
	content := "title,description,company_name,months_of_experience,salary_currency,salary_min_value,date_posted,country\n" +
		"Engineer,Needs a 27\" monitor,Acme,24,USD,1000.50,2024-01-02,US\n" +
		"Analyst,,Globex,abc,EUR,900,2024-02-03,DE\n" +
		"Designer,Figma,,,,,2024-03-04T00:00:00Z,\n"
	if err := os.WriteFile(src, []byte(content), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}

	p := pipeline.NewPipeline(pipeline.Options{
		SourcePath: src,
		StagingDir: filepath.Join(dir, "staging"),
	}, postgres.Connector(cfg), nil)

	res, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Extracted != 3 || res.Transformed != 3 || res.Report.Loaded != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !reflect.DeepEqual(res.FailedIndices(), []int{2}) {
		t.Fatalf("expected failure at 2, got %v", res.FailedIndices())
	}

	got, err := repository.NewPostgresJobRepository(db).GetRecord(ctx, res.Report.JobIDs[0])
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if got.Job.Description == nil || *got.Job.Description != `Needs a 27" monitor` {
		t.Fatalf("description not kept verbatim: %v", got.Job.Description)
	}
	if got.Salary == nil || got.Salary.MinValue == nil || *got.Salary.MinValue != "1000.50" {
		t.Fatalf("salary min value not kept: %+v", got.Salary)
	}

	designer, err := repository.NewPostgresJobRepository(db).GetRecord(ctx, res.Report.JobIDs[1])
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if designer.Job.DatePosted == nil || *designer.Job.DatePosted != "2024-03-04" {
		t.Fatalf("expected midnight timestamp stored as date, got %v", designer.Job.DatePosted)
	}
	if designer.Company != nil || designer.Salary != nil {
		t.Fatalf("empty buckets should not produce rows: %+v", designer)
	}
}
