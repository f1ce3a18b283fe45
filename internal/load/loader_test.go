package load

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"jobs-etl/internal/database/dbtest"
	"jobs-etl/internal/database/schema"
	"jobs-etl/internal/domain/job"
	"jobs-etl/internal/errs"
	"jobs-etl/internal/repository"
)

func sp(s string) *string { return &s }

func newStore(t *testing.T) *dbtest.MemDB {
	t.Helper()
	db := dbtest.New()
	if err := schema.NewManager(db, nil).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return db
}

func fullRecord(index int) job.Record {
	return job.Record{
		Index: index,
		Job: job.Job{
			Title:          sp("Backend Engineer"),
			Industry:       sp("IT"),
			Description:    sp("Go, Postgres"),
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

func seq(recs ...job.Record) Records {
	return func(yield func(job.Record, error) bool) {
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func TestLoad_AllRecordsLoaded(t *testing.T) {
	db := newStore(t)
	rep, err := NewLoader(nil).Load(context.Background(), seq(fullRecord(1), fullRecord(2)), db)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rep.Loaded != 2 || len(rep.Failures) != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if !reflect.DeepEqual(rep.JobIDs, []int64{1, 2}) {
		t.Fatalf("unexpected job ids %v", rep.JobIDs)
	}
	for _, table := range []string{"job", "company", "education", "experience", "salary", "location"} {
		if got := len(db.Rows(table)); got != 2 {
			t.Fatalf("expected 2 rows in %s, got %d", table, got)
		}
	}
	for _, r := range db.Rows("salary") {
		if r["job_id"] == nil {
			t.Fatalf("salary row without job_id")
		}
	}
}

func TestLoad_NonNumericMonthsFailsOnlyThatRecord(t *testing.T) {
	db := newStore(t)

	bad := fullRecord(2)
	bad.Experience.MonthsOfExperience = sp("two years")

	rep, err := NewLoader(nil).Load(context.Background(), seq(fullRecord(1), bad, fullRecord(3)), db)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rep.Loaded != 2 {
		t.Fatalf("expected 2 loaded, got %d", rep.Loaded)
	}
	if !reflect.DeepEqual(rep.FailedIndices(), []int{2}) {
		t.Fatalf("expected failure at index 2, got %v", rep.FailedIndices())
	}
	if !errs.Is(rep.Failures[0].Err, errs.TypeLoadFailure) {
		t.Fatalf("expected LoadFailure, got %v", rep.Failures[0].Err)
	}
	if got := len(db.Rows("job")); got != 2 {
		t.Fatalf("expected 2 job rows, got %d", got)
	}
	if got := len(db.Rows("experience")); got != 2 {
		t.Fatalf("expected 2 experience rows, got %d", got)
	}
}

func TestLoad_ChildFailureRollsBackJobRow(t *testing.T) {
	db := newStore(t)
	calls := 0
	db.FailInsert = func(table string, _ []any) error {
		if table != "salary" {
			return nil
		}
		calls++
		if calls == 1 {
			return errors.New("value too long for type character varying(3)")
		}
		return nil
	}

	rep, err := NewLoader(nil).Load(context.Background(), seq(fullRecord(1), fullRecord(2)), db)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rep.Loaded != 1 || !reflect.DeepEqual(rep.FailedIndices(), []int{1}) {
		t.Fatalf("unexpected report %+v", rep)
	}
	for _, table := range []string{"job", "company", "education", "experience", "salary", "location"} {
		if got := len(db.Rows(table)); got != 1 {
			t.Fatalf("expected only the second record in %s, got %d rows", table, got)
		}
	}
	if db.Rollbacks == 0 {
		t.Fatalf("expected the failed record to roll back")
	}
}

func TestLoad_MissingSalaryBucket(t *testing.T) {
	db := newStore(t)
	rec := fullRecord(1)
	rec.Salary = nil

	rep, err := NewLoader(nil).Load(context.Background(), seq(rec), db)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rep.Loaded != 1 {
		t.Fatalf("expected record to load, got %+v", rep)
	}
	if got := len(db.Rows("salary")); got != 0 {
		t.Fatalf("expected no salary row, got %d", got)
	}
	if got := len(db.Rows("location")); got != 1 {
		t.Fatalf("expected location row, got %d", got)
	}
}

func TestLoad_RoundTripIsExact(t *testing.T) {
	db := newStore(t)
	want := fullRecord(1)
	want.Company.Link = nil
	want.Salary.Unit = nil

	rep, err := NewLoader(nil).Load(context.Background(), seq(want), db)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rep.Loaded != 1 {
		t.Fatalf("expected record to load, got %+v", rep)
	}

	got, err := repository.NewPostgresJobRepository(db).GetRecord(context.Background(), rep.JobIDs[0])
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	got.Index = want.Index
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip changed record:\n got=%+v\nwant=%+v", got, want)
	}
}

func TestLoad_ConversionFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *job.Record)
	}{
		{name: "salary not decimal", mutate: func(r *job.Record) { r.Salary.MinValue = sp("lots") }},
		{name: "salary exponent", mutate: func(r *job.Record) { r.Salary.MaxValue = sp("1e5") }},
		{name: "latitude NaN", mutate: func(r *job.Record) { r.Location.Latitude = sp("NaN") }},
		{name: "bad date", mutate: func(r *job.Record) { r.Job.DatePosted = sp("yesterday") }},
		{name: "date with time of day", mutate: func(r *job.Record) { r.Job.DatePosted = sp("2024-01-02T15:04:05Z") }},
		{name: "date with clock time", mutate: func(r *job.Record) { r.Job.DatePosted = sp("2024-01-02 09:30:00") }},
		{name: "months fractional", mutate: func(r *job.Record) { r.Experience.MonthsOfExperience = sp("1.5") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newStore(t)
			rec := fullRecord(7)
			tt.mutate(&rec)

			rep, err := NewLoader(nil).Load(context.Background(), seq(rec), db)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if rep.Loaded != 0 || !reflect.DeepEqual(rep.FailedIndices(), []int{7}) {
				t.Fatalf("unexpected report %+v", rep)
			}
			if got := len(db.Rows("job")); got != 0 {
				t.Fatalf("expected no job row, got %d", got)
			}
		})
	}
}

func TestLoad_AcceptsMidnightTimestamps(t *testing.T) {
	for _, in := range []string{"2024-01-02T00:00:00Z", "2024-01-02 00:00:00"} {
		t.Run(in, func(t *testing.T) {
			db := newStore(t)
			rec := fullRecord(1)
			rec.Job.DatePosted = sp(in)

			rep, err := NewLoader(nil).Load(context.Background(), seq(rec), db)
			if err != nil || rep.Loaded != 1 {
				t.Fatalf("expected load, got %+v err=%v", rep, err)
			}
			got, err := repository.NewPostgresJobRepository(db).GetRecord(context.Background(), rep.JobIDs[0])
			if err != nil {
				t.Fatalf("read back: %v", err)
			}
			if got.Job.DatePosted == nil || *got.Job.DatePosted != "2024-01-02" {
				t.Fatalf("unexpected date %v", got.Job.DatePosted)
			}
		})
	}
}

func TestLoad_SequenceErrorAborts(t *testing.T) {
	db := newStore(t)
	boom := errs.MalformedSource("records file object 2", nil)
	records := func(yield func(job.Record, error) bool) {
		if !yield(fullRecord(1), nil) {
			return
		}
		if !yield(job.Record{}, boom) {
			return
		}
		yield(fullRecord(3), nil)
	}

	rep, err := NewLoader(nil).Load(context.Background(), records, db)
	if !errors.Is(err, boom) {
		t.Fatalf("expected sequence error, got %v", err)
	}
	if rep.Loaded != 1 {
		t.Fatalf("expected records before the error to stay loaded, got %d", rep.Loaded)
	}
}

func TestLoad_BeginFailureIsPerRecord(t *testing.T) {
	db := newStore(t)
	db.FailBegin = errors.New("connection reset")

	rep, err := NewLoader(nil).Load(context.Background(), seq(fullRecord(1), fullRecord(2)), db)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !reflect.DeepEqual(rep.FailedIndices(), []int{1, 2}) {
		t.Fatalf("unexpected failures %v", rep.FailedIndices())
	}
}
