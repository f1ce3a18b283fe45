package repository

import (
	"context"
	"errors"
	"fmt"

	"jobs-etl/internal/database"
	"jobs-etl/internal/database/schema"
	"jobs-etl/internal/domain/job"

	"github.com/jackc/pgx/v5"
)

var (
	ErrJobNotFound = errors.New("job not found")
)

type JobRepository interface {
	GetRecord(ctx context.Context, jobID int64) (job.Record, error)
	CountRows(ctx context.Context) (map[string]int64, error)
}

type PostgresJobRepository struct {
	db database.DB
}

func NewPostgresJobRepository(db database.DB) *PostgresJobRepository {
	return &PostgresJobRepository{db: db}
}

// GetRecord reads a loaded job and its child rows back into a record. Numeric
// and date columns come back as their canonical text. A child table with no
// row for the job leaves that bucket nil.
func (r *PostgresJobRepository) GetRecord(ctx context.Context, jobID int64) (job.Record, error) {
	var rec job.Record
	j := &rec.Job
	err := r.db.QueryRow(ctx,
		`SELECT title, industry, description, employment_type, date_posted::text
		 FROM job
		 WHERE id = $1`,
		jobID,
	).Scan(&j.Title, &j.Industry, &j.Description, &j.EmploymentType, &j.DatePosted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Record{}, ErrJobNotFound
		}
		return job.Record{}, err
	}

	var c job.Company
	found, err := r.child(ctx, `SELECT name, link FROM company WHERE job_id = $1`, jobID, &c.Name, &c.Link)
	if err != nil {
		return job.Record{}, fmt.Errorf("read company: %w", err)
	}
	if found {
		rec.Company = &c
	}

	var ed job.Education
	found, err = r.child(ctx, `SELECT required_credential FROM education WHERE job_id = $1`, jobID, &ed.RequiredCredential)
	if err != nil {
		return job.Record{}, fmt.Errorf("read education: %w", err)
	}
	if found {
		rec.Education = &ed
	}

	var ex job.Experience
	found, err = r.child(ctx,
		`SELECT months_of_experience::text, seniority_level FROM experience WHERE job_id = $1`,
		jobID, &ex.MonthsOfExperience, &ex.SeniorityLevel,
	)
	if err != nil {
		return job.Record{}, fmt.Errorf("read experience: %w", err)
	}
	if found {
		rec.Experience = &ex
	}

	var s job.Salary
	found, err = r.child(ctx,
		`SELECT currency, min_value::text, max_value::text, unit FROM salary WHERE job_id = $1`,
		jobID, &s.Currency, &s.MinValue, &s.MaxValue, &s.Unit,
	)
	if err != nil {
		return job.Record{}, fmt.Errorf("read salary: %w", err)
	}
	if found {
		rec.Salary = &s
	}

	var l job.Location
	found, err = r.child(ctx,
		`SELECT country, locality, region, postal_code, street_address, latitude::text, longitude::text
		 FROM location
		 WHERE job_id = $1`,
		jobID, &l.Country, &l.Locality, &l.Region, &l.PostalCode, &l.StreetAddress, &l.Latitude, &l.Longitude,
	)
	if err != nil {
		return job.Record{}, fmt.Errorf("read location: %w", err)
	}
	if found {
		rec.Location = &l
	}

	return rec, nil
}

func (r *PostgresJobRepository) child(ctx context.Context, query string, jobID int64, dest ...any) (bool, error) {
	if err := r.db.QueryRow(ctx, query, jobID).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CountRows returns the number of rows in every schema table.
func (r *PostgresJobRepository) CountRows(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, t := range schema.Tables() {
		var n int64
		// Table names come from the compiled-in schema, never from input.
		if err := r.db.QueryRow(ctx, `SELECT count(*) FROM `+t.Name).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", t.Name, err)
		}
		out[t.Name] = n
	}
	return out, nil
}
