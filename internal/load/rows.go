package load

import (
	"fmt"
	"strings"

	"jobs-etl/internal/domain/job"
)

// row is one parameterized insert. Children get job_id prepended as $1.
type row struct {
	table   string
	columns []string
	args    []any
}

func (r row) query(returning bool) string {
	cols := r.columns
	if r.table != string(job.BucketJob) {
		cols = append([]string{"job_id"}, cols...)
	}
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", r.table, strings.Join(cols, ", "), strings.Join(ph, ", "))
	if returning {
		q += " RETURNING id"
	}
	return q
}

type recordRows struct {
	job      row
	children []row
}

// buildRows converts rec into typed inserts, in foreign-key order. Null child
// buckets produce no row.
func buildRows(rec job.Record) (recordRows, error) {
	var out recordRows

	posted, err := date("date_posted", rec.Job.DatePosted)
	if err != nil {
		return out, err
	}
	out.job = row{
		table:   "job",
		columns: []string{"title", "industry", "description", "employment_type", "date_posted"},
		args: []any{
			text(rec.Job.Title),
			text(rec.Job.Industry),
			text(rec.Job.Description),
			text(rec.Job.EmploymentType),
			posted,
		},
	}

	if c := rec.Company; c != nil {
		out.children = append(out.children, row{
			table:   "company",
			columns: []string{"name", "link"},
			args:    []any{text(c.Name), text(c.Link)},
		})
	}

	if e := rec.Education; e != nil {
		out.children = append(out.children, row{
			table:   "education",
			columns: []string{"required_credential"},
			args:    []any{text(e.RequiredCredential)},
		})
	}

	if e := rec.Experience; e != nil {
		months, err := integer("months_of_experience", e.MonthsOfExperience)
		if err != nil {
			return out, err
		}
		out.children = append(out.children, row{
			table:   "experience",
			columns: []string{"months_of_experience", "seniority_level"},
			args:    []any{months, text(e.SeniorityLevel)},
		})
	}

	if s := rec.Salary; s != nil {
		lo, err := numeric("salary_min_value", s.MinValue)
		if err != nil {
			return out, err
		}
		hi, err := numeric("salary_max_value", s.MaxValue)
		if err != nil {
			return out, err
		}
		out.children = append(out.children, row{
			table:   "salary",
			columns: []string{"currency", "min_value", "max_value", "unit"},
			args:    []any{text(s.Currency), lo, hi, text(s.Unit)},
		})
	}

	if l := rec.Location; l != nil {
		lat, err := numeric("latitude", l.Latitude)
		if err != nil {
			return out, err
		}
		lng, err := numeric("longitude", l.Longitude)
		if err != nil {
			return out, err
		}
		out.children = append(out.children, row{
			table:   "location",
			columns: []string{"country", "locality", "region", "postal_code", "street_address", "latitude", "longitude"},
			args: []any{
				text(l.Country),
				text(l.Locality),
				text(l.Region),
				text(l.PostalCode),
				text(l.StreetAddress),
				lat,
				lng,
			},
		})
	}

	return out, nil
}
