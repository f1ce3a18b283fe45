package job

type Bucket string

const (
	BucketJob        Bucket = "job"
	BucketCompany    Bucket = "company"
	BucketEducation  Bucket = "education"
	BucketExperience Bucket = "experience"
	BucketSalary     Bucket = "salary"
	BucketLocation   Bucket = "location"
)

// Buckets lists the buckets in foreign-key order: job first.
var Buckets = []Bucket{
	BucketJob,
	BucketCompany,
	BucketEducation,
	BucketExperience,
	BucketSalary,
	BucketLocation,
}

// Column maps one source header name to a field of a bucket.
type Column struct {
	Name   string
	Bucket Bucket
	Field  string

	assign func(r *Record, v *string)
}

// Assign stores v into the field this column maps to, allocating the bucket if needed.
func (c Column) Assign(r *Record, v *string) {
	c.assign(r, v)
}

// Columns is the fixed source-column mapping. Any header outside it is rejected.
var Columns = []Column{
	{Name: "title", Bucket: BucketJob, Field: "title", assign: func(r *Record, v *string) { r.Job.Title = v }},
	{Name: "industry", Bucket: BucketJob, Field: "industry", assign: func(r *Record, v *string) { r.Job.Industry = v }},
	{Name: "description", Bucket: BucketJob, Field: "description", assign: func(r *Record, v *string) { r.Job.Description = v }},
	{Name: "employment_type", Bucket: BucketJob, Field: "employment_type", assign: func(r *Record, v *string) { r.Job.EmploymentType = v }},
	{Name: "date_posted", Bucket: BucketJob, Field: "date_posted", assign: func(r *Record, v *string) { r.Job.DatePosted = v }},

	{Name: "company_name", Bucket: BucketCompany, Field: "name", assign: func(r *Record, v *string) { company(r).Name = v }},
	{Name: "company_link", Bucket: BucketCompany, Field: "link", assign: func(r *Record, v *string) { company(r).Link = v }},

	{Name: "required_credential", Bucket: BucketEducation, Field: "required_credential", assign: func(r *Record, v *string) { education(r).RequiredCredential = v }},

	{Name: "months_of_experience", Bucket: BucketExperience, Field: "months_of_experience", assign: func(r *Record, v *string) { experience(r).MonthsOfExperience = v }},
	{Name: "seniority_level", Bucket: BucketExperience, Field: "seniority_level", assign: func(r *Record, v *string) { experience(r).SeniorityLevel = v }},

	{Name: "salary_currency", Bucket: BucketSalary, Field: "currency", assign: func(r *Record, v *string) { salary(r).Currency = v }},
	{Name: "salary_min_value", Bucket: BucketSalary, Field: "min_value", assign: func(r *Record, v *string) { salary(r).MinValue = v }},
	{Name: "salary_max_value", Bucket: BucketSalary, Field: "max_value", assign: func(r *Record, v *string) { salary(r).MaxValue = v }},
	{Name: "salary_unit", Bucket: BucketSalary, Field: "unit", assign: func(r *Record, v *string) { salary(r).Unit = v }},

	{Name: "country", Bucket: BucketLocation, Field: "country", assign: func(r *Record, v *string) { location(r).Country = v }},
	{Name: "locality", Bucket: BucketLocation, Field: "locality", assign: func(r *Record, v *string) { location(r).Locality = v }},
	{Name: "region", Bucket: BucketLocation, Field: "region", assign: func(r *Record, v *string) { location(r).Region = v }},
	{Name: "postal_code", Bucket: BucketLocation, Field: "postal_code", assign: func(r *Record, v *string) { location(r).PostalCode = v }},
	{Name: "street_address", Bucket: BucketLocation, Field: "street_address", assign: func(r *Record, v *string) { location(r).StreetAddress = v }},
	{Name: "latitude", Bucket: BucketLocation, Field: "latitude", assign: func(r *Record, v *string) { location(r).Latitude = v }},
	{Name: "longitude", Bucket: BucketLocation, Field: "longitude", assign: func(r *Record, v *string) { location(r).Longitude = v }},
}

var columnsByName = func() map[string]Column {
	m := make(map[string]Column, len(Columns))
	for _, c := range Columns {
		m[c.Name] = c
	}
	return m
}()

func LookupColumn(name string) (Column, bool) {
	c, ok := columnsByName[name]
	return c, ok
}

func company(r *Record) *Company {
	if r.Company == nil {
		r.Company = &Company{}
	}
	return r.Company
}

func education(r *Record) *Education {
	if r.Education == nil {
		r.Education = &Education{}
	}
	return r.Education
}

func experience(r *Record) *Experience {
	if r.Experience == nil {
		r.Experience = &Experience{}
	}
	return r.Experience
}

func salary(r *Record) *Salary {
	if r.Salary == nil {
		r.Salary = &Salary{}
	}
	return r.Salary
}

func location(r *Record) *Location {
	if r.Location == nil {
		r.Location = &Location{}
	}
	return r.Location
}
