package job

// Record is one job posting grouped into its six buckets. All values are kept
// as the source text; typing happens when the record is loaded.
type Record struct {
	// Index is the 1-based data row position in the source file.
	Index int `json:"index"`

	Job        Job         `json:"job"`
	Company    *Company    `json:"company"`
	Education  *Education  `json:"education"`
	Experience *Experience `json:"experience"`
	Salary     *Salary     `json:"salary"`
	Location   *Location   `json:"location"`
}

type Job struct {
	Title          *string `json:"title"`
	Industry       *string `json:"industry"`
	Description    *string `json:"description"`
	EmploymentType *string `json:"employment_type"`
	DatePosted     *string `json:"date_posted"`
}

type Company struct {
	Name *string `json:"name"`
	Link *string `json:"link"`
}

type Education struct {
	RequiredCredential *string `json:"required_credential"`
}

type Experience struct {
	MonthsOfExperience *string `json:"months_of_experience"`
	SeniorityLevel     *string `json:"seniority_level"`
}

type Salary struct {
	Currency *string `json:"currency"`
	MinValue *string `json:"min_value"`
	MaxValue *string `json:"max_value"`
	Unit     *string `json:"unit"`
}

type Location struct {
	Country       *string `json:"country"`
	Locality      *string `json:"locality"`
	Region        *string `json:"region"`
	PostalCode    *string `json:"postal_code"`
	StreetAddress *string `json:"street_address"`
	Latitude      *string `json:"latitude"`
	Longitude     *string `json:"longitude"`
}

func (c *Company) empty() bool {
	return c == nil || (c.Name == nil && c.Link == nil)
}

func (e *Education) empty() bool {
	return e == nil || e.RequiredCredential == nil
}

func (e *Experience) empty() bool {
	return e == nil || (e.MonthsOfExperience == nil && e.SeniorityLevel == nil)
}

func (s *Salary) empty() bool {
	return s == nil || (s.Currency == nil && s.MinValue == nil && s.MaxValue == nil && s.Unit == nil)
}

func (l *Location) empty() bool {
	return l == nil || (l.Country == nil && l.Locality == nil && l.Region == nil &&
		l.PostalCode == nil && l.StreetAddress == nil && l.Latitude == nil && l.Longitude == nil)
}

// Normalize nils out child buckets whose every field is null, so a bucket is
// either absent or carries at least one value.
func (r *Record) Normalize() {
	if r.Company.empty() {
		r.Company = nil
	}
	if r.Education.empty() {
		r.Education = nil
	}
	if r.Experience.empty() {
		r.Experience = nil
	}
	if r.Salary.empty() {
		r.Salary = nil
	}
	if r.Location.empty() {
		r.Location = nil
	}
}
