package schema

// Column is an expected column and its information_schema data_type.
type Column struct {
	Name     string
	DataType string
}

type Table struct {
	Name    string
	Columns []Column
	DDL     string
}

// Version of the DDL below. Bump it together with any change to a table.
const Version = 1

const jobDDL = `CREATE TABLE IF NOT EXISTS job (
	id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	title VARCHAR(225),
	industry VARCHAR(225),
	description TEXT,
	employment_type VARCHAR(125),
	date_posted DATE
)`

const companyDDL = `CREATE TABLE IF NOT EXISTS company (
	id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	job_id BIGINT NOT NULL REFERENCES job(id),
	name VARCHAR(225),
	link TEXT
)`

const educationDDL = `CREATE TABLE IF NOT EXISTS education (
	id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	job_id BIGINT NOT NULL REFERENCES job(id),
	required_credential VARCHAR(225)
)`

const experienceDDL = `CREATE TABLE IF NOT EXISTS experience (
	id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	job_id BIGINT NOT NULL REFERENCES job(id),
	months_of_experience INTEGER,
	seniority_level VARCHAR(25)
)`

const salaryDDL = `CREATE TABLE IF NOT EXISTS salary (
	id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	job_id BIGINT NOT NULL REFERENCES job(id),
	currency VARCHAR(3),
	min_value NUMERIC,
	max_value NUMERIC,
	unit VARCHAR(12)
)`

const locationDDL = `CREATE TABLE IF NOT EXISTS location (
	id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	job_id BIGINT NOT NULL REFERENCES job(id),
	country VARCHAR(60),
	locality VARCHAR(60),
	region VARCHAR(60),
	postal_code VARCHAR(25),
	street_address VARCHAR(225),
	latitude NUMERIC,
	longitude NUMERIC
)`

const (
	typeBigint  = "bigint"
	typeInteger = "integer"
	typeVarchar = "character varying"
	typeText    = "text"
	typeDate    = "date"
	typeNumeric = "numeric"
)

func id() Column    { return Column{Name: "id", DataType: typeBigint} }
func jobID() Column { return Column{Name: "job_id", DataType: typeBigint} }

var tables = []Table{
	{
		Name: "job",
		DDL:  jobDDL,
		Columns: []Column{
			id(),
			{Name: "title", DataType: typeVarchar},
			{Name: "industry", DataType: typeVarchar},
			{Name: "description", DataType: typeText},
			{Name: "employment_type", DataType: typeVarchar},
			{Name: "date_posted", DataType: typeDate},
		},
	},
	{
		Name: "company",
		DDL:  companyDDL,
		Columns: []Column{
			id(), jobID(),
			{Name: "name", DataType: typeVarchar},
			{Name: "link", DataType: typeText},
		},
	},
	{
		Name: "education",
		DDL:  educationDDL,
		Columns: []Column{
			id(), jobID(),
			{Name: "required_credential", DataType: typeVarchar},
		},
	},
	{
		Name: "experience",
		DDL:  experienceDDL,
		Columns: []Column{
			id(), jobID(),
			{Name: "months_of_experience", DataType: typeInteger},
			{Name: "seniority_level", DataType: typeVarchar},
		},
	},
	{
		Name: "salary",
		DDL:  salaryDDL,
		Columns: []Column{
			id(), jobID(),
			{Name: "currency", DataType: typeVarchar},
			{Name: "min_value", DataType: typeNumeric},
			{Name: "max_value", DataType: typeNumeric},
			{Name: "unit", DataType: typeVarchar},
		},
	},
	{
		Name: "location",
		DDL:  locationDDL,
		Columns: []Column{
			id(), jobID(),
			{Name: "country", DataType: typeVarchar},
			{Name: "locality", DataType: typeVarchar},
			{Name: "region", DataType: typeVarchar},
			{Name: "postal_code", DataType: typeVarchar},
			{Name: "street_address", DataType: typeVarchar},
			{Name: "latitude", DataType: typeNumeric},
			{Name: "longitude", DataType: typeNumeric},
		},
	},
}

// Tables returns the schema in creation order; job comes before every child.
func Tables() []Table {
	out := make([]Table, len(tables))
	copy(out, tables)
	return out
}

// ChildTables returns every table holding a job_id reference.
func ChildTables() []string {
	out := make([]string, 0, len(tables)-1)
	for _, t := range tables[1:] {
		out = append(out, t.Name)
	}
	return out
}
