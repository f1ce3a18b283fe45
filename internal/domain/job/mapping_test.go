package job

import "testing"

func strPtr(s string) *string { return &s }

func TestColumns_UniqueAndKnownBuckets(t *testing.T) {
	known := map[Bucket]bool{}
	for _, b := range Buckets {
		known[b] = true
	}

	seen := map[string]bool{}
	for _, c := range Columns {
		if seen[c.Name] {
			t.Fatalf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		if !known[c.Bucket] {
			t.Fatalf("column %q maps to unknown bucket %q", c.Name, c.Bucket)
		}
		if c.assign == nil {
			t.Fatalf("column %q has no assign func", c.Name)
		}
	}
}

func TestColumn_AssignAllocatesBucket(t *testing.T) {
	var r Record
	c, ok := LookupColumn("salary_min_value")
	if !ok {
		t.Fatalf("expected salary_min_value to be mapped")
	}
	c.Assign(&r, strPtr("1000.50"))
	if r.Salary == nil || r.Salary.MinValue == nil || *r.Salary.MinValue != "1000.50" {
		t.Fatalf("unexpected salary bucket: %+v", r.Salary)
	}
	if r.Location != nil {
		t.Fatalf("expected location bucket to stay nil")
	}
}

func TestLookupColumn_Unknown(t *testing.T) {
	if _, ok := LookupColumn("salary_bonus"); ok {
		t.Fatalf("expected salary_bonus to be unmapped")
	}
}

func TestRecord_NormalizeDropsEmptyBuckets(t *testing.T) {
	r := Record{
		Company:  &Company{},
		Salary:   &Salary{Unit: strPtr("YEAR")},
		Location: &Location{},
	}
	r.Normalize()
	if r.Company != nil {
		t.Fatalf("expected empty company to be dropped")
	}
	if r.Location != nil {
		t.Fatalf("expected empty location to be dropped")
	}
	if r.Salary == nil {
		t.Fatalf("expected salary with a value to be kept")
	}
}
