package load

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

func text(v *string) pgtype.Text {
	if v == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *v, Valid: true}
}

func integer(field string, v *string) (pgtype.Int4, error) {
	if v == nil {
		return pgtype.Int4{}, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(*v), 10, 32)
	if err != nil {
		return pgtype.Int4{}, fmt.Errorf("%s: %q is not an integer", field, *v)
	}
	return pgtype.Int4{Int32: int32(n), Valid: true}, nil
}

// numeric parses a decimal string without going through float64.
func numeric(field string, v *string) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if v == nil {
		return n, nil
	}
	s := strings.TrimSpace(*v)
	if s == "" || strings.ContainsAny(s, "eEnN") {
		return n, fmt.Errorf("%s: %q is not a decimal", field, *v)
	}
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{}, fmt.Errorf("%s: %q is not a decimal", field, *v)
	}
	return n, nil
}

// date accepts a calendar date, or a timestamp whose time of day is midnight.
// Any other time of day would be dropped by the DATE column, so it is
// rejected instead.
func date(field string, v *string) (pgtype.Date, error) {
	if v == nil {
		return pgtype.Date{}, nil
	}
	s := strings.TrimSpace(*v)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if h, m, sec := t.Clock(); h != 0 || m != 0 || sec != 0 || t.Nanosecond() != 0 {
			return pgtype.Date{}, fmt.Errorf("%s: %q carries a time of day", field, *v)
		}
		y, mo, d := t.Date()
		return pgtype.Date{Time: time.Date(y, mo, d, 0, 0, 0, 0, time.UTC), Valid: true}, nil
	}
	return pgtype.Date{}, fmt.Errorf("%s: %q is not a date", field, *v)
}
