// Package dbtest provides an in-memory database.DB for package tests. It
// understands the statement shapes this repository issues and nothing more.
package dbtest

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"jobs-etl/internal/database"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

var (
	createTableRe = regexp.MustCompile(`(?is)^create table if not exists (\w+)\s*\((.*)\)\s*$`)
	createIndexRe = regexp.MustCompile(`(?is)^create index if not exists (\w+) on (\w+)`)
	insertRe      = regexp.MustCompile(`(?is)^insert into (\w+)\s*\(([^)]*)\)\s*values\s*\(([^)]*)\)(\s+returning\s+id)?\s*$`)
	selectRe      = regexp.MustCompile(`(?is)^select (.+?) from ([\w.]+)(?:\s+where\s+(.+?))?(?:\s+order by\s+(\w+))?\s*$`)
	condRe        = regexp.MustCompile(`(?i)(\w+)\s*=\s*(\$\d+|current_schema\(\))`)
)

type Row map[string]any

type state struct {
	columns map[string][]ColumnDef
	rows    map[string][]Row
	indexes map[string]string
}

type ColumnDef struct {
	Name     string
	DataType string
}

func (s *state) clone() *state {
	out := &state{
		columns: make(map[string][]ColumnDef, len(s.columns)),
		rows:    make(map[string][]Row, len(s.rows)),
		indexes: make(map[string]string, len(s.indexes)),
	}
	for k, v := range s.columns {
		out.columns[k] = append([]ColumnDef(nil), v...)
	}
	for k, v := range s.rows {
		cp := make([]Row, len(v))
		for i, r := range v {
			nr := make(Row, len(r))
			for ck, cv := range r {
				nr[ck] = cv
			}
			cp[i] = nr
		}
		out.rows[k] = cp
	}
	for k, v := range s.indexes {
		out.indexes[k] = v
	}
	return out
}

// MemDB is safe for sequential use from one goroutine at a time.
type MemDB struct {
	mu  sync.Mutex
	st  *state
	seq map[string]int64

	// FailInsert, when set, is consulted before every insert.
	FailInsert func(table string, args []any) error
	// FailBegin, when set, is returned from Begin.
	FailBegin error

	Commits   int
	Rollbacks int
	Closed    bool
}

func New() *MemDB {
	return &MemDB{
		st: &state{
			columns: map[string][]ColumnDef{},
			rows:    map[string][]Row{},
			indexes: map[string]string{},
		},
		seq: map[string]int64{},
	}
}

// DefineTable creates a table directly, bypassing DDL. Tests use it to seed
// incompatible definitions.
func (db *MemDB) DefineTable(name string, cols ...ColumnDef) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.st.columns[name] = cols
}

// Rows returns a copy of the committed rows of table.
func (db *MemDB) Rows(table string) []Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.st.clone().rows[table]
}

// Columns returns the committed column definitions of table.
func (db *MemDB) Columns(table string) []ColumnDef {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]ColumnDef(nil), db.st.columns[table]...)
}

// TableNames returns every committed table, sorted.
func (db *MemDB) TableNames() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, 0, len(db.st.columns))
	for k := range db.st.columns {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (db *MemDB) Ping(context.Context) error { return nil }

func (db *MemDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Closed = true
	return nil
}

func (db *MemDB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	n, err := tx.Exec(ctx, query, args...)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	return n, tx.Commit(ctx)
}

func (db *MemDB) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	db.mu.Lock()
	st := db.st.clone()
	db.mu.Unlock()
	return (&memTx{db: db, st: st}).Query(ctx, query, args...)
}

func (db *MemDB) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	db.mu.Lock()
	st := db.st.clone()
	db.mu.Unlock()
	return (&memTx{db: db, st: st}).QueryRow(ctx, query, args...)
}

func (db *MemDB) Begin(context.Context) (database.Tx, error) {
	if db.FailBegin != nil {
		return nil, db.FailBegin
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return &memTx{db: db, st: db.st.clone()}, nil
}

func (db *MemDB) nextID(table string) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.seq[table]++
	return db.seq[table]
}

type memTx struct {
	db   *MemDB
	st   *state
	done bool
}

func (t *memTx) Commit(context.Context) error {
	if t.done {
		return fmt.Errorf("tx closed")
	}
	t.done = true
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.st = t.st
	t.db.Commits++
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.Rollbacks++
	return nil
}

func normalize(query string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(query)), " ")
}

func (t *memTx) Exec(_ context.Context, query string, args ...any) (int64, error) {
	if t.done {
		return 0, fmt.Errorf("tx closed")
	}
	q := normalize(query)
	lower := strings.ToLower(q)

	switch {
	case strings.HasPrefix(lower, "select pg_advisory"):
		return 0, nil

	case strings.HasPrefix(lower, "create table if not exists"):
		m := createTableRe.FindStringSubmatch(q)
		if m == nil {
			return 0, fmt.Errorf("dbtest: unsupported ddl: %s", q)
		}
		name := strings.ToLower(m[1])
		if _, ok := t.st.columns[name]; ok {
			return 0, nil
		}
		t.st.columns[name] = parseColumns(m[2])
		return 0, nil

	case strings.HasPrefix(lower, "create index if not exists"):
		m := createIndexRe.FindStringSubmatch(q)
		if m == nil {
			return 0, fmt.Errorf("dbtest: unsupported index ddl: %s", q)
		}
		table := strings.ToLower(m[2])
		if _, ok := t.st.columns[table]; !ok {
			return 0, fmt.Errorf("dbtest: relation %q does not exist", table)
		}
		t.st.indexes[strings.ToLower(m[1])] = table
		return 0, nil

	case strings.HasPrefix(lower, "insert into"):
		_, err := t.insert(q, args)
		if err != nil {
			return 0, err
		}
		return 1, nil
	}

	return 0, fmt.Errorf("dbtest: unsupported exec: %s", q)
}

func (t *memTx) insert(q string, args []any) (int64, error) {
	m := insertRe.FindStringSubmatch(q)
	if m == nil {
		return 0, fmt.Errorf("dbtest: unsupported insert: %s", q)
	}
	table := strings.ToLower(m[1])
	cols, ok := t.st.columns[table]
	if !ok {
		return 0, fmt.Errorf("dbtest: relation %q does not exist", table)
	}
	if t.db.FailInsert != nil {
		if err := t.db.FailInsert(table, args); err != nil {
			return 0, err
		}
	}

	names := splitList(m[2])
	placeholders := splitList(m[3])
	if len(names) != len(placeholders) {
		return 0, fmt.Errorf("dbtest: column/value count mismatch: %s", q)
	}

	known := map[string]bool{}
	for _, c := range cols {
		known[c.Name] = true
	}

	row := Row{}
	for i, name := range names {
		name = strings.ToLower(name)
		if !known[name] {
			return 0, fmt.Errorf("dbtest: column %q of relation %q does not exist", name, table)
		}
		v, err := argFor(placeholders[i], args)
		if err != nil {
			return 0, err
		}
		row[name] = v
	}

	if jid, ok := row["job_id"]; ok && table != "job" {
		if !t.hasJob(jid) {
			return 0, fmt.Errorf("dbtest: insert on %q violates foreign key: job_id=%v", table, jid)
		}
	}

	var id int64
	if known["id"] {
		if _, set := row["id"]; !set {
			id = t.db.nextID(table)
			row["id"] = id
		}
	}
	t.st.rows[table] = append(t.st.rows[table], row)
	return id, nil
}

func (t *memTx) hasJob(jid any) bool {
	want, ok := toInt64(jid)
	if !ok {
		return false
	}
	for _, r := range t.st.rows["job"] {
		if got, ok := toInt64(r["id"]); ok && got == want {
			return true
		}
	}
	return false
}

func (t *memTx) Query(_ context.Context, query string, args ...any) (database.Rows, error) {
	if t.done {
		return nil, fmt.Errorf("tx closed")
	}
	out, err := t.selectRows(normalize(query), args)
	if err != nil {
		return nil, err
	}
	return &memRows{rows: out, pos: -1}, nil
}

func (t *memTx) QueryRow(_ context.Context, query string, args ...any) database.Row {
	if t.done {
		return errRow{err: fmt.Errorf("tx closed")}
	}
	q := normalize(query)
	if strings.HasPrefix(strings.ToLower(q), "insert into") {
		id, err := t.insert(q, args)
		if err != nil {
			return errRow{err: err}
		}
		return valuesRow{vals: []any{id}}
	}
	out, err := t.selectRows(q, args)
	if err != nil {
		return errRow{err: err}
	}
	if len(out) == 0 {
		return errRow{err: ErrNoRows}
	}
	return valuesRow{vals: out[0]}
}

// ErrNoRows is returned by QueryRow scans that matched nothing. It is the
// driver's sentinel so callers can match it the same way.
var ErrNoRows = pgx.ErrNoRows

func (t *memTx) selectRows(q string, args []any) ([][]any, error) {
	m := selectRe.FindStringSubmatch(q)
	if m == nil {
		return nil, fmt.Errorf("dbtest: unsupported query: %s", q)
	}
	exprs := splitList(m[1])
	from := strings.ToLower(m[2])

	conds := map[string]any{}
	if m[3] != "" {
		for _, c := range condRe.FindAllStringSubmatch(m[3], -1) {
			if strings.EqualFold(c[2], "current_schema()") {
				continue
			}
			v, err := argFor(c[2], args)
			if err != nil {
				return nil, err
			}
			conds[strings.ToLower(c[1])] = v
		}
	}

	if from == "information_schema.columns" {
		name, _ := conds["table_name"].(string)
		var out [][]any
		for _, c := range t.st.columns[name] {
			out = append(out, []any{c.Name, c.DataType})
		}
		return out, nil
	}

	if _, ok := t.st.columns[from]; !ok {
		return nil, fmt.Errorf("dbtest: relation %q does not exist", from)
	}

	var matched []Row
	for _, r := range t.st.rows[from] {
		if matches(r, conds) {
			matched = append(matched, r)
		}
	}
	if order := strings.ToLower(m[4]); order != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, _ := toInt64(matched[i][order])
			b, _ := toInt64(matched[j][order])
			return a < b
		})
	}

	if len(exprs) == 1 && strings.EqualFold(exprs[0], "count(*)") {
		return [][]any{{int64(len(matched))}}, nil
	}

	out := make([][]any, 0, len(matched))
	for _, r := range matched {
		vals := make([]any, len(exprs))
		for i, e := range exprs {
			col, cast, _ := strings.Cut(strings.ToLower(strings.TrimSpace(e)), "::")
			v := r[col]
			if cast == "text" {
				v = textOf(v)
			}
			vals[i] = v
		}
		out = append(out, vals)
	}
	return out, nil
}

func matches(r Row, conds map[string]any) bool {
	for col, want := range conds {
		got := r[col]
		wi, wok := toInt64(want)
		gi, gok := toInt64(got)
		if wok && gok {
			if wi != gi {
				return false
			}
			continue
		}
		if fmt.Sprint(textOf(got)) != fmt.Sprint(textOf(want)) {
			return false
		}
	}
	return true
}

func argFor(placeholder string, args []any) (any, error) {
	p := strings.TrimSpace(placeholder)
	if !strings.HasPrefix(p, "$") {
		return nil, fmt.Errorf("dbtest: unsupported value expression %q", p)
	}
	n, err := strconv.Atoi(p[1:])
	if err != nil || n < 1 || n > len(args) {
		return nil, fmt.Errorf("dbtest: bad placeholder %q", p)
	}
	return args[n-1], nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseColumns(body string) []ColumnDef {
	var out []ColumnDef
	depth := 0
	start := 0
	var defs []string
	for i, r := range body {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				defs = append(defs, body[start:i])
				start = i + 1
			}
		}
	}
	defs = append(defs, body[start:])

	for _, d := range defs {
		f := strings.Fields(strings.TrimSpace(d))
		if len(f) < 2 {
			continue
		}
		name := strings.ToLower(f[0])
		if name == "primary" || name == "foreign" || name == "constraint" || name == "unique" {
			continue
		}
		out = append(out, ColumnDef{Name: name, DataType: dataType(f[1])})
	}
	return out
}

func dataType(sqlType string) string {
	t := strings.ToLower(sqlType)
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch t {
	case "bigint", "bigserial":
		return "bigint"
	case "integer", "int", "serial":
		return "integer"
	case "varchar":
		return "character varying"
	case "timestamptz":
		return "timestamp with time zone"
	default:
		return t
	}
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case pgtype.Int4:
		return int64(x.Int32), x.Valid
	case pgtype.Int8:
		return x.Int64, x.Valid
	default:
		return 0, false
	}
}

// textOf renders a stored value the way postgres renders it under ::text.
func textOf(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case string:
		return x
	case pgtype.Text:
		if !x.Valid {
			return nil
		}
		return x.String
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		val, err := x.Value()
		if err != nil {
			return nil
		}
		return fmt.Sprint(val)
	case pgtype.Date:
		if !x.Valid {
			return nil
		}
		return x.Time.Format("2006-01-02")
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case pgtype.Int4:
		if !x.Valid {
			return nil
		}
		return strconv.FormatInt(int64(x.Int32), 10)
	case pgtype.Int8:
		if !x.Valid {
			return nil
		}
		return strconv.FormatInt(x.Int64, 10)
	}
	if n, ok := toInt64(v); ok {
		return strconv.FormatInt(n, 10)
	}
	return fmt.Sprint(v)
}

type memRows struct {
	rows [][]any
	pos  int
}

func (r *memRows) Close() {}

func (r *memRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *memRows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return fmt.Errorf("dbtest: scan out of range")
	}
	return scanInto(r.rows[r.pos], dest)
}

func (r *memRows) Err() error { return nil }

type valuesRow struct {
	vals []any
}

func (r valuesRow) Scan(dest ...any) error {
	return scanInto(r.vals, dest)
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error {
	return r.err
}

func scanInto(vals []any, dest []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("dbtest: scan dest mismatch: %d != %d", len(dest), len(vals))
	}
	for i := range dest {
		v := vals[i]
		switch d := dest[i].(type) {
		case *int64:
			n, ok := toInt64(v)
			if !ok {
				return fmt.Errorf("dbtest: cannot scan %T into *int64", v)
			}
			*d = n
		case *string:
			s := textOf(v)
			if s == nil {
				return fmt.Errorf("dbtest: cannot scan NULL into *string")
			}
			*d = s.(string)
		case **string:
			s := textOf(v)
			if s == nil {
				*d = nil
				continue
			}
			str := s.(string)
			*d = &str
		default:
			return fmt.Errorf("dbtest: unsupported scan type %T", dest[i])
		}
	}
	return nil
}
