// Package schema creates and verifies the six-table job schema.
package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"jobs-etl/internal/database"
	"jobs-etl/internal/errs"
	"jobs-etl/internal/pkg/logging"
)

// lockKey serializes concurrent EnsureSchema calls across processes.
const lockKey int64 = 746295114

const migrationsDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	checksum TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Manager struct {
	db     database.DB
	logger *logging.Logger
	now    func() time.Time
}

func NewManager(db database.DB, logger *logging.Logger) *Manager {
	return &Manager{db: db, logger: logger, now: time.Now}
}

// Checksum is the SHA-256 of the compiled-in DDL, recorded alongside Version.
func Checksum() string {
	h := sha256.New()
	for _, t := range tables {
		h.Write([]byte(strings.TrimSpace(t.DDL)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EnsureSchema creates the job tables if they do not exist and verifies that
// existing ones match. Calling it on an initialized store changes nothing.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	if m == nil || m.db == nil {
		return errs.SchemaConflict("no store handle", nil)
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return errs.SchemaConflict("store unreachable", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return errs.SchemaConflict("acquire schema lock", err)
	}

	if _, err := tx.Exec(ctx, migrationsDDL); err != nil {
		return errs.SchemaConflict("create schema_migrations", err)
	}

	sum := Checksum()
	recorded, found, err := appliedChecksum(ctx, tx, Version)
	if err != nil {
		return errs.SchemaConflict("read schema_migrations", err)
	}
	if found && recorded != sum {
		return errs.SchemaConflict(fmt.Sprintf("checksum mismatch for schema version %d", Version), nil)
	}

	for _, t := range tables {
		if _, err := tx.Exec(ctx, t.DDL); err != nil {
			return errs.SchemaConflict("create table "+t.Name, err)
		}
	}
	for _, name := range ChildTables() {
		idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_job_id ON %s (job_id)`, name, name)
		if _, err := tx.Exec(ctx, idx); err != nil {
			return errs.SchemaConflict("create index on "+name, err)
		}
	}

	for _, t := range tables {
		if err := verifyColumns(ctx, tx, t); err != nil {
			return err
		}
	}

	if !found {
		if _, err := tx.Exec(
			ctx,
			`INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES ($1, $2, $3, $4)`,
			int64(Version),
			"create_job_tables",
			sum,
			m.now().UTC(),
		); err != nil {
			return errs.SchemaConflict("record schema version", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errs.SchemaConflict("commit schema", err)
	}

	m.logger.Info("schema ensured",
		"version", Version,
		"tables", len(tables),
		"created", !found,
	)
	return nil
}

func appliedChecksum(ctx context.Context, tx database.Tx, version int) (string, bool, error) {
	rows, err := tx.Query(ctx, `SELECT checksum FROM schema_migrations WHERE version = $1`, int64(version))
	if err != nil {
		return "", false, err
	}
	defer rows.Close()

	var (
		sum   string
		found bool
	)
	for rows.Next() {
		if err := rows.Scan(&sum); err != nil {
			return "", false, err
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}
	return sum, found, nil
}

func verifyColumns(ctx context.Context, tx database.Tx, t Table) error {
	rows, err := tx.Query(
		ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`,
		t.Name,
	)
	if err != nil {
		return errs.SchemaConflict("inspect table "+t.Name, err)
	}
	defer rows.Close()

	existing := map[string]string{}
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return errs.SchemaConflict("inspect table "+t.Name, err)
		}
		existing[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return errs.SchemaConflict("inspect table "+t.Name, err)
	}

	for _, col := range t.Columns {
		got, ok := existing[col.Name]
		if !ok {
			return errs.SchemaConflict(fmt.Sprintf("missing column %s.%s", t.Name, col.Name), nil)
		}
		if got != col.DataType {
			return errs.SchemaConflict(
				fmt.Sprintf("column %s.%s has type %s, want %s", t.Name, col.Name, got, col.DataType),
				nil,
			)
		}
	}
	return nil
}
