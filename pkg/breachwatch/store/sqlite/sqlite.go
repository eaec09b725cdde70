package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/breachwatch/pkg/breachwatch/internalerr"
	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
	"github.com/cognicore/breachwatch/pkg/breachwatch/store"
)

var dialect = store.Dialect{
	Placeholder: func(n int) string { return "?" + strconv.Itoa(n) },
	Distinct:    "IS NOT",
}

// sqliteStore implements store.Store using SQLite
type sqliteStore struct {
	db  *sql.DB
	ids *store.IDs
	now func() time.Time
}

// OpenSQLite opens a SQLite database with WAL mode enabled and creates the
// catalog tables if needed.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{
		db:  db,
		ids: store.NewIDs(),
		now: time.Now,
	}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS breaches (
	incident_uid TEXT PRIMARY KEY,
	source_id INTEGER NOT NULL,
	identity_kind TEXT NOT NULL,
	origin_url TEXT,
	organization_name TEXT NOT NULL,
	breach_date TEXT,
	breach_date_raw TEXT,
	breach_date_precision TEXT,
	breach_date_confidence REAL,
	reported_date TEXT,
	reported_date_raw TEXT,
	reported_date_precision TEXT,
	reported_date_confidence REAL,
	affected_individuals INTEGER,
	affected_confidence TEXT,
	affected_raw TEXT,
	what_was_leaked TEXT,
	data_types_compromised TEXT NOT NULL DEFAULT '[]',
	taxonomy_version TEXT,
	natural_key TEXT,
	raw_payload TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS breaches_source_origin
	ON breaches(source_id, origin_url) WHERE origin_url IS NOT NULL;

CREATE INDEX IF NOT EXISTS breaches_breach_date ON breaches(breach_date);

CREATE TABLE IF NOT EXISTS identity_conflicts (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	incident_uid TEXT NOT NULL,
	source_id INTEGER NOT NULL,
	field TEXT NOT NULL,
	existing_value TEXT,
	incoming_value TEXT,
	kind TEXT NOT NULL,
	detected_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS identity_conflicts_uid ON identity_conflicts(incident_uid);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Lookup implements store.Catalog.
func (s *sqliteStore) Lookup(ctx context.Context, uid string) (record.BreachRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, store.SelectSQL("incident_uid = ?1"), uid)
	return scanRecord(row)
}

// LookupByOrigin implements store.Catalog.
func (s *sqliteStore) LookupByOrigin(ctx context.Context, sourceID int, originURL string) (record.BreachRecord, bool, error) {
	if originURL == "" {
		return record.BreachRecord{}, false, nil
	}
	row := s.db.QueryRowContext(ctx, store.SelectSQL("source_id = ?1 AND origin_url = ?2"), sourceID, originURL)
	return scanRecord(row)
}

func scanRecord(row *sql.Row) (record.BreachRecord, bool, error) {
	cols, err := store.ScanRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return record.BreachRecord{}, false, nil
	}
	if err != nil {
		return record.BreachRecord{}, false, err
	}
	rec, err := store.FromColumns(cols)
	if err != nil {
		return record.BreachRecord{}, false, err
	}
	return rec, true, nil
}

// Upsert implements store.Writer.
func (s *sqliteStore) Upsert(ctx context.Context, op store.Op) error {
	now := s.now().UTC().Format(time.RFC3339)
	switch op.Kind {
	case store.OpInsert:
		stmt, args := store.UpsertSQL(dialect, op, now)
		_, err := s.db.ExecContext(ctx, stmt, args...)
		return mapError(op, err)
	case store.OpUpdate:
		stmt, args := store.UpdateSQL(dialect, op, now)
		res, err := s.db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return mapError(op, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return s.ensureExists(ctx, op.IncidentUID)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown op kind %q", internalerr.ErrInvalidInput, op.Kind)
	}
}

func (s *sqliteStore) ensureExists(ctx context.Context, uid string) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM breaches WHERE incident_uid = ?1", uid).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update %s: %w", uid, internalerr.ErrNotFound)
	}
	return err
}

func mapError(op store.Op, err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("upsert %s: %w", op.IncidentUID, internalerr.ErrDuplicateOrigin)
	}
	return fmt.Errorf("upsert %s: %w", op.IncidentUID, err)
}

// RecordConflicts implements store.Writer.
func (s *sqliteStore) RecordConflicts(ctx context.Context, runID string, conflicts []record.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO identity_conflicts (id, run_id, incident_uid, source_id, field, existing_value, incoming_value, kind, detected_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, c := range conflicts {
		if _, err := stmt.ExecContext(ctx, s.ids.New(now), runID, c.IncidentUID, c.SourceID,
			c.Field, c.Existing, c.Incoming, string(c.Kind), now.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Conflicts implements store.Store.
func (s *sqliteStore) Conflicts(ctx context.Context, uid string) ([]store.StoredConflict, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, run_id, incident_uid, source_id, field, existing_value, incoming_value, kind, detected_at
FROM identity_conflicts WHERE ?1 = '' OR incident_uid = ?1 ORDER BY id`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.StoredConflict
	for rows.Next() {
		var (
			c        store.StoredConflict
			kind     string
			detected string
		)
		if err := rows.Scan(&c.ID, &c.RunID, &c.IncidentUID, &c.SourceID, &c.Field,
			&c.Existing, &c.Incoming, &kind, &detected); err != nil {
			return nil, err
		}
		c.Kind = record.ConflictKind(kind)
		if c.DetectedAt, err = time.Parse(time.RFC3339, detected); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
