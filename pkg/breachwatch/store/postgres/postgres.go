// Package postgres is the PostgreSQL catalog backend.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/cognicore/breachwatch/pkg/breachwatch/internalerr"
	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
	"github.com/cognicore/breachwatch/pkg/breachwatch/store"
)

const uniqueViolation = "23505"

var dialect = store.Dialect{
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Distinct:    "IS DISTINCT FROM",
}

const schema = `
CREATE TABLE IF NOT EXISTS breaches (
	incident_uid TEXT PRIMARY KEY,
	source_id INTEGER NOT NULL,
	identity_kind TEXT NOT NULL,
	origin_url TEXT,
	organization_name TEXT NOT NULL,
	breach_date DATE,
	breach_date_raw TEXT,
	breach_date_precision TEXT,
	breach_date_confidence DOUBLE PRECISION,
	reported_date DATE,
	reported_date_raw TEXT,
	reported_date_precision TEXT,
	reported_date_confidence DOUBLE PRECISION,
	affected_individuals BIGINT CHECK (affected_individuals >= 0),
	affected_confidence TEXT,
	affected_raw TEXT,
	what_was_leaked TEXT,
	data_types_compromised JSONB NOT NULL DEFAULT '[]',
	taxonomy_version TEXT,
	natural_key TEXT,
	raw_payload JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
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
	detected_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS identity_conflicts_uid ON identity_conflicts(incident_uid);
`

var _ store.Store = (*PostgresStore)(nil)

// PostgresStore implements store.Store using PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	ids *store.IDs
	now func() time.Time
}

// NewPostgresStore wraps an open database. Call Migrate before first use on a
// fresh database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, ids: store.NewIDs(), now: time.Now}
}

// Open connects to dsn, verifies the connection and creates the schema.
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	s := NewPostgresStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the catalog tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Lookup(ctx context.Context, uid string) (record.BreachRecord, bool, error) {
	return s.queryOne(ctx, store.SelectSQL("incident_uid = $1"), uid)
}

func (s *PostgresStore) LookupByOrigin(ctx context.Context, sourceID int, originURL string) (record.BreachRecord, bool, error) {
	if originURL == "" {
		return record.BreachRecord{}, false, nil
	}
	return s.queryOne(ctx, store.SelectSQL("source_id = $1 AND origin_url = $2"), sourceID, originURL)
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, args ...any) (record.BreachRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	cols, err := store.ScanRow(row.Scan)
	if err == sql.ErrNoRows {
		return record.BreachRecord{}, false, nil
	}
	if err != nil {
		return record.BreachRecord{}, false, fmt.Errorf("failed to load incident: %w", err)
	}
	rec, err := store.FromColumns(cols)
	if err != nil {
		return record.BreachRecord{}, false, fmt.Errorf("failed to decode incident: %w", err)
	}
	return rec, true, nil
}

// Upsert applies an insert or update. Both statements skip rows whose columns
// already hold the incoming values.
func (s *PostgresStore) Upsert(ctx context.Context, op store.Op) error {
	now := s.now().UTC()
	switch op.Kind {
	case store.OpInsert:
		query, args := store.UpsertSQL(dialect, op, now)
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return mapError(op, err)
		}
		return nil
	case store.OpUpdate:
		query, args := store.UpdateSQL(dialect, op, now)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return mapError(op, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			var one int
			err := s.db.QueryRowContext(ctx, "SELECT 1 FROM breaches WHERE incident_uid = $1", op.IncidentUID).Scan(&one)
			if err == sql.ErrNoRows {
				return fmt.Errorf("update %s: %w", op.IncidentUID, internalerr.ErrNotFound)
			}
			return err
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown op kind %q", internalerr.ErrInvalidInput, op.Kind)
	}
}

func mapError(op store.Op, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("failed to persist incident %s: %w", op.IncidentUID, internalerr.ErrDuplicateOrigin)
	}
	return fmt.Errorf("failed to persist incident %s: %w", op.IncidentUID, err)
}

func (s *PostgresStore) RecordConflicts(ctx context.Context, runID string, conflicts []record.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO identity_conflicts (id, run_id, incident_uid, source_id, field, existing_value, incoming_value, kind, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	now := s.now().UTC()
	for _, c := range conflicts {
		if _, err := tx.ExecContext(ctx, query, s.ids.New(now), runID, c.IncidentUID, c.SourceID,
			c.Field, c.Existing, c.Incoming, string(c.Kind), now); err != nil {
			return fmt.Errorf("failed to record conflict: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) Conflicts(ctx context.Context, uid string) ([]store.StoredConflict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, incident_uid, source_id, field, existing_value, incoming_value, kind, detected_at
		FROM identity_conflicts WHERE $1 = '' OR incident_uid = $1 ORDER BY id
	`, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var out []store.StoredConflict
	for rows.Next() {
		var c store.StoredConflict
		var kind string
		if err := rows.Scan(&c.ID, &c.RunID, &c.IncidentUID, &c.SourceID, &c.Field,
			&c.Existing, &c.Incoming, &kind, &c.DetectedAt); err != nil {
			return nil, err
		}
		c.Kind = record.ConflictKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}
