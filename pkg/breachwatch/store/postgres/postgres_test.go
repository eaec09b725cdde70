package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/breachwatch/pkg/breachwatch/internalerr"
	"github.com/cognicore/breachwatch/pkg/breachwatch/quantity"
	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
	"github.com/cognicore/breachwatch/pkg/breachwatch/store"
)

var fixedNow = time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewPostgresStore(db)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func TestPostgresStore_Lookup(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows(store.SelectColumns).AddRow(
		"uid-1", int64(4), "strong", "https://ag.example.gov/n/1", "Acme Health",
		time.Date(2024, time.January, 17, 0, 0, 0, 0, time.UTC), "Jan 17 2024", "day", 1.0,
		nil, nil, nil, nil,
		int64(12000), "estimate", "approx. 12,000",
		"names", []byte(`["other-pii"]`), "1.0.0",
		nil, []byte(`{"organization_name":"Acme Health"}`),
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM breaches WHERE incident_uid = $1")).
		WithArgs("uid-1").
		WillReturnRows(rows)

	rec, ok, err := s.Lookup(ctx, "uid-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Acme Health", rec.OrganizationName)
	assert.Equal(t, "2024-01-17", rec.BreachDate.ISO())
	assert.False(t, rec.ReportedDate.IsSet())
	require.NotNil(t, rec.AffectedIndividuals)
	assert.Equal(t, int64(12000), *rec.AffectedIndividuals)
	assert.Equal(t, quantity.Estimate, rec.AffectedConfidence)
	assert.Equal(t, []string{"other-pii"}, rec.DataTypes)
	assert.Equal(t, record.StrongKey, rec.IdentityKind)
	assert.Equal(t, "Acme Health", rec.RawPayload["organization_name"])

	// not found
	mock.ExpectQuery(regexp.QuoteMeta("FROM breaches WHERE incident_uid = $1")).
		WithArgs("uid-2").
		WillReturnRows(sqlmock.NewRows(store.SelectColumns))

	_, ok, err = s.Lookup(ctx, "uid-2")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LookupByOrigin(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM breaches WHERE source_id = $1 AND origin_url = $2")).
		WithArgs(int64(4), "https://ag.example.gov/n/1").
		WillReturnRows(sqlmock.NewRows(store.SelectColumns))

	_, ok, err := s.LookupByOrigin(context.Background(), 4, "https://ag.example.gov/n/1")
	assert.NoError(t, err)
	assert.False(t, ok)

	// empty origin never reaches the database
	_, ok, err = s.LookupByOrigin(context.Background(), 4, "")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertInsert(t *testing.T) {
	s, mock := newMockStore(t)

	rec := record.BreachRecord{
		SourceID:           4,
		OrganizationName:   "Acme Health",
		AffectedConfidence: quantity.Unknown,
		DataTypes:          []string{"other-pii"},
		IncidentUID:        "uid-1",
		IdentityKind:       record.WeakKey,
	}
	op, err := store.NewOp(store.OpInsert, rec)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO breaches (incident_uid, source_id, origin_url, ")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, s.Upsert(context.Background(), op))
	assert.NoError(t, mock.ExpectationsWereMet())

	query, args := store.UpsertSQL(dialect, op, fixedNow)
	assert.Contains(t, query, "ON CONFLICT(incident_uid) DO UPDATE SET")
	assert.Contains(t, query, "breaches.organization_name IS DISTINCT FROM excluded.organization_name")
	assert.Equal(t, "uid-1", args[0])
	assert.Nil(t, args[2], "empty origin must be stored as NULL")
}

func TestPostgresStore_UpsertUpdate(t *testing.T) {
	s, mock := newMockStore(t)

	n := int64(4000)
	rec := record.BreachRecord{
		SourceID:            4,
		IncidentUID:         "uid-1",
		AffectedIndividuals: &n,
		AffectedConfidence:  quantity.Exact,
		AffectedRaw:         "4,000",
	}
	op, err := store.NewOp(store.OpUpdate, rec, record.FieldAffected)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE breaches SET affected_confidence = $1, affected_individuals = $2, affected_raw = $3, updated_at = $4\n"+
			"WHERE incident_uid = $5 AND (affected_confidence IS DISTINCT FROM $1 OR affected_individuals IS DISTINCT FROM $2 OR affected_raw IS DISTINCT FROM $3)")).
		WithArgs("exact", int64(4000), "4,000", sqlmock.AnyArg(), "uid-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, s.Upsert(context.Background(), op))

	// nothing changed and the row exists: idempotent no-op
	mock.ExpectExec(regexp.QuoteMeta("UPDATE breaches SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM breaches WHERE incident_uid = $1")).
		WithArgs("uid-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	assert.NoError(t, s.Upsert(context.Background(), op))

	// row is gone
	mock.ExpectExec(regexp.QuoteMeta("UPDATE breaches SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM breaches WHERE incident_uid = $1")).
		WithArgs("uid-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	err = s.Upsert(context.Background(), op)
	assert.True(t, errors.Is(err, internalerr.ErrNotFound), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertDuplicateOrigin(t *testing.T) {
	s, mock := newMockStore(t)

	origin := "https://ag.example.gov/n/1"
	op := store.Op{Kind: store.OpInsert, SourceID: 4, IncidentUID: "uid-2", OriginURL: &origin, Fields: map[string]any{}}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO breaches")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "breaches_source_origin"})

	err := s.Upsert(context.Background(), op)
	assert.True(t, errors.Is(err, internalerr.ErrDuplicateOrigin), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordConflicts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO identity_conflicts")).
		WithArgs(sqlmock.AnyArg(), "run-1", "uid-1", int64(4), record.FieldAffected, "4000", "5000", "value-conflict", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.RecordConflicts(context.Background(), "run-1", []record.Conflict{{
		IncidentUID: "uid-1", SourceID: 4, Field: record.FieldAffected,
		Existing: "4000", Incoming: "5000", Kind: record.ValueConflict,
	}})
	assert.NoError(t, err)

	// nothing to record, no transaction
	assert.NoError(t, s.RecordConflicts(context.Background(), "run-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Conflicts(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "run_id", "incident_uid", "source_id", "field", "existing_value", "incoming_value", "kind", "detected_at"}).
		AddRow("01J0000000000000000000000A", "run-1", "uid-1", 4, "breach_date", "2024-01-01", "2023-01-01", "weak-key-collision", fixedNow)
	mock.ExpectQuery(regexp.QuoteMeta("FROM identity_conflicts")).
		WithArgs("uid-1").
		WillReturnRows(rows)

	got, err := s.Conflicts(context.Background(), "uid-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, record.WeakKeyCollision, got[0].Kind)
	assert.Equal(t, 4, got[0].SourceID)
	assert.True(t, got[0].DetectedAt.Equal(fixedNow))
	assert.NoError(t, mock.ExpectationsWereMet())
}
