// Package store defines how the pipeline reads and writes the breach catalog.
// Backends live in the memstore, sqlite and postgres subpackages.
package store

import (
	"context"
	"time"

	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
)

// Catalog is the read side the identity resolver consults.
type Catalog interface {
	// Lookup returns the catalog entry with the given incident UID.
	Lookup(ctx context.Context, uid string) (record.BreachRecord, bool, error)
	// LookupByOrigin returns the entry a source published under originURL.
	LookupByOrigin(ctx context.Context, sourceID int, originURL string) (record.BreachRecord, bool, error)
}

// Writer is the write side. Upserts must be idempotent: re-applying the same
// values leaves the catalog unchanged.
type Writer interface {
	Upsert(ctx context.Context, op Op) error
	RecordConflicts(ctx context.Context, runID string, conflicts []record.Conflict) error
}

// Store is a complete catalog backend.
type Store interface {
	Catalog
	Writer
	// Conflicts lists recorded conflicts for uid, or all of them when uid is
	// empty, oldest first.
	Conflicts(ctx context.Context, uid string) ([]StoredConflict, error)
	Close() error
}

// OpKind distinguishes first writes from corrections.
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
)

// Op is one persistence operation. Fields maps column names to column values as
// produced by Columns; an update op carries only the columns that changed.
type Op struct {
	Kind        OpKind
	SourceID    int
	IncidentUID string
	OriginURL   *string
	Fields      map[string]any
}

// StoredConflict is a Conflict as kept for manual review.
type StoredConflict struct {
	ID         string
	RunID      string
	DetectedAt time.Time
	record.Conflict
}
