package memstore

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"sync"
	"time"

	"github.com/cognicore/breachwatch/pkg/breachwatch/internalerr"
	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
	"github.com/cognicore/breachwatch/pkg/breachwatch/store"
)

type originKey struct {
	sourceID int
	url      string
}

// Store is an in-memory implementation of store.Store for tests and dry runs.
// Rows are kept in column form so the same mapping as the SQL backends applies.
type Store struct {
	mu        sync.RWMutex
	rows      map[string]map[string]any
	origins   map[originKey]string
	conflicts []store.StoredConflict
	changes   int
	ids       *store.IDs
	now       func() time.Time
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		rows:    make(map[string]map[string]any),
		origins: make(map[originKey]string),
		ids:     store.NewIDs(),
		now:     time.Now,
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// Lookup implements store.Catalog.
func (s *Store) Lookup(ctx context.Context, uid string) (record.BreachRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[uid]
	if !ok {
		return record.BreachRecord{}, false, nil
	}
	rec, err := store.FromColumns(row)
	return rec, err == nil, err
}

// LookupByOrigin implements store.Catalog.
func (s *Store) LookupByOrigin(ctx context.Context, sourceID int, originURL string) (record.BreachRecord, bool, error) {
	s.mu.RLock()
	uid, ok := s.origins[originKey{sourceID, originURL}]
	s.mu.RUnlock()
	if !ok || originURL == "" {
		return record.BreachRecord{}, false, nil
	}
	return s.Lookup(ctx, uid)
}

// Upsert implements store.Writer. Columns whose value is unchanged are not
// counted as a change.
func (s *Store) Upsert(ctx context.Context, op store.Op) error {
	if op.IncidentUID == "" {
		return fmt.Errorf("upsert: %w: empty incident uid", internalerr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, exists := s.rows[op.IncidentUID]
	if !exists && op.Kind == store.OpUpdate {
		return fmt.Errorf("update %s: %w", op.IncidentUID, internalerr.ErrNotFound)
	}

	if op.OriginURL != nil {
		key := originKey{op.SourceID, *op.OriginURL}
		if owner, taken := s.origins[key]; taken && owner != op.IncidentUID {
			return fmt.Errorf("upsert %s: %w", op.IncidentUID, internalerr.ErrDuplicateOrigin)
		}
	}

	if !exists {
		row = map[string]any{
			store.ColIncidentUID: op.IncidentUID,
			store.ColSourceID:    int64(op.SourceID),
		}
		s.rows[op.IncidentUID] = row
	}

	changed := !exists
	if op.OriginURL != nil && row[record.FieldOriginURL] != *op.OriginURL {
		if prev, ok := row[record.FieldOriginURL].(string); ok {
			delete(s.origins, originKey{op.SourceID, prev})
		}
		row[record.FieldOriginURL] = *op.OriginURL
		s.origins[originKey{op.SourceID, *op.OriginURL}] = op.IncidentUID
		changed = true
	}
	for col, v := range op.Fields {
		if old, ok := row[col]; ok && reflect.DeepEqual(old, v) {
			continue
		}
		row[col] = v
		changed = true
	}
	if changed {
		s.changes++
	}
	return nil
}

// RecordConflicts implements store.Writer.
func (s *Store) RecordConflicts(ctx context.Context, runID string, conflicts []record.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, c := range conflicts {
		s.conflicts = append(s.conflicts, store.StoredConflict{
			ID:         s.ids.New(now),
			RunID:      runID,
			DetectedAt: now,
			Conflict:   c,
		})
	}
	return nil
}

// Conflicts implements store.Store.
func (s *Store) Conflicts(ctx context.Context, uid string) ([]store.StoredConflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.StoredConflict
	for _, c := range s.conflicts {
		if uid == "" || c.IncidentUID == uid {
			out = append(out, c)
		}
	}
	return out, nil
}

// Len returns the number of catalog entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Changes returns how many upserts actually modified a row.
func (s *Store) Changes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changes
}

// Row returns a copy of the stored columns for uid.
func (s *Store) Row(uid string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[uid]
	return maps.Clone(row), ok
}
