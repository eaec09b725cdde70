package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
	"github.com/cognicore/breachwatch/pkg/breachwatch/store"
)

// Outcome classifies a record relative to the catalog.
type Outcome string

const (
	New       Outcome = "NEW"
	Update    Outcome = "UPDATE"
	Duplicate Outcome = "DUPLICATE"
)

// Resolution is the result of resolving one record.
type Resolution struct {
	Outcome Outcome
	UID     string
	Kind    record.IdentityKind
	// Record is what the catalog should hold after this record: the incoming
	// record for NEW, the merged entry otherwise.
	Record record.BreachRecord
	// Changed lists the canonical fields an UPDATE modifies.
	Changed   []string
	Conflicts []record.Conflict
}

// Resolver classifies records against an injected catalog. It keeps no state
// of its own between calls.
type Resolver struct {
	catalog store.Catalog
	logger  *slog.Logger
}

// NewResolver creates a Resolver. A nil logger discards.
func NewResolver(catalog store.Catalog, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{catalog: catalog, logger: logger}
}

// Resolve assigns rec its identity and decides NEW, UPDATE or DUPLICATE.
//
// The catalog is searched by UID, then by (source, permalink), then, for a
// record with a permalink, by its weak UID among entries that have none. The
// last case attaches the permalink to the existing entry and keeps its UID.
func (r *Resolver) Resolve(ctx context.Context, rec record.BreachRecord) (Resolution, error) {
	rec = rec.Clone()
	rec.OriginURL = NormalizeURL(rec.OriginURL)
	uid, kind := UID(rec)
	rec.IncidentUID, rec.IdentityKind = uid, kind

	existing, found, err := r.catalog.Lookup(ctx, uid)
	if err != nil {
		return Resolution{}, fmt.Errorf("lookup %s: %w", uid, err)
	}

	if !found && kind == record.StrongKey {
		existing, found, err = r.catalog.LookupByOrigin(ctx, rec.SourceID, rec.OriginURL)
		if err != nil {
			return Resolution{}, fmt.Errorf("lookup origin %s: %w", rec.OriginURL, err)
		}
	}

	if !found && kind == record.StrongKey {
		weak := WeakUID(rec)
		var candidate record.BreachRecord
		candidate, found, err = r.catalog.Lookup(ctx, weak)
		if err != nil {
			return Resolution{}, fmt.Errorf("lookup %s: %w", weak, err)
		}
		if found && candidate.OriginURL != "" {
			found = false
		}
		if found {
			existing = candidate
			r.logger.Info("attaching permalink to existing incident",
				"incident_uid", weak, "origin_url", rec.OriginURL, "source_id", rec.SourceID)
		}
	}

	if !found {
		return Resolution{Outcome: New, UID: uid, Kind: kind, Record: rec}, nil
	}

	merged, changed, conflicts := merge(existing, rec)
	for _, c := range conflicts {
		r.logger.Warn("identity conflict", "incident_uid", c.IncidentUID, "field", c.Field,
			"existing", c.Existing, "incoming", c.Incoming, "kind", string(c.Kind))
	}

	res := Resolution{
		Outcome:   Duplicate,
		UID:       existing.IncidentUID,
		Kind:      existing.IdentityKind,
		Record:    merged,
		Changed:   changed,
		Conflicts: conflicts,
	}
	if len(changed) > 0 {
		res.Outcome = Update
	}
	return res, nil
}
