package ingest

import (
	"context"
	"strconv"

	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
	"github.com/cognicore/breachwatch/pkg/breachwatch/store"
)

// overlay is a run-local view over the catalog: records written earlier in the
// run are served from memory, so a later record in the same batch resolves
// against them even if the catalog does not yet reflect the write.
type overlay struct {
	base     store.Catalog
	byUID    map[string]record.BreachRecord
	byOrigin map[string]string
}

func newOverlay(base store.Catalog) *overlay {
	return &overlay{
		base:     base,
		byUID:    make(map[string]record.BreachRecord),
		byOrigin: make(map[string]string),
	}
}

func originKey(sourceID int, url string) string {
	return strconv.Itoa(sourceID) + "\x00" + url
}

func (o *overlay) Lookup(ctx context.Context, uid string) (record.BreachRecord, bool, error) {
	if rec, ok := o.byUID[uid]; ok {
		return rec.Clone(), true, nil
	}
	return o.base.Lookup(ctx, uid)
}

func (o *overlay) LookupByOrigin(ctx context.Context, sourceID int, url string) (record.BreachRecord, bool, error) {
	if uid, ok := o.byOrigin[originKey(sourceID, url)]; ok {
		return o.Lookup(ctx, uid)
	}
	return o.base.LookupByOrigin(ctx, sourceID, url)
}

func (o *overlay) put(rec record.BreachRecord) {
	o.byUID[rec.IncidentUID] = rec.Clone()
	if rec.OriginURL != "" {
		o.byOrigin[originKey(rec.SourceID, rec.OriginURL)] = rec.IncidentUID
	}
}
