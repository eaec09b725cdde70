// Package breachwatch is the entry point of the breach-notice pipeline: it
// normalizes raw extractions, resolves them to stable incident identities and
// keeps the catalog up to date.
package breachwatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cognicore/breachwatch/pkg/breachwatch/identity"
	"github.com/cognicore/breachwatch/pkg/breachwatch/ingest"
	"github.com/cognicore/breachwatch/pkg/breachwatch/normalize"
	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
	"github.com/cognicore/breachwatch/pkg/breachwatch/store"
)

// Breachwatch is the pipeline facade
type Breachwatch struct {
	store       store.Store
	normalizer  *normalize.Normalizer
	coordinator *ingest.Coordinator
	logger      *slog.Logger
}

// Options configures a Breachwatch instance. Store is required.
type Options struct {
	Store      store.Store
	Normalizer *normalize.Normalizer
	Reporter   ingest.Reporter
	Notifier   ingest.Notifier
	Logger     *slog.Logger
	Now        func() time.Time
}

// New creates a Breachwatch instance with the given dependencies
func New(opts Options) (*Breachwatch, error) {
	if opts.Store == nil {
		return nil, errors.New("breachwatch: store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Normalizer == nil {
		opts.Normalizer = normalize.New(normalize.Options{Logger: opts.Logger})
	}
	return &Breachwatch{
		store:      opts.Store,
		normalizer: opts.Normalizer,
		logger:     opts.Logger,
		coordinator: ingest.New(ingest.Options{
			Normalizer: opts.Normalizer,
			Catalog:    opts.Store,
			Writer:     opts.Store,
			Reporter:   opts.Reporter,
			Notifier:   opts.Notifier,
			Logger:     opts.Logger,
			Now:        opts.Now,
		}),
	}, nil
}

// Close cleanly shuts down the Breachwatch instance
func (b *Breachwatch) Close() error {
	return b.store.Close()
}

// Ingest runs one source's batch through the pipeline.
func (b *Breachwatch) Ingest(ctx context.Context, sourceID int, batch []record.RawExtraction) (*ingest.Report, error) {
	return b.coordinator.Run(ctx, sourceID, batch)
}

// Preview normalizes and resolves raw against the catalog without writing
// anything.
func (b *Breachwatch) Preview(ctx context.Context, raw record.RawExtraction) (identity.Resolution, error) {
	rec, err := b.normalizer.Normalize(raw)
	if err != nil {
		return identity.Resolution{}, err
	}
	return identity.NewResolver(b.store, b.logger).Resolve(ctx, rec)
}

// Lookup returns the catalog record for uid.
func (b *Breachwatch) Lookup(ctx context.Context, uid string) (record.BreachRecord, bool, error) {
	return b.store.Lookup(ctx, uid)
}

// Conflicts returns the conflicts recorded for uid, or all of them when uid is
// empty.
func (b *Breachwatch) Conflicts(ctx context.Context, uid string) ([]store.StoredConflict, error) {
	return b.store.Conflicts(ctx, uid)
}
