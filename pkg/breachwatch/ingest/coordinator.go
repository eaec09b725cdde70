// Package ingest drives one source's batch of raw extractions through
// normalization, identity resolution and persistence.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cognicore/breachwatch/pkg/breachwatch/identity"
	"github.com/cognicore/breachwatch/pkg/breachwatch/internalerr"
	"github.com/cognicore/breachwatch/pkg/breachwatch/normalize"
	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
	"github.com/cognicore/breachwatch/pkg/breachwatch/store"
)

// Reporter receives the report of every finished run.
type Reporter interface {
	ReportRun(r *Report)
}

// Event is emitted for every record that was inserted or updated.
type Event struct {
	RunID   string
	Outcome identity.Outcome
	Record  record.BreachRecord
	Changed []string
}

// Notifier publishes ingestion events. Failures are logged, never fatal.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Options configures a Coordinator. Catalog and Writer are required.
type Options struct {
	Normalizer *normalize.Normalizer
	Catalog    store.Catalog
	Writer     store.Writer
	Reporter   Reporter
	Notifier   Notifier
	Logger     *slog.Logger
	Now        func() time.Time
}

// Coordinator runs batches. Runs are independent: a Coordinator may be shared
// by concurrent runs of different sources as long as its collaborators allow it.
type Coordinator struct {
	normalizer *normalize.Normalizer
	catalog    store.Catalog
	writer     store.Writer
	reporter   Reporter
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
	ids        *store.IDs
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		normalizer: opts.Normalizer,
		catalog:    opts.Catalog,
		writer:     opts.Writer,
		reporter:   opts.Reporter,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
		now:        opts.Now,
		ids:        store.NewIDs(),
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.normalizer == nil {
		c.normalizer = normalize.New(normalize.Options{Logger: c.logger})
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Run processes batch in order. A record that fails is counted and logged and
// the run moves on; Run returns an error only when ctx ends first, together
// with the report of what was processed so far.
func (c *Coordinator) Run(ctx context.Context, sourceID int, batch []record.RawExtraction) (*Report, error) {
	start := c.now()
	report := &Report{
		RunID:     c.ids.New(start),
		SourceID:  sourceID,
		StartedAt: start,
	}
	log := c.logger.With("run_id", report.RunID, "source_id", sourceID)
	log.Info("ingestion run started", "records", len(batch))

	cat := newOverlay(c.catalog)
	resolver := identity.NewResolver(cat, log)

	var runErr error
	for i, raw := range batch {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := c.process(ctx, log, cat, resolver, report, i, raw); err != nil {
			runErr = err
			break
		}
	}

	report.FinishedAt = c.now()
	if runErr != nil {
		log.Warn("ingestion run interrupted", "error", runErr, "processed", report.Processed, "records", len(batch))
	} else {
		log.Info("ingestion run finished",
			"processed", report.Processed,
			"inserted", report.Inserted,
			"updated", report.Updated,
			"skipped", report.Skipped,
			"normalization_failures", report.NormalizationFailures,
			"persistence_failures", report.PersistenceFailures,
			"conflicts", len(report.Conflicts),
			"duration", report.Duration())
	}
	if c.reporter != nil {
		c.reporter.ReportRun(report)
	}
	return report, runErr
}

// process handles one record. It returns an error only when ctx ended while the
// record was in flight; the record is then not counted.
func (c *Coordinator) process(ctx context.Context, log *slog.Logger, cat *overlay, resolver *identity.Resolver, report *Report, i int, raw record.RawExtraction) error {
	fail := func(stage string, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.Processed++
		if stage == StageNormalize {
			report.NormalizationFailures++
		} else {
			report.PersistenceFailures++
		}
		report.Errors = append(report.Errors, RecordError{Index: i, OriginURL: raw.OriginURL, Stage: stage, Err: err})
		log.Warn("record skipped", "index", i, "stage", stage, "origin_url", raw.OriginURL, "error", err)
		return nil
	}

	switch {
	case raw.SourceID == 0:
		raw.SourceID = report.SourceID
	case raw.SourceID != report.SourceID:
		return fail(StageNormalize, fmt.Errorf("%w: extraction source_id %d in a run for source %d",
			internalerr.ErrInvalidInput, raw.SourceID, report.SourceID))
	}

	rec, err := c.normalizer.Normalize(raw)
	if err != nil {
		return fail(StageNormalize, err)
	}

	res, err := resolver.Resolve(ctx, rec)
	if err != nil {
		return fail(StageResolve, err)
	}

	if len(res.Conflicts) > 0 {
		report.Conflicts = append(report.Conflicts, res.Conflicts...)
		if err := c.writer.RecordConflicts(ctx, report.RunID, res.Conflicts); err != nil {
			log.Error("failed to record identity conflicts", "incident_uid", res.UID, "error", err)
		}
	}

	var op store.Op
	switch res.Outcome {
	case identity.New:
		op, err = store.NewOp(store.OpInsert, res.Record)
	case identity.Update:
		op, err = store.NewOp(store.OpUpdate, res.Record, res.Changed...)
	default:
		report.Processed++
		report.count(res.Outcome)
		log.Debug("duplicate record", "index", i, "incident_uid", res.UID)
		return nil
	}
	if err == nil {
		err = c.writer.Upsert(ctx, op)
	}
	if err != nil {
		return fail(StagePersist, err)
	}

	cat.put(res.Record)
	report.Processed++
	report.count(res.Outcome)
	log.Debug("record stored", "index", i, "incident_uid", res.UID, "outcome", string(res.Outcome), "changed", res.Changed)

	if c.notifier != nil {
		ev := Event{RunID: report.RunID, Outcome: res.Outcome, Record: res.Record, Changed: res.Changed}
		if err := c.notifier.Notify(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("failed to publish ingestion event", "incident_uid", res.UID, "error", err)
		}
	}
	return nil
}
