package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cognicore/breachwatch/pkg/breachwatch/identity"
	"github.com/cognicore/breachwatch/pkg/breachwatch/internalerr"
	"github.com/cognicore/breachwatch/pkg/breachwatch/normalize"
	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
	"github.com/cognicore/breachwatch/pkg/breachwatch/store"
	"github.com/cognicore/breachwatch/pkg/breachwatch/store/memstore"
	"github.com/cognicore/breachwatch/pkg/breachwatch/temporal"
)

var testNow = time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)

func newTestCoordinator(s *memstore.Store, opts Options) *Coordinator {
	opts.Normalizer = normalize.New(normalize.Options{
		Dates: temporal.New(temporal.Options{Now: func() time.Time { return testNow }}),
	})
	if opts.Catalog == nil {
		opts.Catalog = s
	}
	if opts.Writer == nil {
		opts.Writer = s
	}
	opts.Now = func() time.Time { return testNow }
	return New(opts)
}

func raw(origin string, fields map[string]any) record.RawExtraction {
	return record.RawExtraction{OriginURL: origin, Fields: fields}
}

func checkCounts(t *testing.T, r *Report) {
	t.Helper()
	sum := r.Inserted + r.Updated + r.Skipped + r.NormalizationFailures + r.PersistenceFailures
	if r.Processed != sum {
		t.Errorf("processed %d != inserted %d + updated %d + skipped %d + normalization %d + persistence %d",
			r.Processed, r.Inserted, r.Updated, r.Skipped, r.NormalizationFailures, r.PersistenceFailures)
	}
}

func TestRunWithinBatchUpdate(t *testing.T) {
	s := memstore.New()
	c := newTestCoordinator(s, Options{})

	batch := []record.RawExtraction{
		raw("https://ag.example.gov/n/1", map[string]any{"organization_name": "Acme Health", "scraped_at": "t1"}),
		raw("https://ag.example.gov/n/1", map[string]any{"organization_name": "Acme Health", "scraped_at": "t2", "affected": "4000"}),
	}
	report, err := c.Run(context.Background(), 4, batch)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkCounts(t, report)
	if report.Inserted != 1 || report.Updated != 1 {
		t.Errorf("inserted=%d updated=%d, want 1/1", report.Inserted, report.Updated)
	}
	if report.RunID == "" || report.SourceID != 4 {
		t.Errorf("report identity: %q %d", report.RunID, report.SourceID)
	}

	rec, ok, _ := s.LookupByOrigin(context.Background(), 4, "https://ag.example.gov/n/1")
	if !ok || rec.AffectedIndividuals == nil || *rec.AffectedIndividuals != 4000 {
		t.Errorf("stored record = %+v", rec)
	}
}

func TestRunContinuesAfterFailures(t *testing.T) {
	s := memstore.New()
	c := newTestCoordinator(s, Options{})

	batch := []record.RawExtraction{
		raw("", map[string]any{"organization_name": "Acme Health", "breach_date": "2024-03-18"}),
		raw("", map[string]any{"breach_date": "2024-03-18"}),
		{SourceID: 9, Fields: map[string]any{"organization_name": "Other Source Co"}},
		raw("", map[string]any{"organization_name": "Beta Bank", "date_text": "Jan 17 2029", "affected_text": "approx. 12,000"}),
	}
	report, err := c.Run(context.Background(), 4, batch)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkCounts(t, report)
	if report.Inserted != 2 || report.NormalizationFailures != 2 {
		t.Errorf("inserted=%d normalization failures=%d, want 2/2", report.Inserted, report.NormalizationFailures)
	}
	if len(report.Errors) != 2 {
		t.Fatalf("errors = %v", report.Errors)
	}
	for _, e := range report.Errors {
		if !errors.Is(e, internalerr.ErrInvalidInput) || e.Stage != StageNormalize {
			t.Errorf("unexpected record error: %v", e)
		}
	}
	if report.Errors[0].Index != 1 || report.Errors[1].Index != 2 {
		t.Errorf("error indexes = %d, %d", report.Errors[0].Index, report.Errors[1].Index)
	}
	if s.Len() != 2 {
		t.Errorf("catalog holds %d entries, want 2", s.Len())
	}
}

type failingWriter struct {
	*memstore.Store
	failOrg string
}

func (w failingWriter) Upsert(ctx context.Context, op store.Op) error {
	if op.Fields[record.FieldOrganizationName] == w.failOrg {
		return internalerr.ErrStoreUnavailable
	}
	return w.Store.Upsert(ctx, op)
}

func TestRunPersistenceFailure(t *testing.T) {
	s := memstore.New()
	c := newTestCoordinator(s, Options{Writer: failingWriter{Store: s, failOrg: "Broken Corp"}})

	batch := []record.RawExtraction{
		raw("https://ag.example.gov/n/1", map[string]any{"organization_name": "Broken Corp"}),
		raw("https://ag.example.gov/n/2", map[string]any{"organization_name": "Fine Corp"}),
	}
	report, err := c.Run(context.Background(), 4, batch)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkCounts(t, report)
	if report.PersistenceFailures != 1 || report.Inserted != 1 {
		t.Errorf("persistence failures=%d inserted=%d, want 1/1", report.PersistenceFailures, report.Inserted)
	}
	if len(report.Errors) != 1 || report.Errors[0].Stage != StagePersist ||
		!errors.Is(report.Errors[0], internalerr.ErrStoreUnavailable) {
		t.Errorf("errors = %v", report.Errors)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	s := memstore.New()
	c := newTestCoordinator(s, Options{})
	batch := []record.RawExtraction{
		raw("https://ag.example.gov/n/1", map[string]any{"organization_name": "Acme Health", "affected": "1,200"}),
		raw("", map[string]any{"organization_name": "Beta Bank", "breach_date": "March 2024"}),
	}

	if _, err := c.Run(context.Background(), 4, batch); err != nil {
		t.Fatal(err)
	}
	changes := s.Changes()

	report, err := c.Run(context.Background(), 4, batch)
	if err != nil {
		t.Fatal(err)
	}
	checkCounts(t, report)
	if report.Skipped != 2 || report.Inserted+report.Updated != 0 {
		t.Errorf("re-run: %+v", report)
	}
	if s.Changes() != changes {
		t.Errorf("re-run modified the catalog: %d -> %d changes", changes, s.Changes())
	}
}

func TestRunOverlaySeesEarlierWrites(t *testing.T) {
	// The catalog never reflects writes, as with a lagging read replica.
	lagging := memstore.New()
	primary := memstore.New()
	c := newTestCoordinator(primary, Options{Catalog: lagging})

	rec := raw("", map[string]any{"organization_name": "Acme Health", "breach_date": "2024-03-18"})
	report, err := c.Run(context.Background(), 4, []record.RawExtraction{rec, rec})
	if err != nil {
		t.Fatal(err)
	}
	if report.Inserted != 1 || report.Skipped != 1 {
		t.Errorf("inserted=%d skipped=%d, want 1/1", report.Inserted, report.Skipped)
	}
}

func TestRunRecordsConflicts(t *testing.T) {
	s := memstore.New()
	c := newTestCoordinator(s, Options{})
	batch := []record.RawExtraction{
		raw("https://ag.example.gov/n/1", map[string]any{"organization_name": "Acme Health", "affected": "4,000"}),
		raw("https://ag.example.gov/n/1", map[string]any{"organization_name": "Acme Health", "affected": "5,000"}),
	}
	report, err := c.Run(context.Background(), 4, batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Conflicts) != 1 || report.Skipped != 1 {
		t.Fatalf("conflicts=%d skipped=%d", len(report.Conflicts), report.Skipped)
	}
	stored, _ := s.Conflicts(context.Background(), "")
	if len(stored) != 1 || stored[0].RunID != report.RunID {
		t.Errorf("stored conflicts = %+v", stored)
	}
}

type recordingReporter struct{ reports []*Report }

func (r *recordingReporter) ReportRun(rep *Report) { r.reports = append(r.reports, rep) }

type recordingNotifier struct {
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, e Event) error {
	n.events = append(n.events, e)
	return n.err
}

func TestRunReporterAndNotifier(t *testing.T) {
	s := memstore.New()
	rep := &recordingReporter{}
	notifier := &recordingNotifier{err: errors.New("broker down")}
	c := newTestCoordinator(s, Options{Reporter: rep, Notifier: notifier})

	batch := []record.RawExtraction{
		raw("https://ag.example.gov/n/1", map[string]any{"organization_name": "Acme Health"}),
		raw("https://ag.example.gov/n/1", map[string]any{"organization_name": "Acme Health", "affected": "10"}),
		raw("https://ag.example.gov/n/1", map[string]any{"organization_name": "Acme Health", "affected": "10"}),
	}
	report, err := c.Run(context.Background(), 4, batch)
	if err != nil {
		t.Fatalf("notifier failures must not fail the run: %v", err)
	}
	if len(rep.reports) != 1 || rep.reports[0] != report {
		t.Errorf("reporter called %d times", len(rep.reports))
	}
	if len(notifier.events) != 2 {
		t.Fatalf("events = %d, want 2 (duplicates are not published)", len(notifier.events))
	}
	if notifier.events[0].Outcome != identity.New || notifier.events[1].Outcome != identity.Update {
		t.Errorf("event outcomes = %s, %s", notifier.events[0].Outcome, notifier.events[1].Outcome)
	}
	if notifier.events[1].RunID != report.RunID {
		t.Error("events should carry the run id")
	}
}

func TestRunCanceled(t *testing.T) {
	s := memstore.New()
	c := newTestCoordinator(s, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := c.Run(ctx, 4, []record.RawExtraction{
		raw("", map[string]any{"organization_name": "Acme Health"}),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if report == nil || report.Processed != 0 {
		t.Errorf("partial report = %+v", report)
	}
	checkCounts(t, report)
}

func TestReportString(t *testing.T) {
	r := &Report{RunID: "01ABC", SourceID: 4, StartedAt: testNow, FinishedAt: testNow.Add(1500 * time.Millisecond),
		Processed: 5, Inserted: 2, Updated: 1, Skipped: 1, NormalizationFailures: 1,
		Conflicts: []record.Conflict{{Field: "affected_individuals"}}}
	out := r.String()
	for _, want := range []string{"Run 01ABC (source 4) finished in 1.5s", "processed: 5", "failed:    1 (normalization 1, persistence 0)", "conflicts: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %q:\n%s", want, out)
		}
	}
}
