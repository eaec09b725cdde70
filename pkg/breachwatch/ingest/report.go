package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/cognicore/breachwatch/pkg/breachwatch/identity"
	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
)

// Stage names where a record failed.
const (
	StageNormalize = "normalize"
	StageResolve   = "resolve"
	StagePersist   = "persist"
)

// RecordError describes one record that was not ingested.
type RecordError struct {
	Index     int // position in the batch
	OriginURL string
	Stage     string
	Err       error
}

func (e RecordError) Error() string {
	if e.OriginURL != "" {
		return fmt.Sprintf("record %d (%s): %s: %v", e.Index, e.OriginURL, e.Stage, e.Err)
	}
	return fmt.Sprintf("record %d: %s: %v", e.Index, e.Stage, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// Report summarizes one coordinator run.
// Processed always equals Inserted + Updated + Skipped + NormalizationFailures
// + PersistenceFailures.
type Report struct {
	RunID      string
	SourceID   int
	StartedAt  time.Time
	FinishedAt time.Time

	Processed             int
	Inserted              int
	Updated               int
	Skipped               int // duplicates
	NormalizationFailures int
	PersistenceFailures   int

	Conflicts []record.Conflict
	Errors    []RecordError
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed returns the number of records that were not ingested.
func (r *Report) Failed() int {
	return r.NormalizationFailures + r.PersistenceFailures
}

func (r *Report) count(o identity.Outcome) {
	switch o {
	case identity.New:
		r.Inserted++
	case identity.Update:
		r.Updated++
	default:
		r.Skipped++
	}
}

// String formats the report for terminal output.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (source %d) finished in %s\n", r.RunID, r.SourceID, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "  processed: %d\n", r.Processed)
	fmt.Fprintf(&b, "  inserted:  %d\n", r.Inserted)
	fmt.Fprintf(&b, "  updated:   %d\n", r.Updated)
	fmt.Fprintf(&b, "  skipped:   %d\n", r.Skipped)
	fmt.Fprintf(&b, "  failed:    %d (normalization %d, persistence %d)\n",
		r.Failed(), r.NormalizationFailures, r.PersistenceFailures)
	if len(r.Conflicts) > 0 {
		fmt.Fprintf(&b, "  conflicts: %d\n", len(r.Conflicts))
	}
	return b.String()
}
