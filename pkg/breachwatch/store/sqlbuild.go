package store

import (
	"fmt"
	"strings"

	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
)

// Dialect captures what differs between the SQL backends. Timestamps are passed
// through to the driver as given.
type Dialect struct {
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Distinct is the null-safe inequality operator.
	Distinct string
}

type argList struct {
	d    Dialect
	args []any
}

func (a *argList) add(v any) string {
	a.args = append(a.args, v)
	return a.d.Placeholder(len(a.args))
}

// UpsertSQL renders an insert op. A conflicting incident_uid updates the row
// only when some column actually differs, which keeps re-runs idempotent. An
// existing origin_url is never cleared.
func UpsertSQL(d Dialect, op Op, now any) (string, []any) {
	a := &argList{d: d}
	cols := []string{ColIncidentUID, ColSourceID, record.FieldOriginURL}
	vals := []string{a.add(op.IncidentUID), a.add(op.SourceID), a.add(originArg(op.OriginURL))}

	keys := SortedKeys(op.Fields)
	for _, k := range keys {
		cols = append(cols, k)
		vals = append(vals, a.add(op.Fields[k]))
	}
	ts := a.add(now)
	cols = append(cols, "created_at", "updated_at")
	vals = append(vals, ts, ts)

	sets := []string{fmt.Sprintf("%[1]s = COALESCE(excluded.%[1]s, breaches.%[1]s)", record.FieldOriginURL)}
	diffs := []string{fmt.Sprintf("(excluded.%[1]s IS NOT NULL AND breaches.%[1]s %[2]s excluded.%[1]s)", record.FieldOriginURL, d.Distinct)}
	for _, k := range keys {
		sets = append(sets, fmt.Sprintf("%[1]s = excluded.%[1]s", k))
		diffs = append(diffs, fmt.Sprintf("breaches.%[1]s %[2]s excluded.%[1]s", k, d.Distinct))
	}
	sets = append(sets, "updated_at = excluded.updated_at")

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO breaches (%s)\nVALUES (%s)\n", strings.Join(cols, ", "), strings.Join(vals, ", "))
	fmt.Fprintf(&b, "ON CONFLICT(%s) DO UPDATE SET\n\t%s\n", ColIncidentUID, strings.Join(sets, ",\n\t"))
	fmt.Fprintf(&b, "WHERE %s", strings.Join(diffs, "\n\tOR "))
	return b.String(), a.args
}

// UpdateSQL renders an update op. The statement affects no row when the values
// are already stored.
func UpdateSQL(d Dialect, op Op, now any) (string, []any) {
	a := &argList{d: d}
	var sets, diffs []string
	if op.OriginURL != nil {
		p := a.add(*op.OriginURL)
		sets = append(sets, fmt.Sprintf("%s = %s", record.FieldOriginURL, p))
		diffs = append(diffs, fmt.Sprintf("%s %s %s", record.FieldOriginURL, d.Distinct, p))
	}
	for _, k := range SortedKeys(op.Fields) {
		p := a.add(op.Fields[k])
		sets = append(sets, fmt.Sprintf("%s = %s", k, p))
		diffs = append(diffs, fmt.Sprintf("%s %s %s", k, d.Distinct, p))
	}
	sets = append(sets, "updated_at = "+a.add(now))
	uid := a.add(op.IncidentUID)

	if len(diffs) == 0 {
		diffs = []string{"FALSE"}
	}
	return fmt.Sprintf("UPDATE breaches SET %s\nWHERE %s = %s AND (%s)",
		strings.Join(sets, ", "), ColIncidentUID, uid, strings.Join(diffs, " OR ")), a.args
}

// SelectSQL renders a query for catalog rows matching where.
func SelectSQL(where string) string {
	return fmt.Sprintf("SELECT %s FROM breaches WHERE %s", strings.Join(SelectColumns, ", "), where)
}

func originArg(origin *string) any {
	if origin == nil || *origin == "" {
		return nil
	}
	return *origin
}
