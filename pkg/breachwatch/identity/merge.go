package identity

import (
	"strconv"
	"strings"

	"github.com/cognicore/breachwatch/pkg/breachwatch/classify"
	"github.com/cognicore/breachwatch/pkg/breachwatch/quantity"
	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
)

// confidentDate is the confidence at or above which a parsed date is treated
// as a stated fact rather than a guess.
const confidentDate = 0.5

var precisionRank = map[string]int{"year": 1, "month": 2, "day": 3}

// merger folds an incoming record into the catalog entry for the same identity.
// The existing value wins unless the incoming one fills a gap or is strictly
// more informative.
type merger struct {
	prev      record.BreachRecord
	out       record.BreachRecord
	incoming  record.BreachRecord
	kind      record.ConflictKind
	changed   []string
	conflicts []record.Conflict
}

func merge(existing, incoming record.BreachRecord) (record.BreachRecord, []string, []record.Conflict) {
	m := &merger{
		prev:     existing,
		out:      existing.Clone(),
		incoming: incoming,
		kind:     record.ValueConflict,
	}
	if existing.IdentityKind == record.WeakKey {
		m.kind = record.WeakKeyCollision
	}

	m.origin()
	m.organization()
	m.date(record.FieldBreachDate, &m.out.BreachDate, incoming.BreachDate)
	m.date(record.FieldReportedDate, &m.out.ReportedDate, incoming.ReportedDate)
	m.affected()
	m.leaked()
	m.dataTypes()
	m.naturalKey()

	if len(m.changed) > 0 {
		m.out.RawPayload = incoming.Clone().RawPayload
		m.changed = append(m.changed, record.FieldRawPayload)
	}
	return m.out, m.changed, m.conflicts
}

func (m *merger) change(field string) { m.changed = append(m.changed, field) }

func (m *merger) conflict(field, existing, incoming string) {
	m.conflicts = append(m.conflicts, record.Conflict{
		IncidentUID: m.out.IncidentUID,
		SourceID:    m.out.SourceID,
		Field:       field,
		Existing:    existing,
		Incoming:    incoming,
		Kind:        m.kind,
	})
}

func (m *merger) origin() {
	in := m.incoming.OriginURL
	if in == "" || in == m.out.OriginURL {
		return
	}
	if m.out.OriginURL == "" {
		m.out.OriginURL = in
		m.change(record.FieldOriginURL)
		return
	}
	m.conflict(record.FieldOriginURL, m.out.OriginURL, in)
}

func (m *merger) organization() {
	in := m.incoming.OrganizationName
	if in == "" || NormalizeOrg(in) == NormalizeOrg(m.out.OrganizationName) {
		return
	}
	m.conflict(record.FieldOrganizationName, m.out.OrganizationName, in)
}

func (m *merger) date(field string, cur *record.DateField, in record.DateField) {
	if !in.IsSet() {
		return
	}
	if !cur.IsSet() {
		*cur = in
		m.change(field)
		return
	}
	if cur.ISO() == in.ISO() && cur.Precision == in.Precision {
		return
	}

	switch {
	case within(*cur, in) && precisionRank[in.Precision] > precisionRank[cur.Precision]:
		// "March 2024" refined to "March 18, 2024"
		*cur = in
		m.change(field)
	case within(in, *cur):
		// incoming is a coarser statement of the same date
	case cur.Confidence < confidentDate && in.Confidence >= confidentDate:
		*cur = in
		m.change(field)
	default:
		m.conflict(field, cur.ISO(), in.ISO())
	}
}

// within reports whether the finer date lies inside the period the coarser
// date states.
func within(coarse, fine record.DateField) bool {
	a, b := coarse.Value, fine.Value
	switch coarse.Precision {
	case "year":
		return a.Year() == b.Year()
	case "month":
		return a.Year() == b.Year() && a.Month() == b.Month()
	default:
		return a.Equal(*b)
	}
}

func (m *merger) affected() {
	in := m.incoming
	if in.AffectedIndividuals == nil {
		return
	}
	cur := m.out.AffectedIndividuals
	set := func() {
		n := *in.AffectedIndividuals
		m.out.AffectedIndividuals = &n
		m.out.AffectedConfidence = in.AffectedConfidence
		m.out.AffectedRaw = in.AffectedRaw
		m.change(record.FieldAffected)
	}

	switch {
	case cur == nil:
		set()
	case *cur == *in.AffectedIndividuals:
		if m.out.AffectedConfidence != quantity.Exact && in.AffectedConfidence == quantity.Exact {
			set()
		}
	case m.out.AffectedConfidence != quantity.Exact && in.AffectedConfidence == quantity.Exact:
		set()
	case m.out.AffectedConfidence == quantity.Exact && in.AffectedConfidence != quantity.Exact:
		// an estimate never overrides a stated count
	default:
		m.conflict(record.FieldAffected, strconv.FormatInt(*cur, 10), strconv.FormatInt(*in.AffectedIndividuals, 10))
	}
}

func (m *merger) leaked() {
	in := strings.TrimSpace(m.incoming.WhatWasLeaked)
	cur := m.out.WhatWasLeaked
	if in == "" || sameText(cur, in) {
		return
	}
	if cur == "" {
		m.out.WhatWasLeaked = in
		m.change(record.FieldWhatWasLeaked)
		return
	}

	curStem, curTrunc := truncated(cur)
	inStem, _ := truncated(in)
	switch {
	case len(in) > len(curStem) && hasPrefixFold(in, curStem) && (curTrunc || len(in) > len(cur)):
		m.out.WhatWasLeaked = in
		m.change(record.FieldWhatWasLeaked)
	case hasPrefixFold(cur, inStem):
		// incoming is a truncated copy
	default:
		m.conflict(record.FieldWhatWasLeaked, cur, in)
	}
}

// truncated strips a trailing ellipsis.
func truncated(s string) (string, bool) {
	t := strings.TrimSpace(s)
	for _, suffix := range []string{"...", "…"} {
		if strings.HasSuffix(t, suffix) {
			return strings.TrimSpace(strings.TrimSuffix(t, suffix)), true
		}
	}
	return t, false
}

func sameText(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func (m *merger) dataTypes() {
	in := m.incoming.DataTypes
	if len(in) == 0 || isFallback(in, m.incoming.WhatWasLeaked) && len(m.out.DataTypes) > 0 {
		return
	}

	var next []string
	if isFallback(m.prev.DataTypes, m.prev.WhatWasLeaked) || len(m.prev.DataTypes) == 0 {
		next = classify.SortTags(in)
	} else {
		next = classify.SortTags(append(append([]string(nil), m.out.DataTypes...), in...))
	}
	if equalTags(next, m.out.DataTypes) {
		return
	}
	m.out.DataTypes = next
	if m.incoming.TaxonomyVersion != "" {
		m.out.TaxonomyVersion = m.incoming.TaxonomyVersion
	}
	m.change(record.FieldDataTypes)
}

// isFallback reports whether tags is the classifier's no-match answer. A
// non-empty leaked text means other-pii was actually matched.
func isFallback(tags []string, leaked string) bool {
	return len(tags) == 1 && tags[0] == classify.OtherPII && strings.TrimSpace(leaked) == ""
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (m *merger) naturalKey() {
	in := strings.TrimSpace(m.incoming.NaturalKey)
	switch {
	case in == "" || strings.EqualFold(in, m.out.NaturalKey):
	case m.out.NaturalKey == "":
		m.out.NaturalKey = in
		m.change(record.FieldNaturalKey)
	default:
		m.conflict(record.FieldNaturalKey, m.out.NaturalKey, in)
	}
}
