package normalize

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
)

// FieldNaturalKey is the canonical name for an adapter-supplied case number.
const FieldNaturalKey = record.FieldNaturalKey

// SourceConfig describes one publisher: its locale and which raw keys carry each
// canonical field. Aliases listed here are tried before DefaultFields.
type SourceConfig struct {
	ID     int
	Name   string
	Locale string
	Fields map[string][]string
}

// DefaultFields is the alias table used for every source, after the source's own
// aliases.
var DefaultFields = map[string][]string{
	record.FieldOrganizationName: {
		"organization_name", "organization", "org", "organisation", "entity",
		"entity_name", "company", "company_name", "name_of_covered_entity",
		"covered_entity", "business_name", "reporting_entity", "name",
	},
	record.FieldOriginURL: {"origin_url", "url", "link", "notice_url", "permalink", "href"},
	record.FieldBreachDate: {
		"breach_date", "date_of_breach", "date_text", "breach_occurred",
		"date_breach_occurred", "incident_date", "breach_dates", "dates_of_breach", "date",
	},
	record.FieldReportedDate: {
		"reported_date", "date_reported", "reported", "notice_date", "date_of_notice",
		"date_notice_provided", "date_submitted", "submitted", "published", "publication_date",
	},
	record.FieldAffected: {
		"affected_individuals", "affected", "affected_text", "individuals_affected",
		"number_affected", "total_affected", "residents_affected",
		"total_persons_affected", "number_of_individuals_affected",
	},
	record.FieldWhatWasLeaked: {
		"what_was_leaked", "information_compromised", "data_compromised", "data_types",
		"information_acquired", "type_of_information", "type_of_breach", "description",
	},
	FieldNaturalKey: {"natural_key", "case_number", "case_id", "case_no", "reference_number", "notice_id", "tracking_number"},
}

// fieldMap resolves canonical fields against one extraction's keys.
type fieldMap struct {
	aliases map[string][]string // canonical -> normalized aliases, source first
}

func newFieldMap(src SourceConfig) fieldMap {
	fm := fieldMap{aliases: make(map[string][]string)}
	add := func(canonical string, list []string) {
		for _, a := range list {
			if k := normalizeKey(a); k != "" {
				fm.aliases[canonical] = append(fm.aliases[canonical], k)
			}
		}
	}
	for canonical, list := range src.Fields {
		add(canonical, list)
	}
	for canonical, list := range DefaultFields {
		add(canonical, list)
	}
	return fm
}

// index keys an extraction by normalized key. When two raw keys normalize to the
// same name the lexically smaller raw key wins.
func index(fields map[string]any) map[string]any {
	raw := make([]string, 0, len(fields))
	for k := range fields {
		raw = append(raw, k)
	}
	sort.Strings(raw)

	out := make(map[string]any, len(fields))
	for _, k := range raw {
		nk := normalizeKey(k)
		if _, taken := out[nk]; !taken {
			out[nk] = fields[k]
		}
	}
	return out
}

// lookup returns the first alias holding a non-empty value.
func (fm fieldMap) lookup(idx map[string]any, canonical string) (any, bool) {
	for _, alias := range fm.aliases[canonical] {
		v, ok := idx[alias]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func (fm fieldMap) text(idx map[string]any, canonical string) string {
	v, ok := fm.lookup(idx, canonical)
	if !ok {
		return ""
	}
	return strings.TrimSpace(textOf(v))
}

// normalizeKey maps "Name of Covered Entity" and "name-of-covered-entity" to
// "name_of_covered_entity".
func normalizeKey(k string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(k)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case []string:
		return strings.Join(t, "; ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := strings.TrimSpace(textOf(e)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		return ""
	}
}
