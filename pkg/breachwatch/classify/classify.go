// Package classify maps free-text descriptions of leaked information onto the fixed
// data-type taxonomy used by the catalog.
package classify

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/Masterminds/semver/v3"
)

// Fixed taxonomy tags, in presentation order.
const (
	GovernmentID = "government-id"
	Financial    = "financial"
	Medical      = "medical"
	Credentials  = "credentials"
	Biometric    = "biometric"
	ContactInfo  = "contact-info"
	OtherPII     = "other-pii"
)

// Tags lists every tag in presentation order.
var Tags = []string{GovernmentID, Financial, Medical, Credentials, Biometric, ContactInfo, OtherPII}

var tagOrder = func() map[string]int {
	m := make(map[string]int, len(Tags))
	for i, t := range Tags {
		m[t] = i
	}
	return m
}()

// IsTag reports whether tag belongs to the taxonomy.
func IsTag(tag string) bool {
	_, ok := tagOrder[tag]
	return ok
}

// Rule activates Tag when any of its phrases appears in the text.
type Rule struct {
	Tag     string
	Phrases []string
}

// Taxonomy is an ordered, versioned rule set.
type Taxonomy struct {
	version *semver.Version
	rules   []compiledRule
}

type compiledRule struct {
	tag     string
	phrases []string // normalized, padded with spaces
}

// NewTaxonomy builds a taxonomy. Unknown tags and empty rule sets are rejected.
func NewTaxonomy(version string, rules []Rule) (*Taxonomy, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return nil, fmt.Errorf("taxonomy version %q: %w", version, err)
	}

	t := &Taxonomy{version: v}
	for _, r := range rules {
		if !IsTag(r.Tag) {
			return nil, fmt.Errorf("unknown taxonomy tag %q", r.Tag)
		}
		cr := compiledRule{tag: r.Tag}
		for _, p := range r.Phrases {
			norm := normalize(p)
			if strings.TrimSpace(norm) == "" {
				continue
			}
			cr.phrases = append(cr.phrases, norm)
		}
		if len(cr.phrases) > 0 {
			t.rules = append(t.rules, cr)
		}
	}
	if len(t.rules) == 0 {
		return nil, fmt.Errorf("taxonomy %s has no usable rules", v)
	}
	return t, nil
}

// Version returns the taxonomy's semantic version.
func (t *Taxonomy) Version() *semver.Version { return t.version }

// Classify returns the tags whose rules match text, in presentation order. Every
// rule sees the full text, so the result does not depend on rule order. When no
// rule matches the result is [other-pii].
func (t *Taxonomy) Classify(text string) []string {
	padded := normalize(text)

	hits := make(map[string]struct{})
	for _, r := range t.rules {
		if _, done := hits[r.tag]; done {
			continue
		}
		for _, p := range r.phrases {
			if strings.Contains(padded, p) {
				hits[r.tag] = struct{}{}
				break
			}
		}
	}

	if len(hits) == 0 {
		return []string{OtherPII}
	}
	return SortTags(keys(hits))
}

// SortTags orders tags by presentation order and drops unknown ones and repeats.
func SortTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, dup := seen[t]; dup || !IsTag(t) {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return tagOrder[out[i]] < tagOrder[out[j]] })
	return out
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// normalize lowercases s, folds every non-alphanumeric rune to a space and pads
// the result so phrases only match on word boundaries.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	if !lastSpace {
		b.WriteByte(' ')
	}
	return b.String()
}
