package temporal

import (
	"strings"
	"unicode"
)

var defaultNonDateTokens = []string{
	"unknown", "n/a", "na", "n.a.", "none", "null", "nil", "tbd", "tba", "pending",
	"ongoing", "unavailable", "not available", "not provided", "not disclosed",
	"undisclosed", "not known", "unknown at this time", "see notice", "see letter",
	"various", "multiple", "-", "--", "?",
}

var defaultOrgStopWords = []string{
	"inc", "llc", "llp", "ltd", "plc", "corp", "corporation", "company", "co", "group",
	"bank", "health", "healthcare", "dental", "hospital", "clinic", "medical", "pharmacy",
	"university", "college", "school", "district", "county", "city", "department",
	"services", "systems", "solutions", "insurance", "credit", "union", "associates",
	"partners", "foundation", "center", "centre", "trust", "holdings", "technologies",
	"gmbh", "sa", "ag",
}

// guard runs the cheap "is this a date at all" checks in order and reports the
// first one that fires.
func (p *Parser) guard(s string) (string, bool) {
	if s == "" {
		return ReasonEmpty, true
	}

	lower := strings.ToLower(strings.Trim(s, " .,;:"))
	if _, ok := p.nonDate[lower]; ok || lower == "" {
		return ReasonNonDateToken, true
	}

	var letters, digits int
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		}
	}
	if digits == 0 {
		return ReasonNoDigits, true
	}

	words := wordsOf(lower)
	hasMonth := false
	for _, w := range words {
		if _, ok := monthNames[w]; ok {
			hasMonth = true
			break
		}
	}
	if hasMonth {
		return "", false
	}

	for _, w := range words {
		if _, ok := p.orgWords[w]; ok {
			return ReasonOrganization, true
		}
	}

	// letters that are not filler words, weighed against digits
	var loose int
	for _, w := range words {
		if _, ok := fillerWords[w]; ok {
			continue
		}
		if _, ok := weekdayNames[w]; ok {
			continue
		}
		for _, r := range w {
			if unicode.IsLetter(r) {
				loose++
			}
		}
	}
	if loose > 3*digits {
		return ReasonLetterHeavy, true
	}
	return "", false
}

// wordsOf splits lowercased text into alphanumeric words.
func wordsOf(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
