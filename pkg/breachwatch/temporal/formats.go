package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	isoRe     = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})(?:[t ]\d{2}:\d{2}.*)?$`)
	ymdRe     = regexp.MustCompile(`^(\d{4})\s*[-/.]\s*(\d{1,2})\s*[-/.]\s*(\d{1,2})$`)
	abyRe     = regexp.MustCompile(`^(\d{1,2})\s*[-/.]\s*(\d{1,2})\s*[-/.]\s*(\d{4}|\d{2})$`)
	compactRe = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	ymRe      = regexp.MustCompile(`^(\d{4})\s*[-/.]\s*(\d{1,2})$`)
	myRe      = regexp.MustCompile(`^(\d{1,2})\s*[-/.]\s*(\d{4})$`)
	timeRe    = regexp.MustCompile(`\s+\d{1,2}:\d{2}(?::\d{2})?(?:\s*[ap]\.?m\.?)?(?:\s+[a-z]{2,4})?$`)
	ordinalRe = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th|er|e)$`)

	// separators between the two ends of a range or between listed dates
	rangeSplitRe = regexp.MustCompile(`\s+-\s+|\s*[–—]\s*|\s+(?:to|through|thru|until|and)\s+|\s*;\s*`)
	rangePrefix  = regexp.MustCompile(`^(?:between|from)\s+`)

	// two complete numeric dates joined by a bare hyphen: "03/01/2024-03/05/2024"
	numericRangeRe = regexp.MustCompile(`^(\d{1,2}[/.]\d{1,2}[/.]\d{2,4}|\d{4}-\d{1,2}-\d{1,2})\s*-\s*(\d{1,2}[/.]\d{1,2}[/.]\d{2,4}|\d{4}-\d{1,2}-\d{1,2})$`)
)

var monthNames = map[string]int{
	"january": 1, "jan": 1, "february": 2, "feb": 2, "march": 3, "mar": 3,
	"april": 4, "apr": 4, "may": 5, "june": 6, "jun": 6, "july": 7, "jul": 7,
	"august": 8, "aug": 8, "september": 9, "sep": 9, "sept": 9,
	"october": 10, "oct": 10, "november": 11, "nov": 11, "december": 12, "dec": 12,
	// de
	"januar": 1, "jänner": 1, "februar": 2, "märz": 3, "maerz": 3, "mai": 5,
	"juni": 6, "juli": 7, "oktober": 10, "okt": 10, "dezember": 12, "dez": 12,
	// fr
	"janvier": 1, "février": 2, "fevrier": 2, "mars": 3, "avril": 4, "juin": 6,
	"juillet": 7, "août": 8, "aout": 8, "septembre": 9, "octobre": 10,
	"novembre": 11, "décembre": 12, "decembre": 12,
}

var weekdayNames = map[string]struct{}{
	"monday": {}, "mon": {}, "tuesday": {}, "tue": {}, "tues": {}, "wednesday": {},
	"wed": {}, "thursday": {}, "thu": {}, "thur": {}, "thurs": {}, "friday": {},
	"fri": {}, "saturday": {}, "sat": {}, "sunday": {}, "sun": {},
}

var fillerWords = map[string]struct{}{
	"on": {}, "or": {}, "about": {}, "of": {}, "the": {}, "approximately": {},
	"approx": {}, "around": {}, "circa": {}, "c": {}, "ca": {}, "est": {},
	"estimated": {}, "as": {}, "beginning": {}, "since": {}, "starting": {},
	"from": {}, "between": {}, "in": {}, "early": {}, "late": {}, "mid": {},
	"at": {}, "discovered": {}, "occurred": {}, "reported": {}, "detected": {},
	"am": {}, "pm": {}, "de": {}, "le": {}, "der": {}, "den": {},
}

// parseRange handles "Jan 1 - Feb 3, 2024", "between X and Y" and ";" lists: the
// first date wins, borrowing its year from a later part when it has none. A
// start month after the end month belongs to the previous year.
func parseRange(s string, order Order, now time.Time) (candidate, bool) {
	lower := rangePrefix.ReplaceAllString(strings.ToLower(s), "")
	parts := rangeSplitRe.Split(lower, -1)
	if m := numericRangeRe.FindStringSubmatch(lower); m != nil {
		parts = m[1:]
	}
	if len(parts) < 2 {
		return candidate{}, false
	}

	first, ok := parseSingle(parts[0], order, now)
	if !ok {
		return candidate{}, false
	}
	if first.year == 0 {
		for _, part := range parts[1:] {
			if later, ok := parseSingle(part, order, now); ok && later.year != 0 {
				first.year = later.year
				if later.month != 0 && first.month > later.month {
					first.year--
				}
				break
			}
		}
	}
	if first.year == 0 {
		return candidate{}, false
	}
	if first.confidence > 0.7 {
		first.confidence = 0.7
	}
	return first, true
}

// parseSingle tries the numeric layouts, then the textual one. A textual date may
// come back with year 0, which only parseRange can repair.
func parseSingle(s string, order Order, now time.Time) (candidate, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, " ,;:()")
	s = timeRe.ReplaceAllString(s, "")

	if m := isoRe.FindStringSubmatch(s); m != nil {
		return dayCandidate(atoi(m[1]), atoi(m[2]), atoi(m[3]), 1.0), true
	}
	if m := ymdRe.FindStringSubmatch(s); m != nil {
		return dayCandidate(atoi(m[1]), atoi(m[2]), atoi(m[3]), 1.0), true
	}
	if m := abyRe.FindStringSubmatch(s); m != nil {
		return numericDMY(atoi(m[1]), atoi(m[2]), m[3], order, now)
	}
	if m := compactRe.FindStringSubmatch(s); m != nil {
		return dayCandidate(atoi(m[1]), atoi(m[2]), atoi(m[3]), 0.9), true
	}
	if m := ymRe.FindStringSubmatch(s); m != nil {
		return candidate{year: atoi(m[1]), month: atoi(m[2]), precision: PrecisionMonth, confidence: 0.6}, true
	}
	if m := myRe.FindStringSubmatch(s); m != nil {
		return candidate{year: atoi(m[2]), month: atoi(m[1]), precision: PrecisionMonth, confidence: 0.6}, true
	}
	return parseTextual(s)
}

func dayCandidate(y, m, d int, conf float64) candidate {
	return candidate{year: y, month: m, day: d, precision: PrecisionDay, confidence: conf}
}

// numericDMY resolves a.b.year where a and b are day and month in either order.
func numericDMY(a, b int, yearText string, order Order, now time.Time) (candidate, bool) {
	year := atoi(yearText)
	if len(yearText) == 2 {
		year = expandTwoDigitYear(year, now)
	}

	switch {
	case a > 12 && b > 12:
		return candidate{}, false
	case a > 12:
		return dayCandidate(year, b, a, 1.0), true
	case b > 12:
		return dayCandidate(year, a, b, 1.0), true
	case a == b:
		return dayCandidate(year, a, b, 1.0), true
	case order == DayFirst:
		return dayCandidate(year, b, a, 0.8), true
	default:
		return dayCandidate(year, a, b, 0.8), true
	}
}

func expandTwoDigitYear(yy int, now time.Time) int {
	if 2000+yy <= now.Year()+1 {
		return 2000 + yy
	}
	return 1900 + yy
}

// parseTextual reads dates that name their month: "Jan 17 2029", "17 January 2024",
// "March 2024", "17-Jan-2024", "the 3rd of May, 2023".
func parseTextual(s string) (candidate, bool) {
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(",/-.'()", r)
	})

	var c candidate
	unknown := 0
	for _, tok := range tokens {
		if m, ok := monthNames[tok]; ok {
			if c.month != 0 {
				return candidate{}, false
			}
			c.month = m
			continue
		}
		if om := ordinalRe.FindStringSubmatch(tok); om != nil {
			tok = om[1]
		}
		if isDigits(tok) {
			switch {
			case len(tok) == 4:
				if c.year != 0 {
					return candidate{}, false
				}
				c.year = atoi(tok)
			case len(tok) <= 2:
				if c.day != 0 {
					return candidate{}, false
				}
				c.day = atoi(tok)
			default:
				return candidate{}, false
			}
			continue
		}
		if _, ok := weekdayNames[tok]; ok {
			continue
		}
		if _, ok := fillerWords[tok]; ok {
			continue
		}
		unknown++
	}

	switch {
	case unknown > 1:
		return candidate{}, false
	case c.month == 0 && c.day == 0 && c.year != 0 && unknown == 0:
		c.precision = PrecisionYear
		c.confidence = 0.3
	case c.month == 0:
		return candidate{}, false
	case c.day != 0:
		c.precision = PrecisionDay
		c.confidence = 0.95
	default:
		c.precision = PrecisionMonth
		c.confidence = 0.6
	}
	if unknown == 1 {
		c.confidence -= 0.25
	}
	return c, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
