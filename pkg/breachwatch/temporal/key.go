package temporal

import (
	"strings"
	"time"
)

// keyReference fixes the century of two-digit years in Key.
var keyReference = time.Date(2068, time.December, 31, 0, 0, 0, 0, time.UTC)

// Key renders a date expression as a stable identity component. It skips the
// guard and the range check and ignores locale, so the result depends on the
// text alone: the calendar date at its stated precision when the text reads
// the same under both day/month orders, otherwise the normalized text.
func Key(text string) string {
	s := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if s == "" {
		return ""
	}

	mf, ok := keyCandidate(s, MonthFirst)
	if !ok {
		return s
	}
	df, ok := keyCandidate(s, DayFirst)
	if !ok || df != mf {
		return s
	}
	return mf
}

func keyCandidate(s string, order Order) (string, bool) {
	c, ok := parseRange(s, order, keyReference)
	if !ok {
		c, ok = parseSingle(s, order, keyReference)
	}
	if !ok || c.year == 0 {
		return "", false
	}
	d, ok := c.date()
	if !ok {
		return "", false
	}
	switch c.precision {
	case PrecisionYear:
		return d.Format("2006"), true
	case PrecisionMonth:
		return d.Format("2006-01"), true
	default:
		return d.Format(time.DateOnly), true
	}
}
