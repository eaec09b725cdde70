// Package temporal turns the free-text date columns of breach notices into calendar
// dates. Anything that is not recognisably a date (including organisation names that
// ended up in a date column) yields a Result with OK false and confidence 0; a failed
// parse never aborts the record it belongs to.
package temporal

import (
	"strings"
	"time"
)

// Precision tells how much of a date the source actually stated.
type Precision string

const (
	PrecisionNone  Precision = ""
	PrecisionDay   Precision = "day"
	PrecisionMonth Precision = "month"
	PrecisionYear  Precision = "year"
)

// Reasons reported for unparseable input.
const (
	ReasonEmpty        = "empty"
	ReasonNonDateToken = "non-date-token"
	ReasonNoDigits     = "no-digits"
	ReasonOrganization = "organization-name"
	ReasonLetterHeavy  = "letter-heavy"
	ReasonUnrecognized = "unrecognized"
	ReasonInvalidDate  = "invalid-date"
	ReasonOutOfRange   = "out-of-range"
)

// Result is the outcome of parsing one date expression.
type Result struct {
	Date       time.Time // UTC midnight; first day of the month/year for partial dates
	OK         bool
	Raw        string
	Precision  Precision
	Confidence float64
	Reason     string
}

// Options configures a Parser. Zero values select the defaults.
type Options struct {
	Now     func() time.Time
	MinYear int
	// FutureTolerance is how far past now a date may lie. Nil selects
	// DefaultFutureTolerance; a pointer to zero rejects every future date.
	FutureTolerance *time.Duration
	// Extra whole-value tokens that mean "no date", e.g. "see attached".
	NonDateTokens []string
	// Extra words that mark an organisation name rather than a date.
	OrgStopWords []string
}

const (
	DefaultMinYear         = 1990
	DefaultFutureTolerance = 30 * 24 * time.Hour
)

// Parser parses free-text dates. It is safe for concurrent use once built.
type Parser struct {
	now             func() time.Time
	minYear         int
	futureTolerance time.Duration
	nonDate         map[string]struct{}
	orgWords        map[string]struct{}
}

// New creates a Parser from opts.
func New(opts Options) *Parser {
	p := &Parser{
		now:             opts.Now,
		minYear:         opts.MinYear,
		futureTolerance: DefaultFutureTolerance,
		nonDate:         toSet(defaultNonDateTokens, opts.NonDateTokens),
		orgWords:        toSet(defaultOrgStopWords, opts.OrgStopWords),
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.minYear <= 0 {
		p.minYear = DefaultMinYear
	}
	if opts.FutureTolerance != nil {
		p.futureTolerance = max(*opts.FutureTolerance, 0)
	}
	return p
}

func toSet(lists ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, s := range list {
			s = strings.ToLower(strings.TrimSpace(s))
			if s != "" {
				set[s] = struct{}{}
			}
		}
	}
	return set
}

// Parse converts text into a date. localeHint is the source's declared locale
// ("en-US", "en-GB", "de", ...) and only matters for numeric dates whose day and
// month are both <= 12; without a hint month-first is assumed.
func (p *Parser) Parse(text, localeHint string) Result {
	res := Result{Raw: text}
	s := strings.Join(strings.Fields(text), " ")

	if reason, hit := p.guard(s); hit {
		res.Reason = reason
		return res
	}

	order := OrderFor(localeHint)
	now := p.now().UTC()

	c, ok := parseRange(s, order, now)
	if !ok {
		c, ok = parseSingle(s, order, now)
	}
	if !ok || c.year == 0 {
		res.Reason = ReasonUnrecognized
		return res
	}

	date, ok := c.date()
	if !ok {
		res.Reason = ReasonInvalidDate
		return res
	}
	if date.Year() < p.minYear || date.After(now.Add(p.futureTolerance)) {
		res.Reason = ReasonOutOfRange
		return res
	}

	res.Date = date
	res.OK = true
	res.Precision = c.precision
	res.Confidence = c.confidence
	return res
}

// candidate is a partially validated date.
type candidate struct {
	year, month, day int
	precision        Precision
	confidence       float64
}

func (c candidate) date() (time.Time, bool) {
	month, day := c.month, c.day
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(c.year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// reject normalisation such as Feb 30 -> Mar 2
	if t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
