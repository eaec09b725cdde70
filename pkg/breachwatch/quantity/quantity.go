// Package quantity parses the "individuals affected" column of breach notices:
// "approximately 12,000", "500+", "1.2 million", "500-1,000", "unknown".
package quantity

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Confidence qualifies a parsed count.
type Confidence string

const (
	Exact    Confidence = "exact"
	Estimate Confidence = "estimate"
	Unknown  Confidence = "unknown"
)

// Result is a parsed count. Value is nil when nothing usable was found, in which
// case Confidence is Unknown.
type Result struct {
	Value      *int64
	Confidence Confidence
	Raw        string
}

var (
	numberRe = regexp.MustCompile(`(\d{1,3}(?:(?:,|\.|\x{00a0}| )\d{3})+(?:\.\d+)?|\d+(?:[.,]\d+)?)(?:\s*(thousand|million|billion|mil|mm|bn|k|m|b)\b)?`)
	groupsRe = regexp.MustCompile(`^\d{1,3}(?:([,. \x{00a0}])\d{3})(?:[,. \x{00a0}]\d{3})*$`)
)

var unknownPhrases = []string{
	"unknown", "undisclosed", "not disclosed", "not known", "not provided",
	"not available", "unavailable", "redacted", "tbd", "to be determined",
	"pending", "n/a", "none reported", "under investigation",
}

var estimateRe = regexp.MustCompile(`\b(?:approximately|approx|about|around|over|more than|at least|up to|nearly|almost|roughly|estimated|est|some|upwards of|in excess of|exceeding|under|less than|fewer than|potentially|possibly|as many as)\b|[~+<>≈]`)

var numberWords = map[string]int64{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7,
	"eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12, "dozen": 12,
	"hundred": 100,
}

var magnitudes = map[string]float64{
	"thousand": 1e3, "k": 1e3,
	"million": 1e6, "mil": 1e6, "mm": 1e6, "m": 1e6,
	"billion": 1e9, "bn": 1e9, "b": 1e9,
}

// Parse reads a count out of free text. It never fails; unusable input yields a
// nil Value with Unknown confidence.
func Parse(text string) Result {
	res := Result{Raw: text, Confidence: Unknown}
	s := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if s == "" {
		return res
	}

	estimate := estimateRe.MatchString(s)

	values := numbersIn(s)
	if len(values) == 0 {
		for _, phrase := range unknownPhrases {
			if strings.Contains(s, phrase) {
				return res
			}
		}
		v, ok := fromWords(s)
		if !ok {
			return res
		}
		values = []number{{value: v}}
	}

	best := values[0]
	for _, n := range values[1:] {
		if n.value > best.value {
			best = n
		}
	}
	if len(values) > 1 || best.inexact {
		estimate = true
	}

	v := best.value
	res.Value = &v
	res.Confidence = Exact
	if estimate {
		res.Confidence = Estimate
	}
	return res
}

type number struct {
	value   int64
	inexact bool // truncated fraction
	year    bool
}

func numbersIn(s string) []number {
	var out []number
	for _, m := range numberRe.FindAllStringSubmatch(s, -1) {
		n, ok := parseNumber(strings.TrimSpace(m[1]), m[2])
		if ok {
			out = append(out, n)
		}
	}

	// "4,000 residents as of 2023": drop year-looking values when real counts exist
	var counts []number
	for _, n := range out {
		if !n.year {
			counts = append(counts, n)
		}
	}
	if len(counts) > 0 {
		return counts
	}
	return out
}

func parseNumber(digits, magnitude string) (number, bool) {
	if magnitude != "" {
		f, ok := parseDecimal(digits)
		if !ok {
			return number{}, false
		}
		inexact := f != math.Trunc(f)
		f = math.Round(f * magnitudes[magnitude])
		if f >= math.MaxInt64 {
			return number{}, false
		}
		return number{value: int64(f), inexact: inexact}, true
	}

	if groupsRe.MatchString(digits) {
		sep := groupsRe.FindStringSubmatch(digits)[1]
		plain := strings.ReplaceAll(digits, sep, "")
		n, err := strconv.ParseInt(plain, 10, 64)
		if err != nil {
			return number{}, false
		}
		return number{value: n}, true
	}

	if strings.ContainsAny(digits, ".,") {
		f, ok := parseDecimal(digits)
		if !ok || f >= math.MaxInt64 {
			return number{}, false
		}
		return number{value: int64(f), inexact: f != math.Trunc(f)}, true
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return number{}, false
	}
	return number{value: n, year: len(digits) == 4 && n >= 1900 && n <= 2100}, true
}

// parseDecimal accepts "1.2", "1,2" and "1,200.5".
func parseDecimal(s string) (float64, bool) {
	s = strings.NewReplacer(" ", "", "\u00a0", "").Replace(s)
	switch {
	case strings.Contains(s, ".") && strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") == 1:
		_, frac, _ := strings.Cut(s, ",")
		if len(frac) == 3 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	case strings.Count(s, ",") > 1:
		s = strings.ReplaceAll(s, ",", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// fromWords handles "twelve", "two million", "a dozen".
func fromWords(s string) (int64, bool) {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == ',' || r == '.'
	})
	for i, w := range words {
		n, ok := numberWords[w]
		if !ok {
			continue
		}
		if i+1 < len(words) {
			if mult, ok := magnitudes[words[i+1]]; ok && len(words[i+1]) > 2 {
				return n * int64(mult), true
			}
		}
		return n, true
	}
	return 0, false
}

// FromValue accepts a typed value from a decoded extraction. Integral numbers are
// exact; strings go through Parse.
func FromValue(v any) Result {
	switch t := v.(type) {
	case nil:
		return Result{Confidence: Unknown}
	case string:
		return Parse(t)
	case int:
		return exact(int64(t), strconv.Itoa(t))
	case int32:
		return exact(int64(t), strconv.FormatInt(int64(t), 10))
	case int64:
		return exact(t, strconv.FormatInt(t, 10))
	case float64:
		return fromFloat(t)
	case float32:
		return fromFloat(float64(t))
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return exact(n, t.String())
		}
		return Parse(t.String())
	default:
		return Parse(fmt.Sprint(v))
	}
}

func exact(n int64, raw string) Result {
	if n < 0 {
		return Result{Raw: raw, Confidence: Unknown}
	}
	return Result{Value: &n, Confidence: Exact, Raw: raw}
}

func fromFloat(f float64) Result {
	raw := strconv.FormatFloat(f, 'f', -1, 64)
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 {
		return Result{Raw: raw, Confidence: Unknown}
	}
	n := int64(f)
	if float64(n) != f {
		return Result{Value: &n, Confidence: Estimate, Raw: raw}
	}
	return exact(n, raw)
}
