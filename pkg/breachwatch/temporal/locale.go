package temporal

import "strings"

// Order is the field order used for numeric dates where both leading numbers
// could be a month.
type Order int

const (
	MonthFirst Order = iota
	DayFirst
)

var dayFirstLocales = map[string]struct{}{
	"en-gb": {}, "en-au": {}, "en-nz": {}, "en-ie": {}, "en-in": {}, "en-za": {},
	"gb": {}, "uk": {}, "au": {}, "nz": {}, "ie": {}, "eu": {},
	"day-first": {}, "dmy": {},
}

var dayFirstLanguages = map[string]struct{}{
	"de": {}, "fr": {}, "es": {}, "it": {}, "nl": {}, "pt": {}, "pl": {}, "sv": {},
	"da": {}, "nb": {}, "no": {}, "fi": {}, "ru": {}, "tr": {}, "cs": {}, "el": {},
}

// OrderFor maps a locale hint to a numeric date order. Unknown or empty hints are
// month-first.
func OrderFor(hint string) Order {
	h := strings.ToLower(strings.TrimSpace(hint))
	h = strings.ReplaceAll(h, "_", "-")
	if h == "" {
		return MonthFirst
	}
	if _, ok := dayFirstLocales[h]; ok {
		return DayFirst
	}
	lang, _, _ := strings.Cut(h, "-")
	if _, ok := dayFirstLanguages[lang]; ok {
		return DayFirst
	}
	return MonthFirst
}
