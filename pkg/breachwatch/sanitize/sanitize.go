package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Clean removes control characters and invalid UTF-8 from s.
func Clean(s string) string {
	if s == "" {
		return ""
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	if !needsCleaning(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if keep(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func needsCleaning(s string) bool {
	for _, r := range s {
		if !keep(r) {
			return true
		}
	}
	return false
}

func keep(r rune) bool {
	switch r {
	case '\n', '\t', '\r':
		return true
	case utf8.RuneError:
		return false
	}
	return !unicode.IsControl(r)
}

// Value sanitizes v recursively. Strings, string slices and string-keyed maps
// (keys included) are cleaned; every other value is returned unchanged.
func Value(v any) any {
	switch t := v.(type) {
	case string:
		return Clean(t)
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = Clean(s)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Value(e)
		}
		return out
	case map[string]any:
		return Map(t)
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[Clean(k)] = Clean(s)
		}
		return out
	default:
		return v
	}
}

// Map returns a sanitized copy of m. A nil map yields an empty one.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[Clean(k)] = Value(v)
	}
	return out
}
