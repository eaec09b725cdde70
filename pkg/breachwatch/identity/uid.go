// Package identity derives stable incident identities and classifies incoming
// records against the catalog as NEW, UPDATE or DUPLICATE.
//
// A record that carries the publisher's permalink gets a strong identity: a
// hash of (source, normalized permalink). Without a permalink the identity is
// weak: a hash of (source, normalized organisation, breach date, natural key).
// Two distinct incidents of the same organisation on the same day collapse onto
// one weak identity; such merges are surfaced as weak-key-collision conflicts
// rather than prevented.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"
	"unicode"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
	"github.com/cognicore/breachwatch/pkg/breachwatch/temporal"
)

// KeyVersion is mixed into every identity hash. Bump it when the key
// derivation changes.
const KeyVersion = 1

var corporateSuffixes = map[string]bool{
	"inc": true, "incorporated": true, "llc": true, "ltd": true,
	"limited": true, "corp": true, "corporation": true, "co": true, "company": true,
	"plc": true, "lp": true, "llp": true, "pc": true, "pllc": true, "pa": true,
	"gmbh": true, "ag": true, "sa": true, "sas": true, "bv": true, "nv": true,
}

// UID returns the incident identity of rec and which key it was derived from.
func UID(rec record.BreachRecord) (string, record.IdentityKind) {
	if origin := NormalizeURL(rec.OriginURL); origin != "" {
		return StrongUID(rec.SourceID, origin), record.StrongKey
	}
	return WeakUID(rec), record.WeakKey
}

// StrongUID hashes a source and its permalink.
func StrongUID(sourceID int, originURL string) string {
	return digest(map[string]any{
		"v":         KeyVersion,
		"kind":      string(record.StrongKey),
		"source_id": sourceID,
		"origin":    NormalizeURL(originURL),
	})
}

// WeakUID hashes the fields that identify a notice without a permalink. It
// ignores rec.OriginURL.
func WeakUID(rec record.BreachRecord) string {
	return digest(map[string]any{
		"v":           KeyVersion,
		"kind":        string(record.WeakKey),
		"source_id":   rec.SourceID,
		"org":         NormalizeOrg(rec.OrganizationName),
		"date":        weakDate(rec.BreachDate),
		"natural_key": strings.ToLower(strings.Join(strings.Fields(rec.NaturalKey), " ")),
	})
}

// digest hashes the RFC 8785 canonical form of key, so map order and number
// formatting never change the result.
func digest(key map[string]any) string {
	b, _ := json.Marshal(key) // strings and ints only
	canon, err := jcs.Transform(b)
	if err != nil {
		canon = b
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

// weakDate renders the breach date for the weak key from its raw text, so the
// parser's clock, range limits and locale never move an identity. Records built
// without raw text fall back to the parsed value at its precision.
func weakDate(d record.DateField) string {
	if strings.TrimSpace(d.Raw) != "" || d.Value == nil {
		return temporal.Key(d.Raw)
	}
	switch d.Precision {
	case "year":
		return d.Value.Format("2006")
	case "month":
		return d.Value.Format("2006-01")
	default:
		return d.ISO()
	}
}

// NormalizeURL trims a permalink, lowercases scheme and host, and drops the
// fragment and any trailing slash. The query is kept: some publishers address
// notices by query parameter.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = strings.TrimSuffix(u.RawPath, "/")
	return u.String()
}

// NormalizeOrg folds an organisation name for identity purposes: NFKC,
// Unicode case folding, punctuation removed, trailing corporate suffixes
// dropped. "ACME Health, Inc." and "Acme Health Inc" normalize alike.
func NormalizeOrg(name string) string {
	s := cases.Fold().String(norm.NFKC.String(name))

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '&':
			b.WriteString(" and ")
		case r == '\'' || r == '’' || r == '.':
			// "O'Brien" and "L.L.C." stay one word
		default:
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	for len(words) > 1 && corporateSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	for len(words) > 1 && words[0] == "the" {
		words = words[1:]
	}
	return strings.Join(words, " ")
}
