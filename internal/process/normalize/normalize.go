// Package normalize turns free-text supplier labels into stable lookup keys.
//
// Normalization folds case, strips accents and punctuation, collapses spacing
// and rewrites storage sizes ("256 Go", "256GB", "256go") into a single
// token ("256gb"). Every function here is pure and total.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	unitGB = "gb"
	unitTB = "tb"
	unitMB = "mb"

	gbPerTB = 1024
)

var (
	storagePattern = regexp.MustCompile(`\b(\d+)\s*(gb|go|gigas?|gigaoctets?|tb|teras?|teraoctets?|mb)\b`)
	tokenPattern   = regexp.MustCompile(`\b(\d+)(gb|tb|mb)\b`)

	// "to" and "mo" are also plain words ("2 to 1"): they count as units only
	// glued to the number or as the last word of the label.
	shortUnitPattern = regexp.MustCompile(`\b(\d+)(?:(to|mo)\b|\s+(to|mo)\s*$)`)
)

var unitAliases = map[string]string{
	"gb":         unitGB,
	"go":         unitGB,
	"giga":       unitGB,
	"gigas":      unitGB,
	"gigaoctet":  unitGB,
	"gigaoctets": unitGB,
	"tb":         unitTB,
	"to":         unitTB,
	"tera":       unitTB,
	"teras":      unitTB,
	"teraoctet":  unitTB,
	"teraoctets": unitTB,
	"mb":         unitMB,
	"mo":         unitMB,
}

// Label returns the canonical cache key for a raw label.
// Label(Label(x)) == Label(x) for every x.
func Label(raw string) string {
	s := fold(raw)
	if s == "" {
		return ""
	}

	s = storagePattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := storagePattern.FindStringSubmatch(m)
		return storageToken(sub[1], unitAliases[sub[2]])
	})

	s = shortUnitPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := shortUnitPattern.FindStringSubmatch(m)
		return storageToken(sub[1], unitAliases[sub[2]+sub[3]])
	})

	return strings.Join(strings.Fields(s), " ")
}

// Storage extracts the canonical storage token of raw ("256gb", "1tb"),
// or "" when no size with a unit can be read. A bare number is read as GB.
func Storage(raw string) string {
	s := Label(raw)
	if s == "" {
		return ""
	}

	if m := tokenPattern.FindStringSubmatch(s); m != nil {
		return storageToken(m[1], m[2])
	}

	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return storageToken(s, unitGB)
	}

	return ""
}

func storageToken(digits, unit string) string {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return digits + unit
	}

	if unit == unitGB && n >= gbPerTB && n%gbPerTB == 0 {
		return strconv.Itoa(n/gbPerTB) + unitTB
	}

	return strconv.Itoa(n) + unit
}

// fold strips accents, folds case and replaces punctuation with spaces.
// A '+' suffix is kept as the word "plus" since it separates models.
func fold(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	stripped, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), raw)
	if err != nil {
		stripped = raw
	}

	lowered := cases.Fold().String(stripped)

	var b strings.Builder

	b.Grow(len(lowered))

	for _, r := range lowered {
		switch {
		case r == '+':
			b.WriteString(" plus ")
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	return b.String()
}
