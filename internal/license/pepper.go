package license

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Pepper is a normalized operator secret mixed into every license hash.
type Pepper string

// zeroWidth lists invisible code points that copy/paste and templating
// pipelines inject into secrets. Some of them are not classified as spaces
// by the unicode package.
var zeroWidth = map[rune]bool{
	'\u200b': true, // zero width space
	'\u200c': true, // zero width non-joiner
	'\u200d': true, // zero width joiner
	'\u2060': true, // word joiner
	'\ufeff': true, // byte order mark
}

// PepperReport describes what normalization removed from a raw value.
type PepperReport struct {
	Normalized      Pepper
	Recomposed      bool
	StrippedSpaces  int
	StrippedZW      int
	StrippedControl int
	StrippedQuotes  int
}

// Changed reports whether normalization altered the input in any way.
func (r PepperReport) Changed() bool {
	return r.Recomposed || r.StrippedSpaces > 0 || r.StrippedZW > 0 ||
		r.StrippedControl > 0 || r.StrippedQuotes > 0
}

// NormalizePepper returns the pepper as it must be used for hashing.
//
// Normalization is: NFC composition, removal of every zero-width, whitespace
// and control character wherever it occurs, then removal of matching
// surrounding quote pairs (", ' or `), repeatedly. Every process that hashes
// licenses runs this same routine, so stray whitespace or quoting injected
// by a deployment pipeline cannot produce silent hash mismatches.
func NormalizePepper(raw string) Pepper {
	return InspectPepper(raw).Normalized
}

// InspectPepper normalizes raw and reports what was removed.
func InspectPepper(raw string) PepperReport {
	var rep PepperReport

	s := norm.NFC.String(raw)
	rep.Recomposed = s != raw

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case zeroWidth[r]:
			rep.StrippedZW++
		case unicode.IsSpace(r):
			rep.StrippedSpaces++
		case unicode.IsControl(r):
			rep.StrippedControl++
		default:
			b.WriteRune(r)
		}
	}
	s = b.String()

	for len(s) >= 2 && isQuote(s[0]) && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
		rep.StrippedQuotes++
	}

	rep.Normalized = Pepper(s)
	return rep
}

func isQuote(c byte) bool {
	return c == '"' || c == '\'' || c == '`'
}
