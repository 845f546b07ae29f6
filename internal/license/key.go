// Package license implements the pure parts of license handling: parsing a
// raw license string into its canonical form, normalizing the operator
// pepper, and computing the stored hash.
package license

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ErrMissing is returned when the input is empty after trimming.
var ErrMissing = errors.New("license: missing")

// ErrInvalid is returned when the input does not have the
// PREFIX-XXXX-XXXX-XXXX-XXXX shape.
var ErrInvalid = errors.New("license: invalid format")

var keyPattern = regexp.MustCompile(`^([A-Z]{2,6})(-[A-Z0-9]{4}){4}$`)
var prefixPattern = regexp.MustCompile(`^[A-Z]{2,6}$`)

// Key is a canonical license string together with its parsed prefix.
type Key struct {
	canonical string
	prefix    string
}

// String returns the canonical license string.
func (k Key) String() string { return k.canonical }

// Prefix returns the client prefix embedded in the license.
func (k Key) Prefix() string { return k.prefix }

// Canonicalize trims, removes interior whitespace, uppercases and validates a
// raw license string. Applying it to an already canonical string returns the
// same key.
func Canonicalize(raw string) (Key, error) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	s = strings.ToUpper(s)
	if s == "" {
		return Key{}, ErrMissing
	}

	m := keyPattern.FindStringSubmatch(s)
	if m == nil {
		return Key{}, ErrInvalid
	}
	return Key{canonical: s, prefix: m[1]}, nil
}

// ValidPrefix reports whether p is a well-formed client prefix.
func ValidPrefix(p string) bool {
	return prefixPattern.MatchString(p)
}

// NormalizePrefix uppercases and trims a prefix supplied in a query string.
func NormalizePrefix(p string) string {
	return strings.ToUpper(strings.TrimSpace(p))
}

// Generate creates a new random license for the given prefix. Groups are
// four uppercase hexadecimal characters.
func Generate(prefix string) (Key, error) {
	prefix = NormalizePrefix(prefix)
	if !ValidPrefix(prefix) {
		return Key{}, fmt.Errorf("license: prefix %q must be 2-6 letters", prefix)
	}

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return Key{}, fmt.Errorf("license: read random: %w", err)
	}
	h := strings.ToUpper(hex.EncodeToString(buf))

	return Canonicalize(fmt.Sprintf("%s-%s-%s-%s-%s", prefix, h[0:4], h[4:8], h[8:12], h[12:16]))
}

// Mask hides the middle groups of a canonical license for display.
func Mask(k Key) string {
	parts := strings.Split(k.canonical, "-")
	if len(parts) != 5 {
		return k.canonical
	}
	return parts[0] + "-****-****-****-" + parts[4]
}
