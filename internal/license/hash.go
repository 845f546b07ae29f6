package license

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash returns the lower-case hex SHA-256 of pepper || canonical license.
// This is the value stored in licenses.license_hash.
func Hash(p Pepper, k Key) string {
	sum := sha256.Sum256([]byte(string(p) + k.canonical))
	return hex.EncodeToString(sum[:])
}

// HashIP returns the lower-case hex SHA-256 of a client address. Audit rows
// and lockout counters key on this instead of the raw address.
func HashIP(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short, non-reversible identifier for a pepper so
// operators can compare deployments without printing the secret.
func Fingerprint(p Pepper) string {
	sum := sha256.Sum256([]byte("kaizen-pepper-fingerprint:" + string(p)))
	return strings.ToLower(hex.EncodeToString(sum[:4]))
}
